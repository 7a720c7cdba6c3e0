// Package conn implements the per-socket state machine of the server: read
// accumulation until a request is framed, dispatch, and resumable response
// writes.
package conn

import "errors"

// State is a connection lifecycle state.
type State uint8

const (
	// Disconnected is the zero value: not yet accepted, never polled.
	Disconnected State = iota
	AwaitingRequest
	RequestBuffered
	ResponseReady
	// Completed, Aborted and Terminated are terminal.
	Completed
	Aborted
	Terminated
)

var stateNames = [...]string{
	Disconnected:    "Disconnected",
	AwaitingRequest: "AwaitingRequest",
	RequestBuffered: "RequestBuffered",
	ResponseReady:   "ResponseReady",
	Completed:       "Completed",
	Aborted:         "Aborted",
	Terminated:      "Terminated",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Terminal reports whether no further I/O may be attempted in s.
func (s State) Terminal() bool {
	return s >= Completed
}

// IdlePolicy selects which connections are eligible for idle eviction.
type IdlePolicy uint8

const (
	// IdleAwaiting evicts only connections waiting for a request.
	IdleAwaiting IdlePolicy = iota
	// IdleAny evicts any non-terminal connection.
	IdleAny
)

// ParseIdlePolicy maps a configuration string to an IdlePolicy.
func ParseIdlePolicy(s string) (IdlePolicy, error) {
	switch s {
	case "", "awaiting":
		return IdleAwaiting, nil
	case "any":
		return IdleAny, nil
	default:
		return IdleAwaiting, errors.New("unknown idle policy: " + s)
	}
}

var (
	// ErrWouldBlock is returned by a Socket when the operation cannot make
	// progress without blocking. It is not a connection failure.
	ErrWouldBlock = errors.New("operation would block")
	// ErrDuplicate is returned by Table.Add for a descriptor already present.
	ErrDuplicate = errors.New("descriptor already registered")
)
