//go:build unix

// Package poll provides the readiness primitive of the event loop: a poll(2)
// set rebuilt every iteration, plus the raw non-blocking TCP sockets it
// watches.
package poll

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// Events is a set of readiness conditions.
type Events uint8

const (
	Readable Events = 1 << iota
	Writable
	// Invalid means the descriptor is not open; the owner must drop it.
	Invalid
)

// Has reports whether every condition in o is set in e.
func (e Events) Has(o Events) bool {
	return e&o == o
}

// Poller builds a readiness query over an arbitrary set of descriptors and
// waits for it. It is not safe for concurrent use.
type Poller struct {
	fds []unix.PollFd
}

// NewPoller creates a poller with room for sizeHint descriptors.
func NewPoller(sizeHint int) *Poller {
	return &Poller{fds: make([]unix.PollFd, 0, sizeHint)}
}

// Reset clears the query.
func (p *Poller) Reset() {
	p.fds = p.fds[:0]
}

// Len returns the number of descriptors in the query.
func (p *Poller) Len() int {
	return len(p.fds)
}

// Add appends fd with the requested interest and returns its slot.
func (p *Poller) Add(fd int, interest Events) int {
	var ev int16
	if interest.Has(Readable) {
		ev |= unix.POLLIN
	}
	if interest.Has(Writable) {
		ev |= unix.POLLOUT
	}
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: ev})
	return len(p.fds) - 1
}

// Wait blocks until at least one descriptor is ready or timeout elapses and
// returns the number of ready descriptors. A negative timeout waits
// forever. An interrupted wait reports zero ready descriptors.
func (p *Poller) Wait(timeout time.Duration) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 && timeout > 0 {
			ms = 1
		}
	}
	n, err := unix.Poll(p.fds, ms)
	if errors.Is(err, unix.EINTR) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Ready returns the conditions reported for slot i. Hang-ups and socket
// errors surface as readiness for whatever was requested so that the next
// receive or send observes them.
func (p *Poller) Ready(i int) Events {
	if i < 0 || i >= len(p.fds) {
		return 0
	}
	pfd := p.fds[i]
	re := pfd.Revents
	var out Events
	if re&unix.POLLNVAL != 0 {
		out |= Invalid
	}
	failed := re&(unix.POLLHUP|unix.POLLERR) != 0
	if pfd.Events&unix.POLLIN != 0 && (re&unix.POLLIN != 0 || failed) {
		out |= Readable
	}
	if pfd.Events&unix.POLLOUT != 0 && (re&unix.POLLOUT != 0 || failed) {
		out |= Writable
	}
	return out
}
