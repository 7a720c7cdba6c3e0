package conn

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/y0ncha/web-server/internal/frame"
)

// Socket is the non-blocking byte stream a Connection owns. Read and Write
// return ErrWouldBlock when no progress is possible; Read returns (0, nil)
// on an orderly close by the peer.
type Socket interface {
	Fd() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Dispatcher converts one framed request into response bytes and the
// keep-alive decision for the exchange.
type Dispatcher interface {
	Dispatch(raw []byte) (out []byte, keepAlive bool)
}

// Observer receives connection events. All methods are called on the loop
// goroutine. Any of them may be a no-op.
type Observer interface {
	Received(n int)
	Sent(n int)
	Transition(from, to State)
}

// phase is the state-specific data of a connection. Exactly one variant is
// live at a time, so a buffered request can never coexist with a pending
// response.
type phase interface {
	state() State
}

type awaiting struct {
	buf []byte
}

type buffered struct {
	raw []byte
	// trailing is set when bytes followed the framed request in the same
	// buffer. They are dropped, so the connection closes after the response.
	trailing bool
}

type responding struct {
	w         *ResponseWriter
	keepAlive bool
}

type closed struct {
	final State
	err   error
}

func (awaiting) state() State { return AwaitingRequest }
func (buffered) state() State { return RequestBuffered }
func (responding) state() State { return ResponseReady }
func (c closed) state() State { return c.final }

// Connection is one accepted client socket and its state machine. It is not
// safe for concurrent use; the event loop is its only mutator.
type Connection struct {
	sock       Socket
	peer       string
	phase      phase
	lastActive time.Time
	sockClosed bool
	logger     logrus.FieldLogger
	observer   Observer
}

// New wraps an accepted socket. The connection starts in AwaitingRequest
// with its idle clock set to now.
func New(sock Socket, peer string, now time.Time, logger logrus.FieldLogger, observer Observer) *Connection {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Connection{
		sock:     sock,
		peer:     peer,
		logger:   logger.WithFields(logrus.Fields{"peer": peer, "fd": sock.Fd()}),
		observer: observer,
	}
	c.await(now)
	return c
}

// Fd returns the descriptor of the owned socket.
func (c *Connection) Fd() int { return c.sock.Fd() }

// Peer returns the remote address recorded at accept time.
func (c *Connection) Peer() string { return c.peer }

// LastActive returns the time of the last received byte or the last entry
// into AwaitingRequest.
func (c *Connection) LastActive() time.Time { return c.lastActive }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	if c.phase == nil {
		return Disconnected
	}
	return c.phase.state()
}

// Err returns the I/O error that aborted the connection, if any.
func (c *Connection) Err() error {
	if cl, ok := c.phase.(closed); ok {
		return cl.err
	}
	return nil
}

// WantsRead reports whether the socket should be polled for readability.
func (c *Connection) WantsRead() bool { return c.State() == AwaitingRequest }

// WantsWrite reports whether the socket should be polled for writability.
func (c *Connection) WantsWrite() bool { return c.State() == ResponseReady }

// Pending returns the number of response bytes still to be sent.
func (c *Connection) Pending() int {
	if r, ok := c.phase.(responding); ok {
		return r.w.Pending()
	}
	return 0
}

// Buffered returns the number of request bytes received so far.
func (c *Connection) Buffered() int {
	switch p := c.phase.(type) {
	case awaiting:
		return len(p.buf)
	case buffered:
		return len(p.raw)
	}
	return 0
}

// OnReadable performs one receive into scratch and appends the result to
// the inbound buffer. When the buffer holds a complete request the request
// is moved out and the connection becomes RequestBuffered.
func (c *Connection) OnReadable(now time.Time, scratch []byte) {
	p, ok := c.phase.(awaiting)
	if !ok {
		return
	}

	n, err := c.sock.Read(scratch)
	switch {
	case errors.Is(err, ErrWouldBlock):
		return
	case err != nil:
		c.fail(err, "receive failed")
		return
	case n <= 0:
		c.setPhase(closed{final: Completed})
		return
	}

	p.buf = append(p.buf, scratch[:n]...)
	c.lastActive = now
	if c.observer != nil {
		c.observer.Received(n)
	}

	size, complete := frame.Length(p.buf)
	if !complete {
		c.phase = p
		c.logger.WithField("buffered", len(p.buf)).Debug("partial request received, waiting for more data")
		return
	}
	extra := len(p.buf) - size
	if extra > 0 {
		c.logger.WithField("discarded", extra).Debug("bytes after the framed request dropped, closing after response")
	}
	c.setPhase(buffered{raw: p.buf[:size:size], trailing: extra > 0})
}

// Dispatch hands a buffered request to d and moves to ResponseReady. The
// inbound buffer is released before d runs. A request that arrived with
// trailing bytes never keeps the connection alive.
func (c *Connection) Dispatch(d Dispatcher) {
	p, ok := c.phase.(buffered)
	if !ok {
		return
	}
	raw := p.raw
	c.phase = buffered{}

	out, keepAlive := d.Dispatch(raw)
	c.setPhase(responding{w: NewResponseWriter(out), keepAlive: keepAlive && !p.trailing})
}

// OnWritable performs one send of the pending response. After the last
// byte the connection either awaits the next request or completes.
func (c *Connection) OnWritable(now time.Time) {
	p, ok := c.phase.(responding)
	if !ok {
		return
	}

	n, err := p.w.WriteTo(c.sock)
	if n > 0 && c.observer != nil {
		c.observer.Sent(n)
	}
	switch {
	case errors.Is(err, ErrWouldBlock):
		return
	case err != nil:
		c.fail(err, "send failed")
		return
	}

	if !p.w.Done() {
		c.logger.WithFields(logrus.Fields{"sent": n, "pending": p.w.Pending()}).Debug("partial response sent")
		return
	}
	if p.keepAlive {
		c.await(now)
		return
	}
	c.setPhase(closed{final: Completed})
}

// CheckIdle terminates the connection when it has been idle for longer
// than timeout and policy makes it eligible. A non-positive timeout
// disables eviction.
func (c *Connection) CheckIdle(now time.Time, timeout time.Duration, policy IdlePolicy) bool {
	if timeout <= 0 || c.State().Terminal() {
		return false
	}
	if policy == IdleAwaiting && c.State() != AwaitingRequest {
		return false
	}
	idle := now.Sub(c.lastActive)
	if idle <= timeout {
		return false
	}
	c.logger.WithField("idle", idle.Round(time.Millisecond)).Debug("client idle past timeout")
	c.setPhase(closed{final: Terminated})
	return true
}

// Abort moves the connection to Aborted without further I/O.
func (c *Connection) Abort(err error) {
	if c.State().Terminal() {
		return
	}
	c.fail(err, "connection aborted")
}

// Close closes the socket. Only the first call reaches the socket.
func (c *Connection) Close() error {
	if c.sockClosed {
		return nil
	}
	c.sockClosed = true
	if !c.State().Terminal() {
		c.setPhase(closed{final: Completed})
	}
	return c.sock.Close()
}

func (c *Connection) await(now time.Time) {
	c.lastActive = now
	c.setPhase(awaiting{})
}

func (c *Connection) fail(err error, msg string) {
	c.logger.WithError(err).Debug(msg)
	c.setPhase(closed{final: Aborted, err: err})
}

func (c *Connection) setPhase(p phase) {
	from := c.State()
	c.phase = p
	to := p.state()
	if from == to {
		return
	}
	c.logger.WithFields(logrus.Fields{"from": from, "to": to}).Debug("state changed")
	if c.observer != nil {
		c.observer.Transition(from, to)
	}
}
