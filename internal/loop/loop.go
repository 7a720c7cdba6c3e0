//go:build unix

// Package loop runs the single-threaded readiness event loop: one poll per
// iteration over the listener and every live connection, followed by a scan
// that advances each connection's state machine.
package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/y0ncha/web-server/internal/conn"
	"github.com/y0ncha/web-server/internal/metrics"
	"github.com/y0ncha/web-server/internal/poll"
)

const (
	defaultPollTimeout    = time.Second
	defaultReadBufferSize = 4096
)

var errInvalidFd = errors.New("descriptor no longer valid")

// Listener is the accepting socket driven by the loop.
type Listener interface {
	Fd() int
	Accept() (conn.Socket, string, error)
	Close() error
}

// Config tunes an EventLoop. Zero values select defaults.
type Config struct {
	// IdleTimeout is how long a connection may sit without activity before
	// it is terminated. Zero disables idle eviction.
	IdleTimeout time.Duration
	// PollTimeout bounds a single readiness wait.
	PollTimeout time.Duration
	// ReadBufferSize is the size of the shared receive buffer.
	ReadBufferSize int
	IdlePolicy     conn.IdlePolicy
	Logger         logrus.FieldLogger
	Metrics        *metrics.Collector
	// Now is the loop clock, time.Now by default.
	Now func() time.Time
}

// EventLoop owns a listener and the connections accepted from it. All of
// its methods must be called from a single goroutine.
type EventLoop struct {
	ln         Listener
	dispatcher conn.Dispatcher
	cfg        Config
	logger     logrus.FieldLogger

	table   *conn.Table
	poller  *poll.Poller
	scratch []byte
	slots   []int

	// acceptResume pauses listener interest after a failed accept.
	acceptResume time.Time
}

// New creates an event loop over ln that hands framed requests to d.
func New(ln Listener, d conn.Dispatcher, cfg Config) *EventLoop {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &EventLoop{
		ln:         ln,
		dispatcher: d,
		cfg:        cfg,
		logger:     cfg.Logger.WithField("component", "loop"),
		table:      conn.NewTable(),
		poller:     poll.NewPoller(64),
		scratch:    make([]byte, cfg.ReadBufferSize),
	}
}

// Len returns the number of live connections.
func (l *EventLoop) Len() int {
	return l.table.Len()
}

// Run iterates until ctx is done or the readiness wait fails. On return
// every connection and the listener are closed.
func (l *EventLoop) Run(ctx context.Context) error {
	defer l.shutdown()

	l.logger.WithFields(logrus.Fields{
		"idle_timeout": l.cfg.IdleTimeout,
		"poll_timeout": l.cfg.PollTimeout,
	}).Info("event loop started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := l.Step(); err != nil {
			return err
		}
	}
}

// Step performs one iteration: build the interest set, wait, accept at most
// one client, advance every connection, then evict the terminal ones.
func (l *EventLoop) Step() error {
	conns := l.table.Snapshot()

	l.poller.Reset()
	lslot := -1
	if !l.cfg.Now().Before(l.acceptResume) {
		lslot = l.poller.Add(l.ln.Fd(), poll.Readable)
	}
	l.slots = l.slots[:0]
	for _, c := range conns {
		slot := -1
		switch {
		case c.WantsRead():
			slot = l.poller.Add(c.Fd(), poll.Readable)
		case c.WantsWrite():
			slot = l.poller.Add(c.Fd(), poll.Writable)
		}
		l.slots = append(l.slots, slot)
	}

	start := time.Now()
	n, err := l.poller.Wait(l.cfg.PollTimeout)
	l.cfg.Metrics.PollWait(time.Since(start))
	if err != nil {
		return fmt.Errorf("readiness wait: %w", err)
	}

	now := l.cfg.Now()
	if n > 0 && lslot >= 0 && l.poller.Ready(lslot).Has(poll.Readable) {
		l.accept(now)
	}

	for i, c := range conns {
		var ev poll.Events
		if n > 0 && l.slots[i] >= 0 {
			ev = l.poller.Ready(l.slots[i])
		}
		if ev.Has(poll.Invalid) {
			c.Abort(errInvalidFd)
			continue
		}
		if ev.Has(poll.Readable) {
			c.OnReadable(now, l.scratch)
		}
		if c.State() == conn.RequestBuffered {
			c.Dispatch(l.dispatcher)
		}
		if ev.Has(poll.Writable) {
			c.OnWritable(now)
		}
		c.CheckIdle(now, l.cfg.IdleTimeout, l.cfg.IdlePolicy)
	}

	l.table.Evict(l.evicted)
	return nil
}

func (l *EventLoop) accept(now time.Time) {
	sock, peer, err := l.ln.Accept()
	switch {
	case err == nil:
	case errors.Is(err, conn.ErrWouldBlock):
		return
	case errors.Is(err, poll.ErrRejected):
		l.cfg.Metrics.Rejected()
		l.logger.WithError(err).Debug("client rejected")
		return
	default:
		// The listener stays readable while e.g. EMFILE persists.
		l.acceptResume = now.Add(l.cfg.PollTimeout)
		l.logger.WithError(err).WithField("retry_in", l.cfg.PollTimeout).Warn("accept failed")
		return
	}

	c := conn.New(sock, peer, now, l.cfg.Logger, l.cfg.Metrics)
	if err := l.table.Add(c); err != nil {
		_ = sock.Close()
		l.cfg.Metrics.Rejected()
		l.logger.WithError(err).Warn("client rejected")
		return
	}
	l.cfg.Metrics.Accepted()
	l.logger.WithFields(logrus.Fields{"peer": peer, "fd": c.Fd()}).Debug("client connected")
}

func (l *EventLoop) evicted(c *conn.Connection) {
	l.cfg.Metrics.Evicted(c.State())
	entry := l.logger.WithFields(logrus.Fields{"peer": c.Peer(), "fd": c.Fd(), "state": c.State()})
	if err := c.Err(); err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("client disconnected")
}

func (l *EventLoop) shutdown() {
	for _, c := range l.table.Snapshot() {
		c.Abort(context.Canceled)
	}
	l.table.Evict(l.evicted)
	if err := l.ln.Close(); err != nil {
		l.logger.WithError(err).Warn("closing listener")
	}
	l.logger.Info("event loop stopped")
}
