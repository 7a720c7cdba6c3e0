//go:build unix

// Package gnetloop drives the connection state machine from a gnet event
// engine instead of the built-in poll loop.
package gnetloop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/panjf2000/gnet/v2"
	"github.com/sirupsen/logrus"

	"github.com/y0ncha/web-server/internal/conn"
	"github.com/y0ncha/web-server/internal/metrics"
	"github.com/y0ncha/web-server/internal/poll"
)

// Config defines the configuration options for the gnet engine.
type Config struct {
	Addr           string
	IdleTimeout    time.Duration
	TickInterval   time.Duration
	ReadBufferSize int
	IdlePolicy     conn.IdlePolicy
	ReusePort      bool
	Logger         logrus.FieldLogger
	Metrics        *metrics.Collector
	Now            func() time.Time
	// OnBoot, if set, receives the bound address once the engine accepts
	// connections. It is not called when binding fails.
	OnBoot func(addr string)
}

// Server implements gnet.EventHandler on top of conn.Connection. It runs a
// single event loop; the ticker goroutine is serialized with it by mu.
type Server struct {
	gnet.BuiltinEventEngine
	dispatcher conn.Dispatcher
	cfg        Config
	logger     logrus.FieldLogger

	mu      sync.Mutex
	table   *conn.Table
	scratch []byte

	engine gnet.Engine
	booted chan struct{}
}

var _ gnet.EventHandler = (*Server)(nil)

// New creates a gnet server handing framed requests to d.
func New(d conn.Dispatcher, cfg Config) *Server {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 4096
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{
		dispatcher: d,
		cfg:        cfg,
		logger:     cfg.Logger.WithField("component", "gnet"),
		table:      conn.NewTable(),
		scratch:    make([]byte, cfg.ReadBufferSize),
		booted:     make(chan struct{}),
	}
}

// Run serves until ctx is done or the engine fails to start.
func (s *Server) Run(ctx context.Context) error {
	options := []gnet.Option{
		gnet.WithMulticore(false),
		gnet.WithNumEventLoop(1),
		gnet.WithReusePort(s.cfg.ReusePort),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithReadBufferCap(s.cfg.ReadBufferSize),
		gnet.WithTicker(true),
		gnet.WithLogger(s.cfg.Logger),
	}

	errc := make(chan error, 1)
	go func() {
		errc <- gnet.Run(s, "tcp://"+s.cfg.Addr, options...)
	}()

	select {
	case err := <-errc:
		s.logger.WithError(err).WithField("addr", s.cfg.Addr).Error("listen failed")
		return fmt.Errorf("gnet engine: %w", err)
	case <-s.booted:
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.engine.Stop(stopCtx); err != nil {
		s.logger.WithError(err).Warn("stopping gnet engine")
		return err
	}
	return <-errc
}

// Len returns the number of live connections.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Len()
}

// OnBoot is called when the server is ready to accept connections.
func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	addr := boundAddr(eng, s.cfg.Addr)
	close(s.booted)
	s.logger.WithField("addr", addr).Info("event loop started")
	if s.cfg.OnBoot != nil {
		s.cfg.OnBoot(addr)
	}
	return gnet.None
}

// boundAddr resolves the listener's local address so that port 0 reports
// the kernel-chosen port.
func boundAddr(eng gnet.Engine, fallback string) string {
	fd, err := eng.Dup()
	if err != nil {
		return fallback
	}
	defer func() { _ = syscall.Close(fd) }()
	addr, err := poll.LocalAddr(fd)
	if err != nil {
		return fallback
	}
	return addr
}

// OnShutdown releases the entries the engine is about to close.
func (s *Server) OnShutdown(_ gnet.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.table.Snapshot() {
		s.cfg.Metrics.Evicted(c.State())
		s.table.Remove(c.Fd())
	}
	s.logger.Info("event loop stopped")
}

// OnOpen registers a new connection.
func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer := c.RemoteAddr().String()
	cn := conn.New(&socket{c: c}, peer, s.cfg.Now(), s.cfg.Logger, s.cfg.Metrics)
	if err := s.table.Add(cn); err != nil {
		s.cfg.Metrics.Rejected()
		s.logger.WithError(err).Warn("client rejected")
		return nil, gnet.Close
	}
	s.cfg.Metrics.Accepted()
	s.logger.WithFields(logrus.Fields{"peer": peer, "fd": c.Fd()}).Debug("client connected")
	return nil, gnet.None
}

// OnClose is called when a connection is closed, by either side.
func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	cn, ok := s.table.Get(c.Fd())
	if !ok {
		return gnet.None
	}
	switch {
	case cn.State().Terminal():
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET):
		cn.Close()
	default:
		cn.Abort(err)
	}
	s.evicted(cn)
	s.table.Remove(c.Fd())
	return gnet.None
}

// OnTraffic advances the connection over everything gnet has buffered.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	cn, ok := s.table.Get(c.Fd())
	if !ok {
		return gnet.Close
	}

	now := s.cfg.Now()
	for cn.WantsRead() && c.InboundBuffered() > 0 {
		cn.OnReadable(now, s.scratch)
		if cn.State() == conn.RequestBuffered {
			cn.Dispatch(s.dispatcher)
		}
		for cn.WantsWrite() {
			pending := cn.Pending()
			cn.OnWritable(now)
			if cn.WantsWrite() && cn.Pending() == pending {
				break
			}
		}
	}

	s.table.Evict(s.evicted)
	return gnet.None
}

// OnTick runs idle eviction.
func (s *Server) OnTick() (time.Duration, gnet.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	for _, cn := range s.table.Snapshot() {
		cn.CheckIdle(now, s.cfg.IdleTimeout, s.cfg.IdlePolicy)
	}
	s.table.Evict(s.evicted)
	return s.cfg.TickInterval, gnet.None
}

func (s *Server) evicted(c *conn.Connection) {
	s.cfg.Metrics.Evicted(c.State())
	entry := s.logger.WithFields(logrus.Fields{"peer": c.Peer(), "fd": c.Fd(), "state": c.State()})
	if err := c.Err(); err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("client disconnected")
}

// socket adapts gnet.Conn to conn.Socket. Reads drain the engine's inbound
// buffer and writes go to its outbound buffer.
type socket struct {
	c gnet.Conn
}

func (s *socket) Fd() int { return s.c.Fd() }

func (s *socket) Read(p []byte) (int, error) {
	n := s.c.InboundBuffered()
	if n == 0 {
		return 0, conn.ErrWouldBlock
	}
	if n > len(p) {
		n = len(p)
	}
	return s.c.Read(p[:n])
}

func (s *socket) Write(p []byte) (int, error) { return s.c.Write(p) }

func (s *socket) Close() error { return s.c.Close() }
