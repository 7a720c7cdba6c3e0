package webserver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/y0ncha/web-server/internal/conn"
	"github.com/y0ncha/web-server/internal/date"
	"github.com/y0ncha/web-server/internal/gnetloop"
	"github.com/y0ncha/web-server/internal/h1"
	"github.com/y0ncha/web-server/internal/loop"
	"github.com/y0ncha/web-server/internal/metrics"
	"github.com/y0ncha/web-server/internal/poll"
)

// Server owns one event loop serving a Handler.
type Server struct {
	config     Config
	handler    Handler
	idlePolicy conn.IdlePolicy
	metrics    *metrics.Collector

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	ready   chan struct{}
	addr    string
}

// New creates a new Server with the provided configuration.
func New(config Config) *Server {
	if err := config.Validate(); err != nil {
		panic(err)
	}
	policy, _ := conn.ParseIdlePolicy(config.IdlePolicy)

	return &Server{
		config:     config,
		idlePolicy: policy,
		metrics:    metrics.New(config.Registerer, "webserver"),
		done:       make(chan struct{}),
		ready:      make(chan struct{}),
	}
}

// NewWithDefaults creates a new Server with default configuration.
func NewWithDefaults() *Server {
	return New(DefaultConfig())
}

// Handler sets the request handler and returns the server for method chaining.
func (s *Server) Handler(handler Handler) *Server {
	s.handler = handler
	return s
}

// Ready is closed once the server is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address once Ready is closed. With the poll engine
// a requested port 0 is replaced by the kernel-chosen port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe binds the configured address and serves until ctx is done
// or Stop is called. Setup failures are returned before any connection is
// accepted.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.handler == nil {
		return errors.New("handler not set")
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	cancel := s.cancel
	s.mu.Unlock()

	defer close(s.done)
	defer cancel()

	stopDate := date.StartTicker()
	defer stopDate()

	logger := s.config.Logger
	dispatcher := h1.NewDispatcher(ctx, s.handler, logger)

	switch s.config.Engine {
	case EngineGnet:
		srv := gnetloop.New(dispatcher, gnetloop.Config{
			Addr:           s.config.Addr,
			IdleTimeout:    s.config.IdleTimeout,
			TickInterval:   s.config.PollTimeout,
			ReadBufferSize: s.config.ReadBufferSize,
			IdlePolicy:     s.idlePolicy,
			ReusePort:      s.config.ReusePort,
			Logger:         logger,
			Metrics:        s.metrics,
			OnBoot:         s.listening,
		})
		return srv.Run(ctx)

	default:
		ln, err := poll.Listen(s.config.Addr, poll.ListenConfig{
			Backlog:   s.config.Backlog,
			ReusePort: s.config.ReusePort,
		})
		if err != nil {
			logger.WithError(err).WithField("addr", s.config.Addr).Error("listen failed")
			return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
		}
		s.listening(ln.Addr())
		el := loop.New(ln, dispatcher, loop.Config{
			IdleTimeout:    s.config.IdleTimeout,
			PollTimeout:    s.config.PollTimeout,
			ReadBufferSize: s.config.ReadBufferSize,
			IdlePolicy:     s.idlePolicy,
			Logger:         logger,
			Metrics:        s.metrics,
		})
		return el.Run(ctx)
	}
}

func (s *Server) listening(addr string) {
	s.mu.Lock()
	s.addr = addr
	s.mu.Unlock()
	close(s.ready)
	s.config.Logger.WithFields(logrus.Fields{
		"addr":   addr,
		"engine": s.config.Engine,
	}).Info("server listening")
}

// Stop cancels the serve context and waits for the event loop to close
// every connection, or for ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
