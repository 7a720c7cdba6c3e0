// Package webserver provides a single-threaded HTTP/1.x server built on a
// readiness event loop, with a router and middleware for request handlers.
package webserver

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/y0ncha/web-server/internal/conn"
)

// Engines accepted by Config.Engine.
const (
	EnginePoll = "poll"
	EngineGnet = "gnet"
)

// Config holds the server configuration options.
type Config struct {
	Addr           string                `yaml:"addr"`             // Server address to bind to
	Engine         string                `yaml:"engine"`           // Event loop implementation: poll or gnet
	IdleTimeout    time.Duration         `yaml:"idle_timeout"`     // Maximum idle time before connection close (0 disables)
	PollTimeout    time.Duration         `yaml:"poll_timeout"`     // Upper bound of one readiness wait
	ReadBufferSize int                   `yaml:"read_buffer_size"` // Bytes requested per receive
	IdlePolicy     string                `yaml:"idle_policy"`      // Which connections may be evicted when idle: awaiting or any
	Backlog        int                   `yaml:"backlog"`          // Listen backlog (poll engine)
	ReusePort      bool                  `yaml:"reuse_port"`       // Enable SO_REUSEPORT
	Logger         logrus.FieldLogger    `yaml:"-"`                // Logger for server events
	Registerer     prometheus.Registerer `yaml:"-"`                // Registry for connection metrics
}

// newSilentLogger creates a logger that discards all output.
func newSilentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:27015",
		Engine:         EnginePoll,
		IdleTimeout:    120 * time.Second,
		PollTimeout:    time.Second,
		ReadBufferSize: 4096,
		IdlePolicy:     "awaiting",
		Backlog:        128,
		Logger:         newSilentLogger(),
	}
}

// Validate checks and normalizes the configuration values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:27015"
	}
	switch c.Engine {
	case "":
		c.Engine = EnginePoll
	case EnginePoll, EngineGnet:
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout must not be negative, got %v", c.IdleTimeout)
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 4096
	}
	if _, err := conn.ParseIdlePolicy(c.IdlePolicy); err != nil {
		return err
	}
	if c.Backlog <= 0 {
		c.Backlog = 128
	}
	if c.Logger == nil {
		c.Logger = newSilentLogger()
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.NewRegistry()
	}
	return nil
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates the
// result.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("config %s: %w", path, err)
	}
	return config, nil
}
