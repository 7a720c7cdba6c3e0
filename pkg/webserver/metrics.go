package webserver

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusConfig holds configuration for Prometheus metrics middleware.
type PrometheusConfig struct {
	// Registerer receives the collectors (default: prometheus.DefaultRegisterer)
	Registerer prometheus.Registerer
	// Namespace is the Prometheus namespace (default: "webserver")
	Namespace string
	// Subsystem is the Prometheus subsystem name (default: "http")
	Subsystem string
	// SkipPaths lists paths to skip metrics collection (e.g., /health)
	SkipPaths []string
	// Buckets defines histogram buckets for request duration
	Buckets []float64
}

// DefaultPrometheusConfig returns a PrometheusConfig with sensible defaults.
func DefaultPrometheusConfig() PrometheusConfig {
	return PrometheusConfig{
		Namespace: "webserver",
		Subsystem: "http",
		Buckets:   prometheus.DefBuckets,
	}
}

// Prometheus returns a middleware that collects request metrics into reg.
func Prometheus(reg prometheus.Registerer) Middleware {
	config := DefaultPrometheusConfig()
	config.Registerer = reg
	return PrometheusWithConfig(config)
}

// PrometheusWithConfig returns a middleware that collects Prometheus metrics with custom configuration.
// The collectors are registered once, when the middleware is created.
func PrometheusWithConfig(config PrometheusConfig) Middleware {
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Namespace == "" {
		config.Namespace = "webserver"
	}
	if config.Subsystem == "" {
		config.Subsystem = "http"
	}
	if len(config.Buckets) == 0 {
		config.Buckets = prometheus.DefBuckets
	}

	factory := promauto.With(config.Registerer)
	labels := []string{"method", "path", "status"}

	requestsTotal := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "requests_total",
		Help:      "Total number of HTTP requests",
	}, labels)
	requestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   config.Buckets,
	}, labels)
	responseSize := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
	}, labels)

	skipMap := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) *Response {
			if skipMap[req.Path] {
				return next.Serve(ctx, req)
			}

			start := time.Now()
			resp := next.Serve(ctx, req)
			duration := time.Since(start).Seconds()

			status, size := "500", 0
			if resp != nil {
				status = strconv.Itoa(resp.Status)
				size = len(resp.Body)
			}

			requestsTotal.WithLabelValues(req.Method, req.Path, status).Inc()
			requestDuration.WithLabelValues(req.Method, req.Path, status).Observe(duration)
			responseSize.WithLabelValues(req.Method, req.Path, status).Observe(float64(size))
			return resp
		})
	}
}
