package webserver

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/sirupsen/logrus"
)

// LoggerConfig defines the configuration options for the Logger middleware.
type LoggerConfig struct {
	// Logger receives one entry per request (defaults to logrus.StandardLogger())
	Logger logrus.FieldLogger
	// SkipPaths lists paths to skip logging (e.g., health checks)
	SkipPaths []string
	// CustomFields allows adding custom fields to each log entry
	CustomFields func(ctx context.Context, req *Request) logrus.Fields
}

// DefaultLoggerConfig returns a LoggerConfig with sensible defaults.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Logger: logrus.StandardLogger(),
	}
}

// Logger returns a middleware that logs one structured entry per request.
func Logger() Middleware {
	return LoggerWithConfig(DefaultLoggerConfig())
}

// LoggerWithConfig returns a middleware that logs requests with custom configuration.
func LoggerWithConfig(config LoggerConfig) Middleware {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

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

			fields := logrus.Fields{
				"method":   req.Method,
				"path":     req.Path,
				"version":  req.Version,
				"duration": time.Since(start).Round(time.Microsecond),
			}
			if resp != nil {
				fields["status"] = resp.Status
				fields["size"] = len(resp.Body)
			}
			if reqID := RequestIDFromContext(ctx); reqID != "" {
				fields["request_id"] = reqID
			}
			if config.CustomFields != nil {
				for k, v := range config.CustomFields(ctx, req) {
					fields[k] = v
				}
			}

			entry := config.Logger.WithFields(fields)
			if resp != nil && resp.Status >= 500 {
				entry.Warn("request served")
			} else {
				entry.Info("request served")
			}
			return resp
		})
	}
}

// Recovery returns a middleware that recovers from panics.
// It catches panics during request handling and returns a 500 Internal Server Error response.
func Recovery(logger logrus.FieldLogger) Middleware {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (resp *Response) {
			defer func() {
				if r := recover(); r != nil {
					logger.WithFields(logrus.Fields{
						"method": req.Method,
						"path":   req.Path,
						"panic":  r,
					}).Error("handler panicked")
					resp = Error(500, "handler failed")
				}
			}()

			return next.Serve(ctx, req)
		})
	}
}

type requestIDKey struct{}

// RequestID returns a middleware that adds a unique request ID to each request.
// If a request ID is not already present in the headers, one is generated.
// The request ID is added to both the context and response headers.
func RequestID() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) *Response {
			requestID := req.Header("x-request-id")
			if requestID == "" {
				requestID = generateRequestID()
			}

			resp := next.Serve(context.WithValue(ctx, requestIDKey{}, requestID), req)
			if resp != nil {
				resp.SetHeader("X-Request-ID", requestID)
			}
			return resp
		})
	}
}

// RequestIDFromContext returns the ID set by the RequestID middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

var requestIDCounter uint64

func generateRequestID() string {
	counter := atomic.AddUint64(&requestIDCounter, 1)

	var randomBytes [8]byte
	_, _ = rand.Read(randomBytes[:])
	randomNum := binary.BigEndian.Uint64(randomBytes[:])

	return fmt.Sprintf("%d-%d-%d", time.Now().UnixNano(), counter, randomNum)
}

// CompressConfig holds configuration for the Compress middleware.
type CompressConfig struct {
	// Level specifies the compression level (1-9 for gzip, 0-11 for brotli)
	Level int
	// MinSize specifies the minimum response size to compress (default: 1024 bytes)
	MinSize int
	// ExcludedTypes lists content types to skip compression
	ExcludedTypes []string
}

// DefaultCompressConfig returns a CompressConfig with sensible defaults.
func DefaultCompressConfig() CompressConfig {
	return CompressConfig{
		Level:   6,
		MinSize: 1024,
		ExcludedTypes: []string{
			"image/",
			"video/",
			"audio/",
			"application/zip",
			"application/gzip",
		},
	}
}

// Compress returns a middleware that compresses response bodies with gzip or brotli.
// It uses default compression settings with a minimum response size of 1024 bytes.
func Compress() Middleware {
	return CompressWithConfig(DefaultCompressConfig())
}

// CompressWithConfig returns a middleware that compresses response bodies with custom configuration.
func CompressWithConfig(config CompressConfig) Middleware {
	if config.MinSize == 0 {
		config.MinSize = 1024
	}
	if config.Level == 0 {
		config.Level = 6
	}

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) *Response {
			acceptEncoding := req.Header("accept-encoding")
			supportsBrotli := strings.Contains(acceptEncoding, "br")
			supportsGzip := strings.Contains(acceptEncoding, "gzip")

			resp := next.Serve(ctx, req)
			if resp == nil || (!supportsBrotli && !supportsGzip) {
				return resp
			}
			if len(resp.Body) < config.MinSize || resp.Header("Content-Encoding") != "" {
				return resp
			}
			contentType := resp.Header("Content-Type")
			for _, excluded := range config.ExcludedTypes {
				if strings.HasPrefix(contentType, excluded) {
					return resp
				}
			}

			var compressed bytes.Buffer
			encoding := "gzip"
			if supportsBrotli {
				encoding = "br"
				writer := brotli.NewWriterLevel(&compressed, config.Level)
				if _, err := writer.Write(resp.Body); err != nil {
					_ = writer.Close()
					return resp
				}
				if err := writer.Close(); err != nil {
					return resp
				}
			} else {
				writer, err := gzip.NewWriterLevel(&compressed, config.Level)
				if err != nil {
					return resp
				}
				if _, err := writer.Write(resp.Body); err != nil {
					_ = writer.Close()
					return resp
				}
				if err := writer.Close(); err != nil {
					return resp
				}
			}

			// Only use the compressed version if it is actually smaller
			if compressed.Len() == 0 || compressed.Len() >= len(resp.Body) {
				return resp
			}
			resp.SetHeader("Content-Encoding", encoding)
			resp.SetHeader("Vary", "Accept-Encoding")
			resp.Body = compressed.Bytes()
			return resp
		})
	}
}
