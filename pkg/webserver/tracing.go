package webserver

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig defines the configuration options for the OpenTelemetry tracing middleware.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "web-server")
	TracerName string
	// TracerProvider creates the tracer (default: otel.GetTracerProvider())
	TracerProvider trace.TracerProvider
	// SkipPaths lists paths to skip tracing (e.g., health checks)
	SkipPaths []string
	// Propagator is the propagation format (default: TraceContext)
	Propagator propagation.TextMapPropagator
}

// DefaultTracingConfig returns a TracingConfig with sensible defaults.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		TracerName: "web-server",
		SkipPaths:  []string{"/health"},
		Propagator: propagation.TraceContext{},
	}
}

// Tracing returns a middleware that adds OpenTelemetry tracing to requests.
// It uses default configuration settings and skips the health endpoint.
func Tracing() Middleware {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig returns a middleware that adds OpenTelemetry tracing with custom configuration.
// It creates spans for incoming requests and propagates trace context through headers.
func TracingWithConfig(config TracingConfig) Middleware {
	if config.TracerName == "" {
		config.TracerName = "web-server"
	}
	if config.Propagator == nil {
		config.Propagator = propagation.TraceContext{}
	}
	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}

	skipMap := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}

	tracer := config.TracerProvider.Tracer(config.TracerName)

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) *Response {
			if skipMap[req.Path] {
				return next.Serve(ctx, req)
			}

			parentCtx := config.Propagator.Extract(ctx, &headerCarrier{req: req})
			spanCtx, span := tracer.Start(
				parentCtx,
				req.Method+" "+req.Path,
				trace.WithSpanKind(trace.SpanKindServer),
			)
			defer span.End()

			span.SetAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.target", req.Path),
				attribute.String("http.flavor", req.Version),
				attribute.String("http.host", req.Header("host")),
				attribute.Int("http.request_content_length", len(req.Body)),
			)
			if reqID := RequestIDFromContext(ctx); reqID != "" {
				span.SetAttributes(attribute.String("http.request_id", reqID))
			}

			resp := next.Serve(spanCtx, req)

			switch {
			case resp == nil:
				span.SetStatus(codes.Error, "no response")
			case resp.Status >= 500:
				span.SetAttributes(attribute.Int("http.status_code", resp.Status))
				span.SetStatus(codes.Error, "HTTP error")
			default:
				span.SetAttributes(attribute.Int("http.status_code", resp.Status))
				span.SetStatus(codes.Ok, "")
			}
			return resp
		})
	}
}

// headerCarrier adapts request headers to propagation.TextMapCarrier.
type headerCarrier struct {
	req *Request
}

func (hc *headerCarrier) Get(key string) string {
	return hc.req.Header(key)
}

func (hc *headerCarrier) Set(key, value string) {
	hc.req.Headers = append(hc.req.Headers, [2]string{key, value})
}

func (hc *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(hc.req.Headers))
	for _, h := range hc.req.Headers {
		keys = append(keys, h[0])
	}
	return keys
}
