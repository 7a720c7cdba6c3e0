package h1

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Handler produces a response for a parsed request. Implementations run on
// the event loop goroutine and must not block for long.
type Handler interface {
	Serve(ctx context.Context, req *Request) *Response
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) *Response

// Serve calls f(ctx, req).
func (f HandlerFunc) Serve(ctx context.Context, req *Request) *Response {
	return f(ctx, req)
}

// Dispatcher is the seam between the connection state machine and the
// request handlers. It always yields a serialized response.
type Dispatcher struct {
	ctx     context.Context
	handler Handler
	logger  logrus.FieldLogger
}

// NewDispatcher creates a dispatcher that serves requests with handler.
// ctx is passed to every handler invocation.
func NewDispatcher(ctx context.Context, handler Handler, logger logrus.FieldLogger) *Dispatcher {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{ctx: ctx, handler: handler, logger: logger}
}

// Dispatch parses raw, invokes the handler and returns the response bytes
// together with the keep-alive decision for this exchange. Malformed
// requests are answered with 400 and close the connection.
func (d *Dispatcher) Dispatch(raw []byte) ([]byte, bool) {
	req, err := ParseRequest(raw)
	if err != nil {
		d.logger.WithError(err).Debug("rejecting malformed request")
		return Error(400, err.Error()).AppendWire(nil, sHTTP11, false), false
	}

	keepAlive := KeepAlive(req)
	resp := d.serve(req)
	return resp.AppendWire(make([]byte, 0, 256+len(resp.Body)), req.Version, keepAlive), keepAlive
}

// serve runs the handler, converting panics and nil results into 500.
func (d *Dispatcher) serve(req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{
				"method": req.Method,
				"path":   req.Path,
				"panic":  fmt.Sprint(r),
			}).Error("handler panicked")
			resp = Error(500, "")
		}
	}()

	if d.handler == nil {
		return Error(404, "")
	}
	resp = d.handler.Serve(d.ctx, req)
	if resp == nil {
		return Error(500, "")
	}
	return resp
}
