package webserver

import "github.com/y0ncha/web-server/internal/h1"

// Request is a parsed HTTP/1.x request.
type Request = h1.Request

// Response is the value a handler returns; the server serializes it.
type Response = h1.Response

// Handler defines the interface for request handlers.
type Handler = h1.Handler

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc = h1.HandlerFunc

// Middleware is a function that wraps a Handler with additional functionality.
type Middleware func(Handler) Handler

// Chain combines multiple middlewares into a single middleware.
func Chain(middlewares ...Middleware) Middleware {
	return func(final Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Text returns a text/plain response.
func Text(status int, body string) *Response { return h1.Text(status, body) }

// HTML returns a text/html response.
func HTML(status int, body []byte) *Response { return h1.HTML(status, body) }

// Error returns a text/plain response whose body is the status text
// followed by detail.
func Error(status int, detail string) *Response { return h1.Error(status, detail) }
