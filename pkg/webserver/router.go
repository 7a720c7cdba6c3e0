package webserver

import (
	"context"
	"fmt"
	"strings"
)

// Router implements request routing with support for parameters, middleware, and groups.
type Router struct {
	routes      map[string]*routeNode
	middlewares []Middleware
	notFound    Handler
	unsupported Handler
}

type routeNode struct {
	path      string
	handler   Handler
	children  map[string]*routeNode
	isParam   bool
	paramName string
	isWild    bool
}

// NewRouter creates a new Router with default not found and unsupported
// method handlers.
func NewRouter() *Router {
	return &Router{
		routes: make(map[string]*routeNode),
		notFound: HandlerFunc(func(_ context.Context, req *Request) *Response {
			return Error(404, "no route for "+req.Path)
		}),
		unsupported: HandlerFunc(func(_ context.Context, _ *Request) *Response {
			return Error(400, "Unsupported HTTP method")
		}),
	}
}

// Use adds one or more middleware functions to the router's middleware stack.
func (r *Router) Use(middlewares ...Middleware) {
	r.middlewares = append(r.middlewares, middlewares...)
}

// NotFound sets the handler that will be called for paths that do not match
// any route registered for the request method.
func (r *Router) NotFound(handler interface{}) {
	r.notFound = r.wrapHandler(handler)
}

// Unsupported sets the handler for methods that have no routes at all.
func (r *Router) Unsupported(handler interface{}) {
	r.unsupported = r.wrapHandler(handler)
}

// GET registers a handler for GET requests. HEAD requests fall back to it
// when no HEAD route matches.
func (r *Router) GET(path string, handler interface{}) {
	r.addRoute("GET", path, r.wrapHandler(handler))
}

// POST registers a handler for POST requests.
func (r *Router) POST(path string, handler interface{}) {
	r.addRoute("POST", path, r.wrapHandler(handler))
}

// PUT registers a handler for PUT requests.
func (r *Router) PUT(path string, handler interface{}) {
	r.addRoute("PUT", path, r.wrapHandler(handler))
}

// DELETE registers a handler for DELETE requests.
func (r *Router) DELETE(path string, handler interface{}) {
	r.addRoute("DELETE", path, r.wrapHandler(handler))
}

// HEAD registers a handler for HEAD requests.
func (r *Router) HEAD(path string, handler interface{}) {
	r.addRoute("HEAD", path, r.wrapHandler(handler))
}

// Handle registers a handler for the specified HTTP method.
func (r *Router) Handle(method, path string, handler interface{}) {
	r.addRoute(method, path, r.wrapHandler(handler))
}

func (r *Router) wrapHandler(handler interface{}) Handler {
	switch h := handler.(type) {
	case Handler:
		return h
	case func(context.Context, *Request) *Response:
		return HandlerFunc(h)
	default:
		panic(fmt.Sprintf("invalid handler type: %T", handler))
	}
}

func (r *Router) addRoute(method, path string, handler Handler) {
	if path == "" || path[0] != '/' {
		panic("path must begin with '/'")
	}

	root, ok := r.routes[method]
	if !ok {
		root = &routeNode{
			path:     "/",
			children: make(map[string]*routeNode),
		}
		r.routes[method] = root
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 1 && segments[0] == "" {
		root.handler = handler
		return
	}

	current := root
	for _, segment := range segments {
		if segment == "" {
			continue
		}

		isParam := strings.HasPrefix(segment, ":")
		isWild := strings.HasPrefix(segment, "*")

		key := segment
		if isParam || isWild {
			key = segment[0:1]
		}

		child, ok := current.children[key]
		if !ok {
			child = &routeNode{
				path:     segment,
				children: make(map[string]*routeNode),
				isParam:  isParam,
				isWild:   isWild,
			}
			if isParam || isWild {
				child.paramName = segment[1:]
			}
			current.children[key] = child
		}

		current = child
	}

	current.handler = handler
}

// Serve implements Handler. Unknown methods get the unsupported handler,
// unmatched paths the not found handler. A HEAD request without its own
// route runs the GET route and the body is dropped.
func (r *Router) Serve(ctx context.Context, req *Request) *Response {
	handler, head := r.route(req)

	if len(r.middlewares) > 0 {
		handler = Chain(r.middlewares...)(handler)
	}

	resp := handler.Serve(ctx, req)
	if head && resp != nil {
		resp.Body = nil
	}
	return resp
}

func (r *Router) route(req *Request) (Handler, bool) {
	isHead := req.Method == "HEAD"
	if h, params, ok := r.FindRoute(req.Method, req.Path); ok {
		req.Params = params
		return h, false
	}
	if isHead {
		if h, params, ok := r.FindRoute("GET", req.Path); ok {
			req.Params = params
			return h, true
		}
	}

	_, known := r.routes[req.Method]
	if !known && isHead {
		_, known = r.routes["GET"]
	}
	if !known {
		return r.unsupported, false
	}
	return r.notFound, isHead
}

// FindRoute locates the handler registered for method and path. It returns
// the handler, any extracted route parameters and whether a route matched.
func (r *Router) FindRoute(method, path string) (Handler, map[string]string, bool) {
	root, ok := r.routes[method]
	if !ok {
		return nil, nil, false
	}

	if q := strings.IndexByte(path, '?'); q >= 0 {
		path = path[:q]
	}

	trimmed := strings.Trim(path, "/")
	var params map[string]string

	current := root
	start := 0
	for i := 0; i <= len(trimmed); i++ {
		if i < len(trimmed) && trimmed[i] != '/' {
			continue
		}
		segStart := start
		segment := trimmed[start:i]
		start = i + 1
		if segment == "" {
			continue
		}

		if child, ok := current.children[segment]; ok {
			current = child
			continue
		}

		if child, ok := current.children[":"]; ok {
			if params == nil {
				params = make(map[string]string, 2)
			}
			params[child.paramName] = segment
			current = child
			continue
		}

		if child, ok := current.children["*"]; ok {
			// Wildcard consumes the rest of the path.
			if params == nil {
				params = make(map[string]string, 1)
			}
			params[child.paramName] = trimmed[segStart:]
			return child.handler, params, child.handler != nil
		}

		return nil, nil, false
	}

	if current.handler == nil {
		if child, ok := current.children["*"]; ok && child.handler != nil {
			if params == nil {
				params = make(map[string]string, 1)
			}
			params[child.paramName] = ""
			return child.handler, params, true
		}
		return nil, nil, false
	}

	return current.handler, params, true
}

// Group allows organizing routes with a common path prefix and shared middleware stack.
type Group struct {
	router      *Router
	prefix      string
	middlewares []Middleware
}

// Group creates a new route group with the specified path prefix and optional middleware.
func (r *Router) Group(prefix string, middlewares ...Middleware) *Group {
	return &Group{
		router:      r,
		prefix:      prefix,
		middlewares: middlewares,
	}
}

// Use adds one or more middleware functions to the route group's middleware stack.
func (g *Group) Use(middlewares ...Middleware) {
	g.middlewares = append(g.middlewares, middlewares...)
}

// GET registers a handler for GET requests in the group.
func (g *Group) GET(path string, handler interface{}) {
	g.handle("GET", path, g.router.wrapHandler(handler))
}

// POST registers a handler for POST requests in the group.
func (g *Group) POST(path string, handler interface{}) {
	g.handle("POST", path, g.router.wrapHandler(handler))
}

// PUT registers a handler for PUT requests in the group.
func (g *Group) PUT(path string, handler interface{}) {
	g.handle("PUT", path, g.router.wrapHandler(handler))
}

// DELETE registers a handler for DELETE requests in the group.
func (g *Group) DELETE(path string, handler interface{}) {
	g.handle("DELETE", path, g.router.wrapHandler(handler))
}

// Handle registers a handler for the specified HTTP method in the group.
func (g *Group) Handle(method, path string, handler interface{}) {
	g.handle(method, path, g.router.wrapHandler(handler))
}

func (g *Group) handle(method, path string, handler Handler) {
	fullPath := g.prefix + path

	if len(g.middlewares) > 0 {
		handler = Chain(g.middlewares...)(handler)
	}

	g.router.addRoute(method, fullPath, handler)
}

// Group creates a nested group with combined prefixes and middleware.
func (g *Group) Group(prefix string, middlewares ...Middleware) *Group {
	combined := make([]Middleware, 0, len(g.middlewares)+len(middlewares))
	combined = append(combined, g.middlewares...)
	combined = append(combined, middlewares...)
	return &Group{
		router:      g.router,
		prefix:      g.prefix + prefix,
		middlewares: combined,
	}
}
