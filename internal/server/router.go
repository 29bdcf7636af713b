package server

import (
	"net/http"
	"slices"
	"strings"
)

// BasicRouter is a method-aware router implementing the [Router] interface.
//
// Patterns go to an [http.ServeMux], so they may carry wildcards such as "/join/{id}".
// Several methods can share one pattern; a request for any other method gets 405 with an Allow header.
type BasicRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
	routes      map[string]map[string]http.Handler
}

// NewBasicRouter creates a new [BasicRouter] instance.
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{
		mux:         http.NewServeMux(),
		middlewares: []Middleware{},
		routes:      make(map[string]map[string]http.Handler),
	}
}

// Use adds [Middleware] to the stack. Only routes registered afterwards are wrapped.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers handler for method on path. Registering the same pair twice replaces the handler.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	method = strings.ToUpper(method)

	methods, ok := r.routes[path]
	if !ok {
		methods = make(map[string]http.Handler)
		r.routes[path] = methods
		r.mux.Handle(path, r.Apply(r.dispatch(methods)))
	}
	methods[method] = handler
}

// dispatch picks the handler for the request method. HEAD falls back to GET.
func (r *BasicRouter) dispatch(methods map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h, ok := methods[req.Method]
		if !ok && req.Method == http.MethodHead {
			h, ok = methods[http.MethodGet]
		}
		if !ok {
			allowed := make([]string, 0, len(methods))
			for m := range methods {
				allowed = append(allowed, m)
			}
			slices.Sort(allowed)
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, req)
	})
}

// Handler registers a custom Handler implementation on every path in [Handler.Routes].
//
// The handler sees all methods and does its own method checks.
func (r *BasicRouter) Handler(handler Handler) {
	wrapped := r.Apply(handler)

	for _, route := range handler.Routes() {
		r.mux.Handle(route, wrapped)
	}
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Apply wraps a handler with all registered middleware.
//
// The first middleware added is the outermost.
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	wrapped := handler

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		wrapped = r.middlewares[i](wrapped)
	}

	return wrapped
}
