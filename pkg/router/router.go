// Package router is a small method and path router with request logging.
package router

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HandlerFunc handles one routed request.
type HandlerFunc func(http.ResponseWriter, *http.Request)

// Router dispatches on METHOD:PATH. A path segment "*" matches any single
// segment; a trailing "*" matches any remainder.
type Router struct {
	routes map[string]http.Handler // key = METHOD:PATH
	paths  map[string]bool
	order  []string
	logger *zap.Logger
}

func New(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		routes: make(map[string]http.Handler),
		paths:  make(map[string]bool),
		logger: logger,
	}
}

// ServeHTTP routes req and logs the outcome.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

	if h, status := r.lookup(req.Method, req.URL.Path); h != nil {
		h.ServeHTTP(lrw, req)
	} else {
		http.Error(lrw, http.StatusText(status), status)
	}

	r.logger.Info("http request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", lrw.statusCode),
		zap.Duration("duration", time.Since(start)),
	)
}

func (r *Router) lookup(method, path string) (http.Handler, int) {
	if h, ok := r.routes[method+":"+path]; ok {
		return h, http.StatusOK
	}
	matched := r.paths[path]
	// Same-length patterns win over a trailing "*" that swallows the remainder.
	for _, remainder := range []bool{false, true} {
		for _, routePath := range r.order {
			if !strings.Contains(routePath, "*") || !matchWildcardRoute(path, routePath, remainder) {
				continue
			}
			if h, ok := r.routes[method+":"+routePath]; ok {
				return h, http.StatusOK
			}
			matched = true
		}
	}
	if matched {
		return nil, http.StatusMethodNotAllowed
	}
	return nil, http.StatusNotFound
}

func matchWildcardRoute(requestPath, routePattern string, remainder bool) bool {
	requestSegments := strings.Split(strings.Trim(requestPath, "/"), "/")
	routeSegments := strings.Split(strings.Trim(routePattern, "/"), "/")

	if remainder {
		if routeSegments[len(routeSegments)-1] != "*" || len(requestSegments) <= len(routeSegments) {
			return false
		}
		requestSegments = requestSegments[:len(routeSegments)]
	}
	if len(requestSegments) != len(routeSegments) {
		return false
	}
	for i, routeSegment := range routeSegments {
		if routeSegment == "*" {
			if requestSegments[i] == "" {
				return false
			}
			continue
		}
		if requestSegments[i] != routeSegment {
			return false
		}
	}
	return true
}

// Segment returns the i-th slash separated segment of path, or "".
func Segment(path string, i int) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if i < 0 || i >= len(segs) {
		return ""
	}
	return segs[i]
}

// Handle registers h for method and path.
func (r *Router) Handle(method, path string, h http.Handler) {
	if !r.paths[path] {
		r.order = append(r.order, path)
	}
	r.routes[method+":"+path] = h
	r.paths[path] = true
}

func (r *Router) GET(path string, handler HandlerFunc) {
	r.Handle(http.MethodGet, path, http.HandlerFunc(handler))
}

// Routes returns the registered METHOD:PATH keys in registration order.
func (r *Router) Routes() []string {
	var keys []string
	for _, p := range r.order {
		for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
			if _, ok := r.routes[m+":"+p]; ok {
				keys = append(keys, m+":"+p)
			}
		}
	}
	return keys
}

// Serve serves on l until ctx is done, then shuts down gracefully.
func (r *Router) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()

	r.logger.Info("status server started", zap.String("addr", l.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on addr and serves until ctx is done.
func (r *Router) Start(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return r.Serve(ctx, l)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}
