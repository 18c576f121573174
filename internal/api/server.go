// Package api provides the REST API server for the package library.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/zimshelf/zim-library/internal/api/v1"
)

// ServerOption configures the library API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	metricsHandler http.Handler
	readiness      v1.ReadinessCheck
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetricsHandler serves h on /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// WithReadinessCheck sets the check behind /readiness
func WithReadinessCheck(check v1.ReadinessCheck) ServerOption {
	return func(cfg *serverConfig) {
		cfg.readiness = check
	}
}

// NewServer creates and configures the HTTP router for the given backend
func NewServer(backend v1.Backend, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		middlewares: []func(http.Handler) http.Handler{},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.readiness == nil && backend.Store != nil {
		cfg.readiness = storeReadiness(backend)
	}

	r := chi.NewRouter()

	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	// Mount health check routes directly at root
	r.Mount("/", v1.HealthRouter(cfg.readiness))

	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}

	r.Mount("/v1", v1.Router(backend))

	return r
}

// storeReadiness reports ready once the store answers a schema query
func storeReadiness(backend v1.Backend) v1.ReadinessCheck {
	return func(ctx context.Context) error {
		_, err := backend.Store.SchemaVersion(ctx)
		return err
	}
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
