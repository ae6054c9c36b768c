package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"smartcrm-hq/conductor/pkg/server/middleware"
	"smartcrm-hq/conductor/pkg/telemetry/health"
	"smartcrm-hq/conductor/pkg/telemetry/tracing"
)

// Handler returns the routed HTTP handler with the middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.Logging(s.logger))
	r.Use(tracing.HTTPMiddleware)
	r.Use(middleware.BodyLimit(s.config.MaxBodyBytes))

	h := newHandlers(s.deps, s.logger)

	r.Route("/v1", func(r chi.Router) {
		if s.keys != nil {
			r.Use(middleware.Auth(s.keys, s.config.Auth.Header, s.logger))
		}
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.executeRequest)
			r.Post("/async", h.submitRequest)
			r.Get("/metrics", h.requestMetrics)
			r.Get("/{id}", h.getRequest)
		})
		r.Delete("/cache", h.invalidateCache)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", h.addTask)
			r.Get("/metrics", h.taskMetrics)
			r.Get("/{id}", h.getTask)
			r.Delete("/{id}", h.cancelTask)
		})

		r.Get("/providers", h.listProviders)
	})

	if s.deps.Health != nil {
		r.Get("/health", s.deps.Health.LivenessHandler())
		r.Get("/ready", s.deps.Health.ReadinessHandler())
	}
	v := s.deps.Version
	r.Get("/version", health.VersionHandler(v.Version, v.Commit, v.BuildTime))
	if s.deps.Metrics != nil {
		path := s.deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, s.deps.Metrics.Handler())
	}

	return r
}
