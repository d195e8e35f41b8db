package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes возвращает роутер со всеми маршрутами агента.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Chain(
		Recovery(h.logger),
		Logging(h.logger),
	))
	r.NotFound(NotFound)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/test/healthcheck", h.Healthcheck)
		r.Get("/test/health", h.Health)
		r.Post("/test/health", h.HealthRows)
		r.Post("/test/reachability", h.Reachability)
		r.Post("/agent/query_completed", h.QueryCompleted)
	})

	r.Get("/healthz", h.Healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	return r
}
