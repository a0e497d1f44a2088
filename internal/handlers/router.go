package handlers

import (
	"net/http"

	"geoping/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the API, health and metrics endpoints.
func NewRouter(locations *LocationHandler, health *HealthHandler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}))

	r.Post("/api/locations", locations.HandleSubmit)
	r.Get("/api/locations", locations.HandleList)
	r.Get("/healthz", health.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
