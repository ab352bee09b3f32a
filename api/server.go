/*
server.go - HTTP router and middleware configuration

ROUTER: chi
MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard frontends

ROUTE GROUPS:
  /api/timers/*       Timer lifecycle (start/stop/waive/snapshot)
  /api/loads/*        Per-load timer views (live and history)
  /api/settlements/*  Settlement assembly and workflow
  /api/drivers/*      Settlement history per driver
  /api/admin/*        Operator actions (manual promotion sweep)

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/timers", func(r chi.Router) {
			r.Post("/", h.StartTimer)
			r.Get("/{id}", h.GetTimerSnapshot)
			r.Post("/{id}/stop", h.StopTimer)
			r.Post("/{id}/waive", h.WaiveTimer)
		})

		r.Route("/loads/{id}/timers", func(r chi.Router) {
			r.Get("/", h.LoadTimerHistory)
			r.Get("/active", h.LoadActiveSnapshots)
		})

		r.Route("/settlements", func(r chi.Router) {
			r.Post("/", h.CreateSettlement)
			r.Get("/{id}", h.GetSettlement)
			r.Post("/{id}/{action}", h.TransitionSettlement)
		})

		r.Get("/drivers/{id}/settlements", h.ListDriverSettlements)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/timers/promote", h.PromoteTimers)
		})
	})

	return r
}
