/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, picked up by the slog handler
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the kitchen/admin frontends

ROUTE GROUPS:
  /api/reservations/*       Reservation lifecycle
  /api/users/*              User catalog and history
  /api/menus/*              Menu catalog
  /api/admin/*              Cutoff-exempt operations and scheduler control
  /api/scenarios/*          Demo data
  /healthz                  Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - scheduler.go: Scheduler admin handlers
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", h.ListReservations)
			r.Post("/", h.CreateReservation)
			r.Get("/{id}", h.GetReservation)
			r.Put("/{id}", h.UpdateReservation)
			r.Post("/{id}/cancel", h.CancelReservation)
			r.Post("/{id}/reactivate", h.ReactivateReservation)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/reservations", h.GetUserReservations)
		})

		r.Route("/menus", func(r chi.Router) {
			r.Get("/", h.GetMenuByDate)
			r.Post("/", h.CreateMenu)
			r.Get("/{id}", h.GetMenu)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Route("/reservations", func(r chi.Router) {
				r.Post("/{id}/cancel", h.AdminCancelReservation)
				r.Post("/{id}/reactivate", h.AdminReactivateReservation)
				r.Put("/{id}/variation", h.AdminChangeVariation)
			})

			r.Route("/scheduler", func(r chi.Router) {
				r.Get("/status", h.GetSchedulerStatus)
				r.Get("/health", h.GetSchedulerHealth)
				r.Post("/start", h.StartScheduler)
				r.Post("/stop", h.StopScheduler)
				r.Post("/execute", h.ExecuteScheduler)
				r.Post("/retry", h.RetryScheduler)
				r.Post("/dates", h.CreateReservationsForDate)
				r.Post("/range", h.CreateReservationsForRange)
				r.Put("/config", h.UpdateSchedulerConfig)
			})
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
