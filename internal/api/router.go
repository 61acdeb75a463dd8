package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/blue-kestrel/shipsentry/internal/api/alerts"
	"github.com/blue-kestrel/shipsentry/internal/api/middleware"
	"github.com/blue-kestrel/shipsentry/internal/api/notifications"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestLogger(s.config.Verbose))
	r.Use(middleware.Instrument)
	r.Use(middleware.Recoverer)

	alertHandler := alerts.NewHandler(s.storage, s.suppressor, s.lifecycle, s.config.RequestTimeout)
	notificationHandler := notifications.NewHandler(s.storage, s.dispatcher, s.config.RequestTimeout)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/alerts", func(r chi.Router) {
			r.Post("/", alertHandler.Ingest)
			r.Get("/", alertHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", alertHandler.GetByID)
				r.Get("/escalations", alertHandler.ListEscalations)
				r.Get("/notifications", notificationHandler.ListByAlert)
				r.Post("/acknowledge", alertHandler.Acknowledge)
				r.Post("/start", alertHandler.Start)
				r.Post("/resolve", alertHandler.Resolve)
				r.Post("/dismiss", alertHandler.Dismiss)
				r.Post("/close", alertHandler.Close)
			})
		})

		r.Route("/notifications/{id}", func(r chi.Router) {
			r.Get("/", notificationHandler.GetByID)
			r.Get("/deliveries", notificationHandler.GetDeliveryStatus)
			r.Post("/interactions", notificationHandler.RecordInteraction)
			r.Get("/interactions", notificationHandler.ListInteractions)
		})
	})

	// Health endpoints (public)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	return r
}
