// Package api provides HTTP API server components.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/offerforge/offerforge/config"
	"github.com/offerforge/offerforge/pkg/api/handlers"
	"github.com/offerforge/offerforge/pkg/api/middleware"
	"github.com/offerforge/offerforge/pkg/logger"

	_ "github.com/offerforge/offerforge/docs/swagger" // Import generated docs
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Journey handles composition session endpoints
	Journey *handlers.JourneyHandler

	// Offer handles submitted offer endpoints
	Offer *handlers.OfferHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// Events streams journey events over websocket
	Events *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	// Register global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))

	// Add metrics middleware if provided
	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))

	// The event stream is long lived and stays outside the request timeout.
	if handlers.Events != nil {
		r.Method(http.MethodGet, "/ws", handlers.Events)
	}

	r.Group(func(r chi.Router) {
		if cfg.Server.HTTP.ReadTimeout > 0 {
			r.Use(middleware.Timeout(cfg.Server.HTTP.ReadTimeout))
		}
		RegisterRoutes(r, handlers)
	})

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		if handlers.Journey != nil {
			j := handlers.Journey
			r.Route("/journeys", func(r chi.Router) {
				r.Post("/", j.CreateJourney)
				r.Get("/", j.ListJourneys)
				r.Post("/hydrate", j.HydrateJourney)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", j.GetJourney)
					r.Delete("/", j.CancelJourney)

					r.Post("/advance", j.Advance)
					r.Post("/skip", j.Skip)
					r.Post("/retreat", j.Retreat)
					r.Post("/retry-search", j.RetrySearch)
					r.Post("/reset", j.Reset)

					r.Post("/select", j.Select)
					r.Post("/deselect", j.Deselect)
					r.Put("/destination", j.SetDestination)
					r.Put("/markup", j.SetMarkup)
					r.Put("/duration", j.SetDuration)
					r.Put("/validity", j.SetValidity)
					r.Put("/filter", j.SetFilter)

					r.Get("/totals", j.GetTotals)
					r.Get("/rooms", j.GetRoomQuotes)
					r.Post("/submit", j.Submit)
				})
			})
		}

		if handlers.Offer != nil {
			r.Route("/offers", func(r chi.Router) {
				r.Get("/", handlers.Offer.ListOffers)
				r.Get("/{id}", handlers.Offer.GetOffer)
				r.Post("/{id}/edit", handlers.Offer.EditOffer)
			})
		}
	})

	// Health check routes (not versioned)
	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.WrapHandler)
}
