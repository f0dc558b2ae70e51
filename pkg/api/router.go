// Package api provides HTTP API server components.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/nbalepur/fact-repetition/config"
	"github.com/nbalepur/fact-repetition/pkg/api/handlers"
	"github.com/nbalepur/fact-repetition/pkg/api/middleware"
	"github.com/nbalepur/fact-repetition/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Schedule handles scheduling and update endpoints
	Schedule *handlers.ScheduleHandler

	// User handles user and fact management endpoints
	User *handlers.UserHandler

	// Stats handles statistics and leaderboard endpoints
	Stats *handlers.StatsHandler

	// Records handles audit log and replay endpoints
	Records *handlers.RecordsHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// WebSocket streams scheduling events to subscribers
	WebSocket *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	// Register global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	// Add metrics middleware if provided
	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}

	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))

	if cfg.Server.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
		r.Use(middleware.RateLimit(limiter))
	}

	r.Use(middleware.Timeout(cfg.Server.HTTP.ReadTimeout))

	// Register routes
	RegisterRoutes(r, handlers)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		if handlers.Schedule != nil {
			r.Post("/schedule", handlers.Schedule.Schedule)
			r.Post("/update", handlers.Schedule.Update)
		}

		if handlers.User != nil {
			r.Route("/users/{id}", func(r chi.Router) {
				r.Get("/", handlers.User.GetUser)
				r.Put("/policy", handlers.User.SetPolicy)
				r.Post("/reset", handlers.User.ResetUser)
				if handlers.Stats != nil {
					r.Get("/stats", handlers.Stats.UserStats)
				}
			})
			r.Route("/facts/{id}", func(r chi.Router) {
				r.Get("/", handlers.User.GetFact)
				r.Post("/reset", handlers.User.ResetFact)
			})
		}

		if handlers.Stats != nil {
			r.Get("/leaderboard", handlers.Stats.Leaderboard)
		}

		if handlers.Records != nil {
			r.Route("/records", func(r chi.Router) {
				r.Get("/", handlers.Records.ListRecords)
				r.Get("/{id}", handlers.Records.GetRecord)
				r.Get("/{id}/replay", handlers.Records.Replay)
			})
		}
	})

	// Health check routes (not versioned)
	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}

	// Websocket event stream
	if handlers.WebSocket != nil {
		r.Get("/ws/events", handlers.WebSocket.ServeHTTP)
	}
}
