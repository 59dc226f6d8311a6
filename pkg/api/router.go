// Package api provides HTTP API server components.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goclaw/dayloop/config"
	"github.com/goclaw/dayloop/pkg/api/handlers"
	"github.com/goclaw/dayloop/pkg/api/middleware"
	"github.com/goclaw/dayloop/pkg/logger"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/goclaw/dayloop/docs/swagger" // Register OpenAPI docs
)

const defaultRequestTimeout = 30 * time.Second

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Actors handles actor, plan and action endpoints
	Actors *handlers.ActorHandler

	// Memory handles memory endpoints
	Memory *handlers.MemoryHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// Events streams actor events over websocket
	Events *handlers.EventStream

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())

	// The websocket stream hijacks the connection, which the wrapping
	// writers below do not support, so it sits outside them.
	if h.Events != nil {
		r.Handle("/ws/events", h.Events)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger(log))
		r.Use(middleware.Recovery(log))
		r.Use(middleware.Tracing("/health", "/ready"))
		if h.Metrics != nil {
			r.Use(middleware.Metrics(h.Metrics))
		}
		r.Use(middleware.CORS(&cfg.Server.CORS))
		r.Use(middleware.Timeout(requestTimeout(cfg)))

		RegisterRoutes(r, h)
	})

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1/actors", func(r chi.Router) {
		if h.Actors != nil {
			r.Get("/", h.Actors.ListActors)
		}
		r.Route("/{name}", func(r chi.Router) {
			if h.Actors != nil {
				r.Get("/", h.Actors.GetActor)
				r.Get("/plan", h.Actors.GetPlan)
				r.Get("/plans", h.Actors.ListPlanDates)
				r.Post("/plan/revise", h.Actors.RevisePlan)
				r.Post("/plan/expand", h.Actors.ExpandPlan)
				r.Post("/actions", h.Actors.SubmitAction)
				r.Get("/actions/stats", h.Actors.ActionStats)
				r.Post("/perceptions", h.Actors.PushPerception)
			}

			if h.Memory != nil {
				r.Route("/memory", func(r chi.Router) {
					r.Get("/short-term", h.Memory.GetShortTerm)
					r.Post("/short-term", h.Memory.AppendShortTerm)
					r.Get("/long-term", h.Memory.GetLongTerm)
					r.Get("/long-term/search", h.Memory.SearchLongTerm)
					r.Post("/day-end", h.Memory.ProcessDayEnd)
					r.Post("/compact", h.Memory.CompactShortTerm)
					r.Get("/status", h.Memory.GetStatus)
					r.Get("/backups", h.Memory.ListBackups)
					r.Post("/backups", h.Memory.CreateBackup)
					r.Post("/backups/{id}/restore", h.Memory.RestoreBackup)
				})
			}
		})
	})

	// Health check routes (not versioned)
	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.WrapHandler)
}

func requestTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.HTTP.RequestTimeout > 0 {
		return cfg.Server.HTTP.RequestTimeout
	}
	if cfg.Server.HTTP.ReadTimeout > 0 {
		return cfg.Server.HTTP.ReadTimeout
	}
	return defaultRequestTimeout
}
