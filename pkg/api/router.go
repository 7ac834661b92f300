// Package api provides the HTTP API server.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/coinsaga/coinsaga/pkg/api/handlers"
	"github.com/coinsaga/coinsaga/pkg/api/middleware"
	"github.com/coinsaga/coinsaga/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Transaction handles transaction endpoints
	Transaction *handlers.TransactionHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a chi router with middleware and routes.
func NewRouter(log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics))
	}

	RegisterRoutes(r, h)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireUser())

		if h.Transaction != nil {
			r.Route("/transactions", func(r chi.Router) {
				r.Post("/", h.Transaction.CreateTransaction)
				r.Get("/", h.Transaction.ListTransactions)
				r.Get("/{id}", h.Transaction.GetTransaction)
				r.Delete("/{id}", h.Transaction.DeleteTransaction)
			})
		}
	})

	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
	}
}
