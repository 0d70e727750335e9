// Package router wires the HTTP routes of the reference server
package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iudanet/clinicsync/internal/metrics"
	"github.com/iudanet/clinicsync/internal/server/handlers"
	"github.com/iudanet/clinicsync/internal/server/middleware"
)

// Пути, которые не попадают в access log
var quietPaths = []string{"/api/v1/health", "/metrics"}

// Store is the persistence the routes need
type Store interface {
	handlers.RecordStore
	handlers.Pinger
}

// Deps are the collaborators of the router. Limiter may be nil.
type Deps struct {
	Logger   *slog.Logger
	Store    Store
	Tokens   middleware.TokenValidator
	Feed     *handlers.FeedHub
	Presence *handlers.PresenceHub
	Limiter  *middleware.RateLimiter
}

// New wires all HTTP routes of the server
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RecoveryMiddleware(d.Logger))
	r.Use(middleware.LoggingWithSkip(d.Logger, quietPaths))
	r.Use(metrics.Middleware())

	health := handlers.NewHealthHandler(d.Logger, d.Store)
	r.Get("/api/v1/health", health.Health)
	r.Handle("/metrics", metrics.Handler())

	records := handlers.NewRecordsHandler(d.Logger, d.Store, d.Feed)

	// Все остальное требует токена
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(d.Logger, d.Tokens))
		if d.Limiter != nil {
			r.Use(d.Limiter.Middleware())
		}

		r.Route("/api/v1/records/{entity}", func(r chi.Router) {
			r.Get("/", records.List)
			r.Post("/", records.Create)
			r.Put("/{id}", records.Replace)
			r.Patch("/{id}", records.Patch)
			r.Delete("/{id}", records.Delete)
		})
		r.Get("/api/v1/feed", d.Feed.Serve)
		r.Get("/api/v1/presence/{channel}", d.Presence.Serve)
	})

	return r
}
