package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/playlist-gateway/internal/api/http/handlers"
	"github.com/spec-kit/playlist-gateway/internal/auth"
	"github.com/spec-kit/playlist-gateway/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Playlists      *handlers.PlaylistsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes. Only /api resolves and demands an identity.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/logout", cfg.Auth.Logout)

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireIdentity())
	api.Get("/me", cfg.Playlists.Me)
	api.Get("/playlists", cfg.Playlists.List)
}
