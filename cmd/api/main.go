package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/playlist-gateway/internal/api/http"
	"github.com/spec-kit/playlist-gateway/internal/api/http/handlers"
	"github.com/spec-kit/playlist-gateway/internal/auth"
	"github.com/spec-kit/playlist-gateway/internal/config"
	"github.com/spec-kit/playlist-gateway/internal/events"
	"github.com/spec-kit/playlist-gateway/internal/observability"
	"github.com/spec-kit/playlist-gateway/internal/persistence"
	"github.com/spec-kit/playlist-gateway/internal/repository"
	"github.com/spec-kit/playlist-gateway/internal/retry"
	"github.com/spec-kit/playlist-gateway/internal/service"
	"github.com/spec-kit/playlist-gateway/internal/session"
	"github.com/spec-kit/playlist-gateway/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		TTL:      cfg.Auth.TokenTTL(),
	})
	if err != nil {
		logger.Fatal("invalid token configuration", zap.Error(err))
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var users repository.UserRepository
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		users = repository.NewUserRepository(pg.Pool)
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()
	sessions := session.NewStore(redis.Client)

	metrics := observability.NewMetrics()
	executor := retry.NewExecutor(logger.Named("retry"), retry.WithObserver(metrics))
	music := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout())

	dispatcher := events.NewInMemoryDispatcher()
	audit := service.NewAuditService(dispatcher, logger.Named("audit"))
	audit.RegisterHandlers()
	defer audit.Close()

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		Sessions: sessions,
		Tokens:   tokens,
		Profiles: music,
		Users:    users,
		Events:   dispatcher,
		Executor: executor,
		Logger:   logger,
	})
	playlistService := service.NewPlaylistService(music, users, executor, service.BudgetFromConfig(cfg.Upstream), logger)

	validator := auth.NewClaimValidator(cfg.Auth.Issuer, cfg.Auth.Audience, logger.Named("claims"))
	resolver := auth.NewResolver(sessions, authService.TokenCodec(), validator, logger.Named("auth"))
	authMiddleware := auth.NewAuthMiddleware(resolver, cfg.Auth.SessionCookieName, metrics, logger.Named("auth"))

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, redis, pg),
		Auth:           handlers.NewAuthHandler(authService, cfg.Auth),
		Playlists:      handlers.NewPlaylistsHandler(playlistService),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
