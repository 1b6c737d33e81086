package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quickfood/quickfood-backend/internal/app"
	"github.com/quickfood/quickfood-backend/internal/auth"
	"github.com/quickfood/quickfood-backend/internal/observability"
	"github.com/quickfood/quickfood-backend/internal/platform/cache"
	"github.com/quickfood/quickfood-backend/internal/platform/db"
	"github.com/quickfood/quickfood-backend/internal/rbac"
	"github.com/quickfood/quickfood-backend/internal/token"
	"github.com/quickfood/quickfood-backend/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Degraded but functional: permission checks fall back to the store.
		logger.Warn("redis unavailable, permission cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	rbacRepo := rbac.NewRepository(pool)
	permCache := rbac.NewPermissionCache(redisClient, cfg.PermissionCacheTTL)
	rbacService := rbac.NewService(rbacRepo, permCache, logger)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	rbacHandler := rbac.NewHandler(logger, rbacService)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService)

	codec := token.NewCodec(cfg.JWTSecret)
	authService := auth.NewService(usersRepo, rbacService, codec, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	cookies := auth.Cookies{
		Secure:     cfg.SecureCookies || cfg.IsProduction(),
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
	}
	authenticator := auth.NewAuthenticator(authService, cookies, logger).
		WithRefreshObserver(metrics.TokenRefreshed)
	authHandler := auth.NewHandler(logger, authService, cookies)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Authenticator:  authenticator,
		AuthHandler:    authHandler,
		UsersHandler:   usersHandler,
		RBACHandler:    rbacHandler,
		RBACMiddleware: rbacMiddleware,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
