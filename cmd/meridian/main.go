package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-hq/meridian-access/internal/app"
	"github.com/meridian-hq/meridian-access/internal/audit"
	"github.com/meridian-hq/meridian-access/internal/auth"
	"github.com/meridian-hq/meridian-access/internal/observability"
	"github.com/meridian-hq/meridian-access/internal/permission"
	"github.com/meridian-hq/meridian-access/internal/platform/cache"
	"github.com/meridian-hq/meridian-access/internal/platform/db"
	"github.com/meridian-hq/meridian-access/internal/roles"
	"github.com/meridian-hq/meridian-access/internal/users"
	"github.com/meridian-hq/meridian-access/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
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

	permissionRepo := permission.NewRepository(dbpool)
	permissionCache := permission.NewCache(redisClient, cfg.PermissionCacheTTL, cfg.DecisionCacheTTL)

	auditRepo := audit.NewRepository(dbpool)
	auditSink := audit.NewStoreSink(auditRepo, logger)
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	auditEnqueuer := jobs.NewAuditEnqueuer(jobsClient.Raw(), auditSink, logger)

	resolver := permission.NewResolver(permission.ResolverConfig{
		Store:          permissionRepo,
		Cache:          permissionCache,
		Audit:          auditEnqueuer,
		Logger:         logger,
		Metrics:        metrics,
		SuperAdminRole: cfg.SuperAdminRole,
	})
	permissionService := permission.NewService(permissionRepo, permissionCache, logger)
	permissionHandler := permission.NewHandler(logger, resolver, permissionService, permissionRepo)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService)

	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, permissionCache, logger)
	rolesHandler := roles.NewHandler(logger, rolesService)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService)

	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthMiddleware:    auth.Middleware{Service: authService, Logger: logger},
		RequirePermission: permission.Middleware{Resolver: resolver, Logger: logger},
		AuthHandler:       authHandler,
		PermissionHandler: permissionHandler,
		RolesHandler:      rolesHandler,
		UsersHandler:      usersHandler,
		AuditHandler:      auditHandler,
		JobsHandler:       jobsHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
