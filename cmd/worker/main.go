package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-hq/meridian-access/internal/app"
	"github.com/meridian-hq/meridian-access/internal/audit"
	jobmetrics "github.com/meridian-hq/meridian-access/internal/jobs"
	"github.com/meridian-hq/meridian-access/internal/permission"
	"github.com/meridian-hq/meridian-access/internal/platform/db"
	"github.com/meridian-hq/meridian-access/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	permissionRepo := permission.NewRepository(pool)
	auditRepo := audit.NewRepository(pool)
	auditSink := audit.NewStoreSink(auditRepo, logger)
	metrics := jobmetrics.NewMetrics(nil)

	integrityTask, err := jobs.NewIntegrityScanTask(time.Now().UTC())
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeAuditDecision, Handler: jobs.NewAuditDecisionHandler(auditSink, metrics)},
			{Type: jobs.TaskTypeIntegrityScan, Handler: jobs.NewIntegrityScanHandler(permissionRepo, logger, metrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 1 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
