package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sucursal-ops/sucursal-ops/internal/app"
	"github.com/sucursal-ops/sucursal-ops/internal/count"
	jobmetrics "github.com/sucursal-ops/sucursal-ops/internal/jobs"
	"github.com/sucursal-ops/sucursal-ops/internal/platform/cache"
	"github.com/sucursal-ops/sucursal-ops/internal/platform/db"
	"github.com/sucursal-ops/sucursal-ops/internal/refdata"
	"github.com/sucursal-ops/sucursal-ops/internal/shared"
	"github.com/sucursal-ops/sucursal-ops/internal/task"
	"github.com/sucursal-ops/sucursal-ops/jobs"
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

	sourcePool, err := db.New(ctx, cfg.SourcePGDSN)
	if err != nil {
		logger.Error("connect source store", slog.Any("error", err))
		os.Exit(1)
	}
	defer sourcePool.Close()

	annexPool, err := db.New(ctx, cfg.AnnexPGDSN)
	if err != nil {
		logger.Error("connect annex store", slog.Any("error", err))
		os.Exit(1)
	}
	defer annexPool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	resolver := refdata.New(sourcePool, redisClient, cfg.RefdataCacheTTL)
	auditTrail := shared.NewAuditTrail(annexPool, logger)

	taskRepo := task.NewRepository(sourcePool)
	countRepo := count.NewRepository(annexPool)
	countService := count.NewService(countRepo, taskRepo, resolver, auditTrail, logger)

	metrics := jobmetrics.NewMetrics(nil)
	archiveJob := jobs.NewWeeklyArchiveJob(sourcePool, annexPool, logger, metrics)
	reconcileJob := jobs.NewReconcileOrphansJob(sourcePool, countService, logger, metrics)

	weeklyTask, err := jobs.NewWeeklyArchiveTask(time.Time{})
	if err != nil {
		logger.Error("prepare weekly archive task", slog.Any("error", err))
		os.Exit(1)
	}
	reconcileTask, err := jobs.NewReconcileOrphansTask(int(cfg.OrphanGrace / time.Minute))
	if err != nil {
		logger.Error("prepare orphan reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskWeeklyArchive, Handler: archiveJob.Handle},
			{Type: jobs.TaskReconcileOrphans, Handler: reconcileJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 3 * * 1", Task: weeklyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("configure worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
