package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sucursal-ops/sucursal-ops/cmd/sucursalops/cli"
	"github.com/sucursal-ops/sucursal-ops/internal/app"
	"github.com/sucursal-ops/sucursal-ops/internal/auth"
	"github.com/sucursal-ops/sucursal-ops/internal/authz"
	"github.com/sucursal-ops/sucursal-ops/internal/count"
	"github.com/sucursal-ops/sucursal-ops/internal/observability"
	"github.com/sucursal-ops/sucursal-ops/internal/platform/cache"
	"github.com/sucursal-ops/sucursal-ops/internal/platform/db"
	"github.com/sucursal-ops/sucursal-ops/internal/refdata"
	"github.com/sucursal-ops/sucursal-ops/internal/shared"
	"github.com/sucursal-ops/sucursal-ops/internal/suggestion"
	"github.com/sucursal-ops/sucursal-ops/internal/task"
	"github.com/sucursal-ops/sucursal-ops/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobsCommand(os.Args[2:]))
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

	sessionManager := shared.NewSessionManager(redisClient, "sucursal_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditTrail := shared.NewAuditTrail(annexPool, logger)
	resolver := refdata.New(sourcePool, redisClient, cfg.RefdataCacheTTL)

	authService := auth.NewService(auth.NewRepository(sourcePool))
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)
	authzMiddleware := authz.Middleware{Loader: authService, Logger: logger}

	taskRepo := task.NewRepository(sourcePool)
	taskService := task.NewService(taskRepo, resolver)
	taskHandler := task.NewHandler(logger, taskService)

	countRepo := count.NewRepository(annexPool)
	countService := count.NewService(countRepo, taskRepo, resolver, auditTrail, logger)
	countHandler := count.NewHandler(logger, countService)

	suggestionRepo := suggestion.NewRepository(annexPool)
	suggestionService := suggestion.NewService(suggestionRepo, taskRepo, resolver, auditTrail, logger)
	suggestionHandler := suggestion.NewHandler(logger, suggestionService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		Authz:             authzMiddleware,
		AuthHandler:       authHandler,
		TaskHandler:       taskHandler,
		CountHandler:      countHandler,
		SuggestionHandler: suggestionHandler,
		JobHandler:        jobHandler,
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

// runJobsCommand handles `sucursalops jobs trigger|status` without
// booting the http server.
func runJobsCommand(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: sucursalops jobs <trigger|status> [flags]")
		return 1
	}

	redisDefault := os.Getenv("REDIS_ADDR")
	if redisDefault == "" {
		redisDefault = "127.0.0.1:6379"
	}

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		redisAddr := fs.String("redis", redisDefault, "redis address")
		job := fs.String("job", "", "job type to enqueue")
		grace := fs.Int("grace", 60, "orphan grace window in minutes")
		jsonOut := fs.Bool("json", false, "emit json output")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		jobsCLI, err := cli.NewJobsCLI(*redisAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		defer jobsCLI.Close()
		return jobsCLI.TriggerCommand(context.Background(), cli.TriggerOptions{
			Job:          *job,
			GraceMinutes: *grace,
			JSONOutput:   *jsonOut,
		})
	case "status":
		fs := flag.NewFlagSet("jobs status", flag.ContinueOnError)
		redisAddr := fs.String("redis", redisDefault, "redis address")
		size := fs.Int("size", 10, "scheduled tasks to list")
		jsonOut := fs.Bool("json", false, "emit json output")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		jobsCLI, err := cli.NewJobsCLI(*redisAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs status: %v\n", err)
			return 1
		}
		defer jobsCLI.Close()
		return jobsCLI.StatusCommand(context.Background(), cli.StatusOptions{
			ScheduledPageSize: *size,
			JSONOutput:        *jsonOut,
		})
	default:
		fmt.Fprintf(os.Stderr, "unknown jobs command %q\n", args[0])
		return 1
	}
}
