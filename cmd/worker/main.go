package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/fallout666222/media-client-manager/internal/app"
	jobmetrics "github.com/fallout666222/media-client-manager/internal/jobs"
	"github.com/fallout666222/media-client-manager/internal/planning"
	"github.com/fallout666222/media-client-manager/internal/platform/cache"
	"github.com/fallout666222/media-client-manager/internal/platform/db"
	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/users"
	"github.com/fallout666222/media-client-manager/jobs"
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

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, auditLogger)

	fillLocker := planning.NewRedisFillLocker(redisClient)
	planningRepo := planning.NewRepository(pool)
	planningService := planning.NewService(planningRepo, usersService, idempotencyStore, approvalRecorder, auditLogger, jobClient, fillLocker, logger)

	metrics := jobmetrics.NewMetrics(nil)
	fillJob := jobs.NewFillActualsJob(planningService, logger, metrics)
	noticeJob := jobs.NewStatusNoticeJob(usersService, jobClient, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeFillActuals, Handler: fillJob.Handle},
			{Type: jobs.TaskTypeStatusNotice, Handler: noticeJob.Handle},
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
