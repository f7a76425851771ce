package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/marsukat/marsukat-dashboard/internal/aggregate"
	"github.com/marsukat/marsukat-dashboard/internal/app"
	"github.com/marsukat/marsukat-dashboard/internal/dashboard"
	jobmetrics "github.com/marsukat/marsukat-dashboard/internal/jobs"
	"github.com/marsukat/marsukat-dashboard/internal/platform/cache"
	"github.com/marsukat/marsukat-dashboard/internal/platform/db"
	"github.com/marsukat/marsukat-dashboard/internal/snapshot"
	"github.com/marsukat/marsukat-dashboard/internal/upstream"
	"github.com/marsukat/marsukat-dashboard/jobs"
)

func main() {
	_ = godotenv.Load()

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

	upstreamClient := upstream.NewClient(upstream.Config{
		BaseURL: cfg.UpstreamBaseURL,
		Token:   cfg.UpstreamToken,
		Timeout: cfg.UpstreamTimeout,
	})
	dashboardService := dashboard.NewService(upstreamClient,
		dashboard.NewCache(redisClient, cfg.CacheTTL),
		aggregate.NewAvailabilityChecker(cfg.AvailabilityExemptTypes...))

	var publisher snapshot.Publisher
	if cfg.AMQPURL != "" {
		amqpPublisher, err := snapshot.DialPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Warn("snapshot publisher disabled", slog.Any("error", err))
		} else {
			defer func() { _ = amqpPublisher.Close() }()
			publisher = amqpPublisher
		}
	}
	snapshotStore := snapshot.NewStore(snapshot.NewRepository(pool), publisher, logger)

	metrics := jobmetrics.NewMetrics(nil)
	warmupJob := jobs.NewWarmupJob(dashboardService, logger, metrics)
	snapshotJob := jobs.NewSnapshotJob(dashboardService, snapshotStore, logger, metrics)

	cron, err := jobs.DefaultCron()
	if err != nil {
		logger.Error("build cron tasks", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDashboardWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskDashboardSnapshot, Handler: snapshotJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
