package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/marsukat/marsukat-dashboard/cmd/marsukat/cli"
	"github.com/marsukat/marsukat-dashboard/internal/aggregate"
	"github.com/marsukat/marsukat-dashboard/internal/app"
	"github.com/marsukat/marsukat-dashboard/internal/auth"
	"github.com/marsukat/marsukat-dashboard/internal/dashboard"
	dashboardhttp "github.com/marsukat/marsukat-dashboard/internal/dashboard/http"
	"github.com/marsukat/marsukat-dashboard/internal/observability"
	"github.com/marsukat/marsukat-dashboard/internal/platform/cache"
	"github.com/marsukat/marsukat-dashboard/internal/platform/db"
	"github.com/marsukat/marsukat-dashboard/internal/snapshot"
	"github.com/marsukat/marsukat-dashboard/internal/upstream"
	"github.com/marsukat/marsukat-dashboard/jobs"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) > 1 {
		os.Exit(runCommand(os.Args[1:]))
	}

	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if err := snapshot.RunMigrations(cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

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

	metrics := observability.NewMetrics()

	upstreamClient := upstream.NewClient(upstream.Config{
		BaseURL: cfg.UpstreamBaseURL,
		Token:   cfg.UpstreamToken,
		Timeout: cfg.UpstreamTimeout,
		Observe: func(resource upstream.Resource, code int, elapsed time.Duration) {
			metrics.ObserveUpstream(string(resource), code, elapsed)
		},
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
			defer func() {
				if err := amqpPublisher.Close(); err != nil {
					logger.Warn("amqp close", slog.Any("error", err))
				}
			}()
			publisher = amqpPublisher
		}
	}
	snapshotStore := snapshot.NewStore(snapshot.NewRepository(dbpool), publisher, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Auth:             auth.NewService(cfg.APIKeyHashes),
		DashboardHandler: dashboardhttp.NewHandler(logger, dashboardService, snapshotStore),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		Readiness: map[string]app.Pinger{
			"postgres": dbpool,
			"redis":    cache.Pinger{Client: redisClient},
			"upstream": upstreamClient,
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runCommand handles the operational subcommands:
//
//	marsukat hash-key <key>
//	marsukat enqueue <warmup|snapshot> [year]
//	marsukat queue
func runCommand(args []string) int {
	switch args[0] {
	case "hash-key":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: marsukat hash-key <key>")
			return 2
		}
		hash, err := auth.HashKey(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println(hash)
		return 0
	case "enqueue", "queue":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		return 2
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}
	jobsCLI := cli.NewJobsCLI(redisAddr)
	defer func() { _ = jobsCLI.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if args[0] == "queue" {
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	}

	if len(args) < 2 || len(args) > 3 {
		fmt.Fprintln(os.Stderr, "usage: marsukat enqueue <warmup|snapshot> [year]")
		return 2
	}
	year := ""
	if len(args) == 3 {
		year = args[2]
	}
	info, err := jobsCLI.Trigger(ctx, args[1], year)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("enqueued %s as %s\n", info.Type, info.ID)
	return 0
}
