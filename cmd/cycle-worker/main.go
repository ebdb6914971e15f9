package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cratebox/cratebox-backend/internal/boxes"
	"github.com/cratebox/cratebox-backend/internal/cron"
	"github.com/cratebox/cratebox-backend/internal/cycles"
	"github.com/cratebox/cratebox-backend/internal/history"
	"github.com/cratebox/cratebox-backend/internal/orders"
	"github.com/cratebox/cratebox-backend/internal/pricing"
	"github.com/cratebox/cratebox-backend/internal/subscriptions"
	"github.com/cratebox/cratebox-backend/pkg/config"
	"github.com/cratebox/cratebox-backend/pkg/db"
	"github.com/cratebox/cratebox-backend/pkg/logger"
	"github.com/cratebox/cratebox-backend/pkg/metrics"
	"github.com/cratebox/cratebox-backend/pkg/migrate"
	"github.com/cratebox/cratebox-backend/pkg/outbox"
	"github.com/cratebox/cratebox-backend/pkg/redis"
)

const lockKeyFormat = "cb:cycle-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cycle-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cycle-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cycle-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gormDB := dbClient.DB()
	cycleRepo := cycles.NewRepository(gormDB)
	subscriptionRepo := subscriptions.NewRepository(gormDB)
	orderRepo := orders.NewRepository(gormDB)
	historyRepo := history.NewRepository(gormDB)
	outboxRepo := outbox.NewRepository(gormDB)

	historySvc, err := history.NewService(historyRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create history service", err)
		os.Exit(1)
	}
	pricingSvc, err := pricing.NewService(
		boxes.NewRepository(gormDB), pricing.NewRepository(gormDB), dbClient,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing service", err)
		os.Exit(1)
	}
	cycleSvc, err := cycles.NewService(
		cycleRepo, subscriptionRepo, orderRepo,
		historyRepo, historySvc, pricingSvc,
		outbox.NewService(outboxRepo, logg),
		dbClient, logg, metrics.NewCycleRunMetrics(prometheus.DefaultRegisterer),
		cycles.Config{PageSize: cfg.Batch.PageSize},
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create cycle service", err)
		os.Exit(1)
	}

	cycleJob, err := cron.NewCycleOrderJob(cron.CycleOrderJobParams{
		Logger: logg,
		Cycles: cycleRepo,
		Runner: cycleSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cycle order job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(cycleJob, retentionJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Batch.WorkerInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cycle worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cycle worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cycle worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
