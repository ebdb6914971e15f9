package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cratebox/cratebox-backend/api/controllers"
	"github.com/cratebox/cratebox-backend/api/routes"
	"github.com/cratebox/cratebox-backend/internal/addresses"
	"github.com/cratebox/cratebox-backend/internal/boxes"
	"github.com/cratebox/cratebox-backend/internal/cycles"
	"github.com/cratebox/cratebox-backend/internal/history"
	"github.com/cratebox/cratebox-backend/internal/orders"
	"github.com/cratebox/cratebox-backend/internal/pricing"
	"github.com/cratebox/cratebox-backend/internal/subscriptions"
	"github.com/cratebox/cratebox-backend/pkg/auth/session"
	"github.com/cratebox/cratebox-backend/pkg/config"
	"github.com/cratebox/cratebox-backend/pkg/db"
	"github.com/cratebox/cratebox-backend/pkg/logger"
	"github.com/cratebox/cratebox-backend/pkg/metrics"
	"github.com/cratebox/cratebox-backend/pkg/migrate"
	"github.com/cratebox/cratebox-backend/pkg/outbox"
	"github.com/cratebox/cratebox-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	boxRepo := boxes.NewRepository(gormDB)
	addressRepo := addresses.NewRepository(gormDB)
	subscriptionRepo := subscriptions.NewRepository(gormDB)
	orderRepo := orders.NewRepository(gormDB)
	cycleRepo := cycles.NewRepository(gormDB)
	promoRepo := pricing.NewRepository(gormDB)
	historyRepo := history.NewRepository(gormDB)

	historySvc, err := history.NewService(historyRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create history service", err)
		os.Exit(1)
	}
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	pricingSvc, err := pricing.NewService(boxRepo, promoRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing service", err)
		os.Exit(1)
	}
	subscriptionSvc, err := subscriptions.NewService(subscriptionRepo, addressRepo, historyRepo, historySvc, outboxSvc, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}
	cycleSvc, err := cycles.NewService(
		cycleRepo, subscriptionRepo, orderRepo,
		historyRepo, historySvc, pricingSvc, outboxSvc,
		dbClient, logg, metrics.NewCycleRunMetrics(prometheus.DefaultRegisterer),
		cycles.Config{PageSize: cfg.Batch.PageSize},
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create cycle service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Deps{
		Config:   cfg,
		Logger:   logg,
		Sessions: sessionManager,
		HealthDeps: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Subscriptions: subscriptionSvc,
		Pricing:       pricingSvc,
		Cycles:        cycleSvc,
		Boxes:         boxRepo,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
