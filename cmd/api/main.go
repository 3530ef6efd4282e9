package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/royaltyworks-backend/api/routes"
	"github.com/angelmondragon/royaltyworks-backend/internal/adjustments"
	"github.com/angelmondragon/royaltyworks-backend/internal/audit"
	"github.com/angelmondragon/royaltyworks-backend/internal/licensing"
	"github.com/angelmondragon/royaltyworks-backend/internal/ownership"
	"github.com/angelmondragon/royaltyworks-backend/internal/revenue"
	"github.com/angelmondragon/royaltyworks-backend/internal/runs"
	"github.com/angelmondragon/royaltyworks-backend/internal/statements"
	"github.com/angelmondragon/royaltyworks-backend/pkg/config"
	"github.com/angelmondragon/royaltyworks-backend/pkg/db"
	"github.com/angelmondragon/royaltyworks-backend/pkg/logger"
	"github.com/angelmondragon/royaltyworks-backend/pkg/metrics"
	"github.com/angelmondragon/royaltyworks-backend/pkg/migrate"
	"github.com/angelmondragon/royaltyworks-backend/pkg/outbox"
	"github.com/angelmondragon/royaltyworks-backend/pkg/redis"
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

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	auditLogger, err := audit.NewLogger(logg, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create audit logger", err)
		os.Exit(1)
	}

	var usageClient revenue.UsageBillingClient
	if cfg.Calculation.UsageRevenueEnabled {
		httpUsage, err := revenue.NewHTTPUsageClient(cfg.UsageBilling)
		if err != nil {
			logg.Error(context.Background(), "failed to create usage billing client", err)
			os.Exit(1)
		}
		usageClient = httpUsage
	}
	revenueService, err := revenue.NewService(usageClient, cfg.Calculation, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create revenue service", err)
		os.Exit(1)
	}
	splitEngine, err := ownership.NewEngine(cfg.Calculation)
	if err != nil {
		logg.Error(context.Background(), "failed to create ownership engine", err)
		os.Exit(1)
	}

	runsService, err := runs.NewService(runs.Params{
		DB:       dbClient,
		Repo:     runs.NewRepository(dbClient.DB()),
		Licenses: licensing.NewRepository(dbClient.DB()),
		Revenue:  revenueService,
		Splits:   splitEngine,
		Outbox:   outboxService,
		Audit:    auditLogger,
		Metrics:  metrics.NewRunMetrics(prometheus.DefaultRegisterer),
		Config:   cfg.Calculation,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create runs service", err)
		os.Exit(1)
	}

	statementsService, err := statements.NewService(statements.Params{
		DB:     dbClient,
		Repo:   statements.NewRepository(dbClient.DB()),
		Cache:  redisClient,
		Outbox: outboxService,
		Audit:  auditLogger,
		Config: cfg.Calculation,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create statements service", err)
		os.Exit(1)
	}

	adjustmentsService, err := adjustments.NewService(adjustments.Params{
		DB:     dbClient,
		Repo:   adjustments.NewRepository(dbClient.DB()),
		Locker: redisClient,
		Outbox: outboxService,
		Audit:  auditLogger,
		Config: cfg.Calculation,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create adjustments service", err)
		os.Exit(1)
	}

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
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, runsService, statementsService, adjustmentsService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
