package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/royaltyworks-backend/internal/audit"
	"github.com/angelmondragon/royaltyworks-backend/internal/cron"
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

const lockKeyFormat = "rw:royalty-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "royalty-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "royalty-worker"

	logg = logger.New(logger.Options{
		ServiceName: "royalty-worker",
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

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)
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

	runsRepo := runs.NewRepository(dbClient.DB())
	runsService, err := runs.NewService(runs.Params{
		DB:       dbClient,
		Repo:     runsRepo,
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

	statementsRepo := statements.NewRepository(dbClient.DB())

	runCalculationJob, err := cron.NewRunCalculationJob(cron.RunCalculationJobParams{
		Logger: logg,
		Runs:   runsRepo,
		Calc:   runsService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create run calculation job", err)
		os.Exit(1)
	}
	disputeTimeoutJob, err := cron.NewDisputeTimeoutJob(cron.DisputeTimeoutJobParams{
		Logger:      logg,
		DB:          dbClient,
		Statements:  statementsRepo,
		Outbox:      outboxService,
		TimeoutDays: cfg.Calculation.DisputeResolutionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispute timeout job", err)
		os.Exit(1)
	}
	statementNotificationJob, err := cron.NewStatementNotificationJob(cron.StatementNotificationJobParams{
		Logger:     logg,
		DB:         dbClient,
		Statements: statementsRepo,
		Outbox:     outboxService,
		Lookback:   cfg.Cron.NotificationLookback,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create statement notification job", err)
		os.Exit(1)
	}
	outboxRetentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outboxRepo,
		Retention:   cfg.Cron.OutboxRetentionDays,
		MinAttempts: cfg.Cron.OutboxMinAttemptsKept,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(
		runCalculationJob,
		disputeTimeoutJob,
		statementNotificationJob,
		outboxRetentionJob,
	)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
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
	logg.Info(ctx, "starting royalty worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "royalty worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "royalty worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
