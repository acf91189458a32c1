package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/armorylabs/armory-backend/internal/rates"
	"github.com/armorylabs/armory-backend/internal/sched"
	"github.com/armorylabs/armory-backend/pkg/config"
	"github.com/armorylabs/armory-backend/pkg/logger"
	"github.com/armorylabs/armory-backend/pkg/metrics"
	"github.com/armorylabs/armory-backend/pkg/redis"
)

const lockTTL = 5 * time.Minute

func main() {
	logg := logger.New(logger.Options{ServiceName: "rates-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "rates-worker"

	logg = logger.New(logger.Options{
		ServiceName: "rates-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

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

	provider, err := rates.NewProvider(cfg.Rates, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create rates provider", err)
		os.Exit(1)
	}
	ratesService, err := rates.NewService(redisClient, provider, cfg.Rates.CacheTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create rates service", err)
		os.Exit(1)
	}
	refreshJob, err := rates.NewRefreshJob(ratesService)
	if err != nil {
		logg.Error(context.Background(), "failed to create refresh job", err)
		os.Exit(1)
	}

	lock, err := sched.NewRedisLock(redisClient, redisClient.LockKey("rates_refresh"), lockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := sched.NewService(sched.ServiceParams{
		Logger:   logg,
		Registry: sched.NewRegistry(refreshJob),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.NewRegistry()),
		Interval: cfg.Rates.RefreshInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "rates-worker",
	})
	logg.Info(ctx, "starting rates worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "rates worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "rates worker shutting down gracefully")
}
