package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/interviewd-ai/interviewd-backend/internal/cron"
	"github.com/interviewd-ai/interviewd-backend/internal/interviews"
	"github.com/interviewd-ai/interviewd-backend/internal/quota"
	"github.com/interviewd-ai/interviewd-backend/pkg/config"
	"github.com/interviewd-ai/interviewd-backend/pkg/db"
	"github.com/interviewd-ai/interviewd-backend/pkg/instance"
	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
	"github.com/interviewd-ai/interviewd-backend/pkg/metrics"
	"github.com/interviewd-ai/interviewd-backend/pkg/migrate"
	"github.com/interviewd-ai/interviewd-backend/pkg/redis"
	"github.com/interviewd-ai/interviewd-backend/pkg/rooms"
)

const lockKeyFormat = "ivd:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	quotaEngine, err := quota.NewEngine(quota.EngineParams{
		Repo:    quota.NewRepository(dbClient.DB()),
		Logger:  logg,
		Metrics: metrics.NewQuotaMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create quota engine", err)
		os.Exit(1)
	}

	roomsClient, err := rooms.NewClient(cfg.Rooms, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create rooms client", err)
		os.Exit(1)
	}

	interviewService, err := interviews.NewService(interviews.ServiceParams{
		Repo:   interviews.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Quota:  quotaEngine,
		Rooms:  roomsClient,
		Logger: logg,
		Config: cfg.Quota,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create interview service", err)
		os.Exit(1)
	}

	expireJob, err := cron.NewExpireInterviewsJob(cron.ExpireInterviewsJobParams{
		Logger:     logg,
		Interviews: interviewService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create expiry job", err)
		os.Exit(1)
	}

	reapJob, err := cron.NewReapOverdueJob(cron.ReapOverdueJobParams{
		Logger:     logg,
		Interviews: interviewService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create overdue reaper job", err)
		os.Exit(1)
	}

	rolloverJob, err := cron.NewCycleRolloverJob(cron.CycleRolloverJobParams{
		Logger: logg,
		Quota:  quotaEngine,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create rollover job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expireJob, reapJob, rolloverJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
