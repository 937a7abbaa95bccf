package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/interviewd-ai/interviewd-backend/api/routes"
	"github.com/interviewd-ai/interviewd-backend/internal/interviews"
	"github.com/interviewd-ai/interviewd-backend/internal/quota"
	roomswebhook "github.com/interviewd-ai/interviewd-backend/internal/webhooks/rooms"
	"github.com/interviewd-ai/interviewd-backend/pkg/config"
	"github.com/interviewd-ai/interviewd-backend/pkg/db"
	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
	"github.com/interviewd-ai/interviewd-backend/pkg/metrics"
	"github.com/interviewd-ai/interviewd-backend/pkg/migrate"
	"github.com/interviewd-ai/interviewd-backend/pkg/redis"
	"github.com/interviewd-ai/interviewd-backend/pkg/rooms"
)

const webhookGuardTTL = 24 * time.Hour

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

	webhookService, err := roomswebhook.NewService(roomswebhook.ServiceParams{
		Interviews: interviewService,
		AgentName:  cfg.Rooms.AgentName,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := roomswebhook.NewIdempotencyGuard(redisClient, webhookGuardTTL, "webhooks:rooms")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
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
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			interviewService,
			quotaEngine,
			webhookService,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
