package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/openclinic/scheduling/internal/app"
	"github.com/openclinic/scheduling/internal/config"
	"github.com/openclinic/scheduling/internal/db"
	"github.com/openclinic/scheduling/internal/events"
	redisclient "github.com/openclinic/scheduling/internal/redis"
)

// event-relay drains the lifecycle-event outbox and publishes to the Redis
// channel the notification subsystem subscribes to.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := app.NewLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("event-relay starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.RelayInterval),
		zap.Int("batch", cfg.RelayBatch),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	// The relay only polls and marks; a couple of connections suffice.
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, 2)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	store := events.NewStore(pgPool)
	publisher := events.NewRedisPublisher(rdb)

	deliverer := events.NewDeliverer(store, publisher, logger).
		WithBatchSize(int32(cfg.RelayBatch)).
		WithInterval(cfg.RelayInterval)

	deliverer.Run(rootCtx)

	logger.Info("shutdown signal received, stopping event-relay")
}
