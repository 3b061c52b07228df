package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/openclinic/scheduling/internal/api"
	"github.com/openclinic/scheduling/internal/app"
	"github.com/openclinic/scheduling/internal/booking"
	"github.com/openclinic/scheduling/internal/config"
	"github.com/openclinic/scheduling/internal/db"
	"github.com/openclinic/scheduling/internal/events"
	"github.com/openclinic/scheduling/internal/metrics"
	redisclient "github.com/openclinic/scheduling/internal/redis"
	"github.com/openclinic/scheduling/internal/schedule"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := app.NewLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, int32(cfg.PgMaxConns))
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	if err := db.Migrate(rootCtx, pgPool); err != nil {
		logger.Fatal("migration error", zap.Error(err))
	}

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

	m := metrics.NewSchedulingMetrics(prometheus.DefaultRegisterer)
	outbox := events.NewStore(pgPool)

	scheduleRepo := schedule.NewPgRepository(pgPool)
	scheduleSvc := schedule.NewService(scheduleRepo, logger)

	bookingRepo := booking.NewPgRepository(pgPool, outbox)
	locker := redisclient.NewRedisDayLocker(rdb, cfg.LockTTL)
	bookingSvc := booking.NewService(bookingRepo, scheduleSvc, locker, m, logger)

	generator := schedule.NewGenerator(scheduleSvc, bookingRepo)

	router := api.NewRouter(api.RouterConfig{
		Schedule: scheduleSvc,
		Slots:    generator,
		Bookings: bookingSvc,
		PgPool:   pgPool,
		Redis:    rdb,
		Outbox:   outbox,
		Metrics:  m,
		Logger:   logger,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()
	logger.Info("http server listening", zap.String("addr", srv.Addr))

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
}
