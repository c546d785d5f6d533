package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/imanmay2/sehat-server/internal/availability"
	"github.com/imanmay2/sehat-server/internal/booking"
	"github.com/imanmay2/sehat-server/internal/config"
	"github.com/imanmay2/sehat-server/internal/connectivity"
	"github.com/imanmay2/sehat-server/internal/db"
	"github.com/imanmay2/sehat-server/internal/pharmacy"
	redisclient "github.com/imanmay2/sehat-server/internal/redis"
	"github.com/imanmay2/sehat-server/internal/syncqueue"
)

// The sync worker does the periodic housekeeping the API server shouldn't
// block on: expiring stale reservation holds and re-driving the offline
// queue while the link is up.
func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config load error")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "sync-worker").Logger()
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("sync-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	monitor := connectivity.NewMonitor(
		connectivity.HTTPProbe(nil, cfg.ProbeURL),
		cfg.ProbeInterval,
		cfg.DwellTime,
		connectivity.WithLogger(logger),
	)
	go func() {
		_ = monitor.Run(rootCtx)
	}()

	store := availability.NewPgStore(pgPool)
	locker := redisclient.NewSlotLocker(rdb, cfg.LockTTL)
	bookings := booking.NewService(
		booking.NewPgRepository(pgPool),
		store,
		locker,
		monitor,
		cfg.HoldTTL,
		booking.WithLogger(logger),
	)
	pharmacies := pharmacy.NewService(pharmacy.NewPgRepository(pgPool), logger)
	queue := syncqueue.NewQueue(
		syncqueue.NewRedisStore(rdb),
		syncqueue.NewDispatcher(bookings, pharmacies),
		monitor,
		cfg.FlushTimeout,
		syncqueue.WithLogger(logger),
	)

	// Run once at startup
	runOnce(rootCtx, logger, bookings, queue)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping sync worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, bookings, queue)
		}
	}
}

func runOnce(ctx context.Context, logger zerolog.Logger, bookings *booking.Service, queue *syncqueue.Queue) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	if err := bookings.ExpireStaleRequests(runCtx); err != nil {
		logger.Error().Err(err).Msg("expiry run error")
		return
	}

	outcomes, err := queue.Flush(runCtx)
	if err != nil && !errors.Is(err, syncqueue.ErrOffline) {
		logger.Error().Err(err).Msg("queue flush error")
		return
	}

	logger.Info().
		Int("replayed", len(outcomes)).
		Dur("took", time.Since(start)).
		Msg("sync run complete")
}
