package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/imanmay2/sehat-server/internal/api"
	"github.com/imanmay2/sehat-server/internal/availability"
	"github.com/imanmay2/sehat-server/internal/booking"
	"github.com/imanmay2/sehat-server/internal/config"
	"github.com/imanmay2/sehat-server/internal/connectivity"
	"github.com/imanmay2/sehat-server/internal/db"
	"github.com/imanmay2/sehat-server/internal/observability/metrics"
	"github.com/imanmay2/sehat-server/internal/pharmacy"
	redisclient "github.com/imanmay2/sehat-server/internal/redis"
	"github.com/imanmay2/sehat-server/internal/session"
	"github.com/imanmay2/sehat-server/internal/syncqueue"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config load error")
	}

	logger := newLogger(cfg)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

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

	coreMetrics := metrics.NewCoreMetrics(prometheus.DefaultRegisterer)

	monitor := connectivity.NewMonitor(
		connectivity.HTTPProbe(nil, cfg.ProbeURL),
		cfg.ProbeInterval,
		cfg.DwellTime,
		connectivity.WithLogger(logger),
	)
	logger.Info().Str("state", string(monitor.Current().State)).Msg("initial connectivity probed")

	store := availability.NewPgStore(pgPool)
	locker := redisclient.NewSlotLocker(rdb, cfg.LockTTL)

	bookings := booking.NewService(
		booking.NewPgRepository(pgPool),
		store,
		locker,
		monitor,
		cfg.HoldTTL,
		booking.WithLogger(logger),
		booking.WithMetrics(coreMetrics),
	)

	negotiator := session.NewNegotiator(bookings, monitor, session.Config{
		DegradedThreshold: cfg.DegradedThreshold,
		DowngradeAfter:    cfg.DowngradeAfter,
		MaxDegradedDwell:  cfg.MaxDegradedDwell,
	}, session.WithLogger(logger), session.WithMetrics(coreMetrics))

	pharmacies := pharmacy.NewService(pharmacy.NewPgRepository(pgPool), logger)

	queue := syncqueue.NewQueue(
		syncqueue.NewRedisStore(rdb),
		syncqueue.NewDispatcher(bookings, pharmacies),
		monitor,
		cfg.FlushTimeout,
		syncqueue.WithLogger(logger),
		syncqueue.WithMetrics(coreMetrics),
	)

	router := api.NewRouter(api.RouterConfig{
		Bookings:     bookings,
		Availability: store,
		Sessions:     negotiator,
		Queue:        queue,
		Pharmacies:   pharmacies,
		Connectivity: monitor,
		Logger:       logger,
		PgPool:       pgPool,
		Redis:        rdb,
		Env:          cfg.Env,
		Version:      version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gCtx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		return monitor.Run(gCtx)
	})

	// React to connectivity transitions: offline ends live sessions, online
	// drains the offline queue.
	transitions, unsubscribe := monitor.Subscribe()
	defer unsubscribe()
	g.Go(func() error {
		for {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case t, ok := <-transitions:
				if !ok {
					return nil
				}
				coreMetrics.ObserveTransition(string(t.To))
				switch t.To {
				case connectivity.Offline:
					negotiator.HandleOffline(gCtx)
				case connectivity.Online:
					flushCtx, cancel := context.WithTimeout(gCtx, 2*time.Minute)
					if _, err := queue.Flush(flushCtx); err != nil && !errors.Is(err, syncqueue.ErrOffline) {
						logger.Error().Err(err).Msg("queue flush after reconnect")
					}
					cancel()
				}
			}
		}
	})

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("api-server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("api-server shut down")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}
