package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hvac_dispatch/backend/internal/board"
	"github.com/hvac_dispatch/backend/internal/config"
	"github.com/hvac_dispatch/backend/internal/db"
	"github.com/hvac_dispatch/backend/internal/distance"
	"github.com/hvac_dispatch/backend/internal/events"
	"github.com/hvac_dispatch/backend/internal/geocode"
	httpapi "github.com/hvac_dispatch/backend/internal/http"
	"github.com/hvac_dispatch/backend/internal/http/handlers"
	"github.com/hvac_dispatch/backend/internal/performance"
	"github.com/hvac_dispatch/backend/internal/service"
)

type storage interface {
	service.Directory
	service.JobStore
	handlers.Store
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "hvac-dispatch").Logger()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	if cfg.SeedFile != "" {
		seed, err := db.LoadSeed(cfg.SeedFile)
		if err != nil {
			logger.Fatal().Err(err).Str("file", cfg.SeedFile).Msg("failed to read seed")
		}
		if err := store.Import(ctx, seed); err != nil {
			logger.Fatal().Err(err).Msg("failed to import seed")
		}
		logger.Info().Int("technicians", len(seed.Technicians)).Int("jobs", len(seed.Jobs)).Msg("seed imported")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	var perf performance.Source = performance.MockSource{}
	if cfg.PerformanceURL != "" {
		perf = performance.HTTPSource{BaseURL: cfg.PerformanceURL, Client: &http.Client{Timeout: 5 * time.Second}}
	} else {
		logger.Info().Msg("using mock performance source")
	}
	if rdb != nil {
		perf = performance.CachedSource{Next: perf, Redis: rdb, TTL: cfg.PerformanceCacheTTL, Logger: logger}
	}

	estimator := &distance.HaversineEstimator{
		Geocoder:        &geocode.NominatimGeocoder{BaseURL: cfg.GeocoderURL},
		Country:         cfg.GeocodeCountry,
		AverageSpeedKmh: cfg.AverageSpeedKmh,
		RoadFactor:      cfg.RoadFactor,
	}

	bus := events.NewBus()
	dispatch := service.New(store, store,
		service.WithDistance(estimator),
		service.WithPerformance(perf),
		service.WithPublisher(bus),
		service.WithScorer(service.NewScorer(cfg.MaxDailyTasks, cfg.NeutralLocationScore)),
		service.WithLocation(cfg.Location()),
		service.WithSlotGrid(cfg.SlotGrid()),
		service.WithLogger(logger),
	)

	dispatchBoard := board.New(store, store, logger.With().Str("component", "board").Logger())
	dispatchBoard.Location = cfg.Location()

	g, gctx := errgroup.WithContext(ctx)

	if rdb != nil {
		relay := &events.RedisRelay{Client: rdb, Logger: logger}
		bus.Subscribe("", relay.Handle)
		listener := &events.RedisListener{
			Client:    rdb,
			Backoff:   cfg.ReconnectBackoff,
			Handler:   dispatchBoard.Apply,
			Reconcile: dispatchBoard.Refresh,
			Logger:    logger.With().Str("component", "redis_listener").Logger(),
		}
		g.Go(func() error {
			listener.Run(gctx)
			return nil
		})
	} else {
		bus.Subscribe("", dispatchBoard.Apply)
	}

	if cfg.MQTTBroker != "" {
		mqttRelay, err := events.NewMQTTRelay(events.MQTTConfig{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Backoff:     cfg.ReconnectBackoff,
		}, logger.With().Str("component", "mqtt").Logger())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect mqtt")
		}
		defer mqttRelay.Close()
		bus.Subscribe("", mqttRelay.Handle)
	}

	g.Go(func() error {
		dispatchBoard.Run(gctx, cfg.RefreshInterval)
		return nil
	})
	if cfg.RebalanceInterval > 0 {
		g.Go(func() error {
			runRebalance(gctx, dispatch, cfg.RebalanceInterval, logger)
			return nil
		})
	}

	router := httpapi.Router(cfg, store, dispatch, dispatchBoard, bus, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	stop()
	_ = g.Wait()
	bus.Close()
	logger.Info().Msg("server stopped")
}

func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (storage, func()) {
	if cfg.DatabaseURL == "" {
		logger.Info().Msg("DATABASE_URL not set, using in-memory store")
		return db.NewMemoryStore(), func() {}
	}
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	return store, store.Close
}

func runRebalance(ctx context.Context, dispatch *service.Service, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := dispatch.RebalanceWorkload(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("scheduled rebalance failed")
				continue
			}
			logger.Info().
				Int("moves", len(report.Reassignments)).
				Float64("improvement_percent", report.ImprovementPercent).
				Msg("scheduled rebalance finished")
		}
	}
}
