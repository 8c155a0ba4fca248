package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/minesafe-service/internal/adapter/gmaps"
	httpadapter "github.com/couchcryptid/minesafe-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/minesafe-service/internal/adapter/kafka"
	"github.com/couchcryptid/minesafe-service/internal/config"
	"github.com/couchcryptid/minesafe-service/internal/fleet"
	"github.com/couchcryptid/minesafe-service/internal/hazard"
	"github.com/couchcryptid/minesafe-service/internal/observability"
	"github.com/couchcryptid/minesafe-service/internal/pipeline"
	"github.com/couchcryptid/minesafe-service/internal/store/memory"
	mongostore "github.com/couchcryptid/minesafe-service/internal/store/mongo"
	"github.com/couchcryptid/minesafe-service/internal/tracking"
)

// store is everything the services need from persistence.
type store interface {
	hazard.NodeStore
	fleet.VehicleStore
	CheckReadiness(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}

	maps := gmaps.NewClient(gmaps.Config{
		APIKey:  cfg.MapsAPIKey,
		BaseURL: cfg.MapsBaseURL,
		Timeout: cfg.MapsTimeout,
	}, metrics, logger)
	places := gmaps.NewCachedPlaces(maps, cfg.MapsCacheSize, metrics)
	if cfg.MapsAPIKey == "" {
		logger.Warn("MAPS_API_KEY is empty; place and route lookups will fail upstream")
	}

	// Kafka is optional (KAFKA_ENABLED). A nil publisher disables fan-out.
	var (
		publisher hazard.Publisher
		writer    *kafkaadapter.Writer
		reader    *kafkaadapter.Reader
	)
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka enabled", "brokers", cfg.KafkaBrokers, "readings_topic", cfg.KafkaReadingsTopic, "hazard_topic", cfg.KafkaHazardTopic)
	}

	hazardLog := hazard.NewLog(db, publisher, logger, metrics)
	registry := fleet.NewRegistry(db, logger)
	tracker := tracking.NewTracker(maps, places, registry, tracking.Config{
		Interval:    cfg.TrackingInterval,
		MinInterval: cfg.TrackingMinInterval,
	}, clockwork.NewRealClock(), logger, metrics)

	ready := httpadapter.Readiness{db}
	var p *pipeline.Pipeline
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		p = pipeline.New(reader, hazardLog, logger, metrics, cfg.BatchSize)
		ready = append(ready, p)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Nodes:    hazardLog,
		Vehicles: registry,
		Routes:   tracker,
		Places:   places,
		Ready:    ready,
	}, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	if p != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()

	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := closeStore(shutdownCtx); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, func(context.Context) error, error) {
	if cfg.StoreBackend == config.StoreMongo {
		s, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	logger.Info("using in-memory store; data is lost on restart")
	return memory.New(), func(context.Context) error { return nil }, nil
}
