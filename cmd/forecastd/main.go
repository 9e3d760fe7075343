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

	httpadapter "github.com/couchcryptid/forecast-data-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/forecast-data-service/internal/adapter/kafka"
	"github.com/couchcryptid/forecast-data-service/internal/adapter/source"
	"github.com/couchcryptid/forecast-data-service/internal/adapter/watch"
	"github.com/couchcryptid/forecast-data-service/internal/config"
	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/observability"
	"github.com/couchcryptid/forecast-data-service/internal/pipeline"
	"github.com/couchcryptid/forecast-data-service/internal/selector"
	"github.com/couchcryptid/forecast-data-service/internal/store"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

// eventBuffer bounds the state change backlog held for the Kafka publisher.
const eventBuffer = 64

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	var src pipeline.Source
	switch cfg.DataSource {
	case config.SourceHTTP:
		src = source.NewHTTPSource(cfg.DataBaseURL, cfg.FetchTimeout, cfg.HTTPCacheEntries, metrics, logger)
		logger.Info("serving data from http source", "base_url", cfg.DataBaseURL)
	default:
		src = source.NewFileSource(cfg.DataDir, metrics)
		logger.Info("serving data from file source", "dir", cfg.DataDir)
	}

	st := store.New(clock, metrics)
	topology := pipeline.NewTopology(src, cfg.Paths[domain.MapTopology], st, logger, metrics)
	set := pipeline.NewSet(st, logger,
		pipeline.NewCoreData(src, cfg.Paths[domain.CoreData], st, logger, metrics),
		pipeline.NewHistoricalGroundTruth(src, cfg.Paths[domain.HistoricalGroundTruth], st, logger, metrics),
		pipeline.NewEvaluationPrecalculated(src, cfg.Paths[domain.EvaluationPrecalculated], st, logger, metrics),
		pipeline.NewEvaluationRawScores(src, cfg.Paths[domain.EvaluationRawScores], st, logger, metrics),
		topology,
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Dependencies{
		Ready:    set,
		Loader:   set,
		Status:   st,
		Topology: topology,
		Selector: selector.New(st),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// Publish state changes.
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, metrics, logger)
		changes, unsubscribe := st.Subscribe(eventBuffer)
		defer unsubscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			writer.Run(ctx, changes)
		}()
		logger.Info("kafka state change events enabled", "topic", cfg.KafkaEventsTopic)
	}

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Preload domains in the background; readiness flips once core data lands.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := set.Preload(ctx, cfg.PreloadDomains...); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("preload error", "error", err)
		}
	}()

	if cfg.WatchEnabled {
		w := watch.New(cfg.DataDir, cfg.Paths, set, clock, cfg.WatchDebounce, metrics, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				logger.Error("watcher error", "error", err)
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
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
