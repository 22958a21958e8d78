// Command indexer builds the listing index. It performs an initial
// rebuild from the configured source, then rebuilds whenever the ingestion
// service reports new listings, persisting each generation and announcing
// it on the index-complete topic. A small status server exposes health
// probes and the stats of the current generation.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service",
		"source", cfg.Indexer.Source.Type,
		"snapshot", cfg.Indexer.SnapshotPath(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var db *postgres.Client
	if cfg.Indexer.Source.Type == "postgres" {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}
	source, err := indexer.NewSource(cfg.Indexer.Source, db)
	if err != nil {
		slog.Error("failed to create record source", "error", err)
		os.Exit(1)
	}
	opts, err := indexer.OptionsFromConfig(cfg)
	if err != nil {
		slog.Error("invalid indexer config", "error", err)
		os.Exit(1)
	}

	notifier := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer notifier.Close()
	engine, err := indexer.NewEngine(opts, source, notifier, m)
	if err != nil {
		slog.Error("failed to create index engine", "error", err)
		os.Exit(1)
	}

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	events := collector.NewBatchCollector(analyticsProducer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	events.Start(ctx)
	defer events.Close()
	engine.OnRebuild(func(snap *indexer.Snapshot, took time.Duration) {
		events.RecordIndex(analytics.IndexEvent{
			Type:       analytics.EventIndexRebuild,
			Generation: snap.Generation,
			Documents:  snap.Index.N(),
			Terms:      snap.Index.TermCount(),
			Malformed:  snap.Malformed,
			DurationMs: float64(took.Microseconds()) / 1000,
			Timestamp:  time.Now().UTC(),
		})
	})

	// Continue numbering from the persisted generation.
	if _, err := engine.LoadSnapshot(ctx); err != nil {
		slog.Info("no previous snapshot", "error", err)
	}
	if _, err := engine.Rebuild(ctx); err != nil {
		slog.Error("initial rebuild failed, will retry on the next tick", "error", err)
		engine.MarkDirty()
	}
	engine.StartRebuildLoop(ctx)

	checker := health.NewChecker()
	checker.Register("index", health.FromError(func(context.Context) error {
		_, err := engine.Snapshot()
		return err
	}, false))
	checker.Register("rebuild", func(context.Context) health.ComponentHealth {
		if engine.Dirty() {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "rebuild pending"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if db != nil {
		checker.Register("postgres", health.FromError(db.Ping, false))
	}
	mux := http.NewServeMux()
	checker.Mount(mux)
	mux.HandleFunc("GET /api/v1/index/stats", func(w http.ResponseWriter, r *http.Request) {
		snap, err := engine.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(apperrors.HTTPStatusCode(err))
			json.NewEncoder(w).Encode(map[string]string{"error": apperrors.PublicMessage(err)})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"index": snap.Stats(), "rebuild_pending": engine.Dirty()})
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID, middleware.Metrics(m)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		slog.Info("indexer status server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	listings := consumer.New(kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.ListingIngest,
		"",
		consumer.HandleListingEvent(engine),
	))
	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.ListingIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := listings.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("indexer service stopped")
}
