// Command searcher serves BM25 search over the latest persisted listing
// snapshot. It reloads whenever the indexer announces a newer generation
// on the index-complete topic, caches results in Redis and in process, and
// aggregates search analytics for GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/resilience"
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
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	opts, err := indexer.OptionsFromConfig(cfg)
	if err != nil {
		slog.Error("invalid indexer config", "error", err)
		os.Exit(1)
	}
	engine, err := indexer.NewEngine(opts, nil, nil, m)
	if err != nil {
		slog.Error("failed to create index engine", "error", err)
		os.Exit(1)
	}
	if snap, err := engine.LoadSnapshot(ctx); err != nil {
		slog.Warn("no snapshot loaded, waiting for index-complete", "path", opts.SnapshotPath, "error", err)
	} else {
		slog.Info("snapshot loaded", "generation", snap.Generation, "documents", snap.Index.N())
	}

	var remote cache.RemoteStore
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, serving from the local cache tier only", "error", err)
	} else {
		defer redisClient.Close()
		remote = redisClient
		slog.Info("redis cache tier enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}
	queryCache, err := cache.New(cache.Options{
		Remote:    remote,
		TTL:       cfg.Redis.CacheTTL,
		LocalSize: cfg.Cache.LocalSize,
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold:    5,
			ResetTimeout:        10 * time.Second,
			HalfOpenMaxRequests: 1,
		},
		Metrics: m,
	})
	if err != nil {
		slog.Error("failed to create query cache", "error", err)
		os.Exit(1)
	}

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	events := collector.NewBatchCollector(analyticsProducer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	events.Start(ctx)
	defer events.Close()

	var history analytics.HistoryFunc
	agg := analytics.NewAggregator(analytics.AggregatorConfig{
		QueryCapacity: cfg.Analytics.QueryCapacity,
		LatencyWindow: cfg.Analytics.LatencyWindow,
		TopN:          cfg.Analytics.TopN,
	})
	if db, err := postgres.New(cfg.Postgres); err != nil {
		slog.Warn("postgres unavailable, analytics will not be persisted", "error", err)
	} else {
		defer db.Close()
		store := aggregator.NewStore(db, cfg.Analytics.Retention)
		if err := store.Migrate(ctx); err != nil {
			slog.Warn("analytics schema migration failed", "error", err)
		} else {
			if err := store.Resume(ctx, agg); err != nil {
				slog.Warn("failed to resume analytics", "error", err)
			}
			store.StartPeriodicSave(ctx, agg, cfg.Analytics.PersistInterval)
			history = store.ListSnapshots
		}
	}

	hostname, _ := os.Hostname()
	replicaGroup := fmt.Sprintf("%s-searcher-%s", cfg.Kafka.ConsumerGroup, hostname)
	analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, replicaGroup+"-analytics", analytics.HandleEvent(agg))
	go func() {
		if err := analyticsConsumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()

	reload := consumer.New(kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.IndexComplete,
		replicaGroup,
		consumer.HandleIndexComplete(engine, func(*indexer.Snapshot) { queryCache.PurgeLocal() }),
	))
	go func() {
		if err := reload.Start(ctx); err != nil {
			slog.Error("index-complete consumer error", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("index", health.FromError(func(context.Context) error {
		_, err := engine.Snapshot()
		return err
	}, false))
	checker.Register("cache", health.FromError(queryCache.Ping, true))
	if redisClient != nil {
		checker.Register("redis", health.FromError(redisClient.Ping, true))
	}

	h := handler.New(executor.New(engine, cfg.Search, m), engine, queryCache, events, m)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	analytics.NewHandler(agg, history).RegisterRoutes(mux)
	checker.Mount(mux)

	mws := []func(http.Handler) http.Handler{middleware.RequestID, middleware.Metrics(m)}
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		limiter.StartCleanup(ctx, 5*time.Minute)
		mws = append(mws, middleware.RateLimit(limiter))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.WriteTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
