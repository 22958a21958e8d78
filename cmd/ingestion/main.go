// Command ingestion accepts scraped listings over HTTP at
// POST /api/v1/listings, stores them idempotently in PostgreSQL, and
// announces new ones on the listing-ingest topic for the indexer.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion/store"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/config"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		slog.Error("ingestion service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting ingestion service", "port", cfg.Server.Port, "topic", cfg.Kafka.Topics.ListingIngest)

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		stopMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer stopMetrics(context.Background())
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	listings := store.New(db)
	if err := listings.Migrate(ctx); err != nil {
		return err
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ListingIngest)
	defer producer.Close()

	mux := http.NewServeMux()
	handler.New(publisher.New(listings, producer, m), validator.New(cfg.Indexer.Fields)).RegisterRoutes(mux)
	checker := health.NewChecker()
	checker.Register("postgres", health.FromError(db.Ping, false))
	checker.Mount(mux)

	chain := []func(http.Handler) http.Handler{middleware.RequestID, middleware.Metrics(m)}
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		limiter.StartCleanup(ctx, 5*time.Minute)
		chain = append(chain, middleware.RateLimit(limiter))
	}
	chain = append(chain, middleware.Timeout(cfg.Server.WriteTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, chain...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("ingestion service listening", "addr", server.Addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving %s: %w", server.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
