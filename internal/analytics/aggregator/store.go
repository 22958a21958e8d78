// Package aggregator persists aggregated search analytics to PostgreSQL so
// counters survive searcher restarts and past windows can be charted.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/postgres"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id               BIGSERIAL   PRIMARY KEY,
    captured_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    index_generation BIGINT      NOT NULL DEFAULT 0,
    total_searches   BIGINT      NOT NULL DEFAULT 0,
    data             JSONB       NOT NULL
)`, `
CREATE INDEX IF NOT EXISTS analytics_snapshots_captured_at_idx
    ON analytics_snapshots (captured_at DESC)`,
}

type Store struct {
	db        *postgres.Client
	retention time.Duration
	logger    *slog.Logger
}

// NewStore creates a Store. Snapshots older than retention are deleted on
// every save; zero keeps them forever.
func NewStore(db *postgres.Client, retention time.Duration) *Store {
	return &Store{
		db:        db,
		retention: retention,
		logger:    slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, "analytics_snapshots", schema...)
}

// SaveSnapshot inserts stats and prunes expired rows in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding analytics snapshot: %w", err)
	}
	capturedAt := stats.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	var pruned int64
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_snapshots (captured_at, index_generation, total_searches, data)
			 VALUES ($1, $2, $3, $4)`,
			capturedAt, int64(stats.IndexGeneration), stats.TotalSearches, data,
		); err != nil {
			return fmt.Errorf("inserting analytics snapshot: %w", err)
		}
		if s.retention <= 0 {
			return nil
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM analytics_snapshots WHERE captured_at < $1`,
			capturedAt.Add(-s.retention),
		)
		if err != nil {
			return fmt.Errorf("pruning analytics snapshots: %w", err)
		}
		pruned, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("analytics snapshot saved",
		"total_searches", stats.TotalSearches,
		"index_generation", stats.IndexGeneration,
		"pruned", pruned,
	)
	return nil
}

// LatestSnapshot returns the newest snapshot, or nil when none was saved.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	snapshots, err := s.ListSnapshots(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, nil
	}
	return &snapshots[0], nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows whose
// payload no longer decodes are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT captured_at, data FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing analytics snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []analytics.AggregatedStats
	for rows.Next() {
		var (
			capturedAt time.Time
			data       []byte
		)
		if err := rows.Scan(&capturedAt, &data); err != nil {
			return nil, fmt.Errorf("scanning analytics snapshot: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping undecodable analytics snapshot", "captured_at", capturedAt, "error", err)
			continue
		}
		stats.CapturedAt = capturedAt.UTC()
		snapshots = append(snapshots, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading analytics snapshots: %w", err)
	}
	return snapshots, nil
}

// Resume seeds agg from the newest snapshot, if any.
func (s *Store) Resume(ctx context.Context, agg *analytics.Aggregator) error {
	latest, err := s.LatestSnapshot(ctx)
	if err != nil || latest == nil {
		return err
	}
	agg.Restore(*latest)
	s.logger.Info("analytics resumed",
		"captured_at", latest.CapturedAt,
		"total_searches", latest.TotalSearches,
		"index_generation", latest.IndexGeneration,
	)
	return nil
}

// StartPeriodicSave snapshots agg every interval while its counters move,
// and once more when ctx is cancelled.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var lastSearches, lastRebuilds int64 = -1, -1
		save := func(ctx context.Context, reason string) {
			stats := agg.Stats()
			if stats.TotalSearches == lastSearches && stats.TotalRebuilds == lastRebuilds {
				return
			}
			if err := s.SaveSnapshot(ctx, stats); err != nil {
				s.logger.Error("analytics snapshot failed", "reason", reason, "error", err)
				return
			}
			lastSearches, lastRebuilds = stats.TotalSearches, stats.TotalRebuilds
		}
		for {
			select {
			case <-ticker.C:
				save(ctx, "interval")
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				save(shutdownCtx, "shutdown")
				cancel()
				return
			}
		}
	}()
	s.logger.Info("periodic analytics snapshots started", "interval", interval, "retention", s.retention)
}
