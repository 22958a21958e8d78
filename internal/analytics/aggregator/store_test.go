package aggregator

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/postgres"
)

// openTestStore connects to CARSEARCH_TEST_POSTGRES_DSN and empties the
// snapshot table, skipping the test when no database is available.
func openTestStore(t *testing.T, retention time.Duration) (*Store, *postgres.Client) {
	t.Helper()
	dsn := os.Getenv("CARSEARCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CARSEARCH_TEST_POSTGRES_DSN not set")
	}
	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	db := postgres.Wrap(sqlDB)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.Ping(ctx); err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	s := NewStore(db, retention)
	require.NoError(t, s.Migrate(ctx))
	_, err = db.DB.ExecContext(ctx, `TRUNCATE analytics_snapshots`)
	require.NoError(t, err)
	return s, db
}

func TestStore_SaveListResume(t *testing.T) {
	s, _ := openTestStore(t, 0)
	ctx := context.Background()

	latest, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	agg := analytics.NewAggregator(analytics.AggregatorConfig{})
	agg.RecordSearch(analytics.SearchEvent{Query: "civic", TotalHits: 3, Returned: 3, CacheTier: "miss"})
	require.NoError(t, s.SaveSnapshot(ctx, agg.Stats()))
	time.Sleep(10 * time.Millisecond)
	agg.RecordSearch(analytics.SearchEvent{Query: "civic", TotalHits: 3, Returned: 3, CacheTier: "local"})
	require.NoError(t, s.SaveSnapshot(ctx, agg.Stats()))

	history, err := s.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(2), history[0].TotalSearches, "newest first")
	assert.True(t, history[0].CapturedAt.After(history[1].CapturedAt))

	resumed := analytics.NewAggregator(analytics.AggregatorConfig{})
	require.NoError(t, s.Resume(ctx, resumed))
	stats := resumed.Stats()
	assert.Equal(t, int64(2), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestStore_SavePrunesExpiredSnapshots(t *testing.T) {
	s, db := openTestStore(t, time.Hour)
	ctx := context.Background()

	_, err := db.DB.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (captured_at, data) VALUES (NOW() - INTERVAL '2 hours', '{}')`)
	require.NoError(t, err)

	require.NoError(t, s.SaveSnapshot(ctx, analytics.AggregatedStats{TotalSearches: 1}))

	var n int
	require.NoError(t, db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM analytics_snapshots`).Scan(&n))
	assert.Equal(t, 1, n)
}
