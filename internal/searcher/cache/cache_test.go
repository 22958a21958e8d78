package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/resilience"
)

type memRemote struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
	gets int
}

func newMemRemote() *memRemote { return &memRemote{data: map[string][]byte{}} }

func (m *memRemote) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memRemote) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memRemote) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func result(query string) *executor.SearchResult {
	return &executor.SearchResult{
		Query:     query,
		TotalHits: 1,
		Results: []executor.Hit{{
			DocID:    0,
			Score:    1.25,
			Metadata: corpus.Record{"marca": "Fiat"},
		}},
	}
}

func TestGetOrCompute_Tiers(t *testing.T) {
	remote := newMemRemote()
	m := metrics.New(prometheus.NewRegistry())
	c, err := New(Options{Remote: remote, LocalSize: 8, TTL: time.Minute, Metrics: m})
	require.NoError(t, err)
	ctx := context.Background()

	var computed atomic.Int32
	compute := func() (*executor.SearchResult, error) {
		computed.Add(1)
		return result("fiat"), nil
	}

	r, tier, err := c.GetOrCompute(ctx, "g1|fiat", compute)
	require.NoError(t, err)
	assert.Equal(t, TierMiss, tier)
	assert.Equal(t, "fiat", r.Query)

	_, tier, err = c.GetOrCompute(ctx, "g1|fiat", compute)
	require.NoError(t, err)
	assert.Equal(t, TierLocal, tier)

	c.PurgeLocal()
	r, tier, err = c.GetOrCompute(ctx, "g1|fiat", compute)
	require.NoError(t, err)
	assert.Equal(t, TierRemote, tier)
	assert.Equal(t, 1.25, r.Results[0].Score)
	assert.Equal(t, "Fiat", r.Results[0].Metadata["marca"])

	assert.Equal(t, int32(1), computed.Load())
	s := c.Stats()
	assert.Equal(t, int64(1), s.LocalHits)
	assert.Equal(t, int64(1), s.RemoteHits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, "closed", s.RemoteTier)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues(TierRemote)))
}

func TestGetOrCompute_CollapsesConcurrentMisses(t *testing.T) {
	c, err := New(Options{LocalSize: 8})
	require.NoError(t, err)

	var computed atomic.Int32
	gate := make(chan struct{})
	compute := func() (*executor.SearchResult, error) {
		computed.Add(1)
		<-gate
		return result("gol"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), "g1|gol", compute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	assert.Equal(t, int32(1), computed.Load())
}

func TestGetOrCompute_ErrorNotCached(t *testing.T) {
	c, err := New(Options{LocalSize: 8})
	require.NoError(t, err)
	boom := errors.New("boom")
	_, _, err = c.GetOrCompute(context.Background(), "k", func() (*executor.SearchResult, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	_, tier := c.Get(context.Background(), "k")
	assert.Equal(t, TierMiss, tier)
}

func TestRemoteFailuresTripBreaker(t *testing.T) {
	remote := newMemRemote()
	remote.err = errors.New("connection refused")
	c, err := New(Options{
		Remote:  remote,
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _, err := c.GetOrCompute(context.Background(), "k", func() (*executor.SearchResult, error) {
			return result("x"), nil
		})
		require.NoError(t, err, "remote failures never fail the search")
	}
	assert.Equal(t, "open", c.Stats().RemoteTier)
	assert.ErrorIs(t, c.Ping(context.Background()), resilience.ErrCircuitOpen)
	assert.LessOrEqual(t, remote.gets, 2)
}

func TestInvalidate(t *testing.T) {
	remote := newMemRemote()
	c, err := New(Options{Remote: remote, LocalSize: 8})
	require.NoError(t, err)
	ctx := context.Background()
	c.Set(ctx, "a", result("a"))
	c.Set(ctx, "b", result("b"))

	n, err := c.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Empty(t, remote.data)
	_, tier := c.Get(ctx, "a")
	assert.Equal(t, TierMiss, tier)
}

func TestRemoteKey(t *testing.T) {
	k := remoteKey("g1|fiat|limit=10|rerank=false")
	assert.True(t, strings.HasPrefix(k, keyPrefix))
	assert.Len(t, k, len(keyPrefix)+32)
	assert.NotEqual(t, k, remoteKey("g2|fiat|limit=10|rerank=false"))
}
