// Package cache memoizes search results in two tiers: an in-process LRU
// and a shared Redis tier. Keys embed the snapshot generation, so a
// rebuild retires old entries without explicit invalidation; Invalidate
// exists for operators.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/resilience"
)

const keyPrefix = "search:"

// Cache tiers reported per lookup.
const (
	TierLocal  = "local"
	TierRemote = "remote"
	TierMiss   = "miss"
)

// RemoteStore is the shared tier. *redis.Client implements it.
type RemoteStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	remote  RemoteStore
	local   *lru.Cache[string, *executor.SearchResult]
	breaker *resilience.CircuitBreaker
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger

	localHits  atomic.Int64
	remoteHits atomic.Int64
	misses     atomic.Int64
}

// Options configures a QueryCache. A nil Remote or zero LocalSize disables
// that tier.
type Options struct {
	Remote    RemoteStore
	TTL       time.Duration
	LocalSize int
	Breaker   resilience.CircuitBreakerConfig
	Metrics   *metrics.Metrics
}

func New(opts Options) (*QueryCache, error) {
	c := &QueryCache{
		remote:  opts.Remote,
		ttl:     opts.TTL,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "query-cache"),
	}
	if opts.LocalSize > 0 {
		local, err := lru.New[string, *executor.SearchResult](opts.LocalSize)
		if err != nil {
			return nil, fmt.Errorf("creating local cache: %w", err)
		}
		c.local = local
	}
	breakerCfg := opts.Breaker
	if opts.Metrics != nil && breakerCfg.OnStateChange == nil {
		gauge := opts.Metrics.CircuitBreakerState
		breakerCfg.OnStateChange = func(name string, to resilience.State) {
			gauge.WithLabelValues(name).Set(float64(to))
		}
	}
	c.breaker = resilience.NewCircuitBreaker("redis-cache", breakerCfg)
	return c, nil
}

// Get looks key up in the local tier, then the remote tier. Remote hits
// are promoted into the local tier.
func (c *QueryCache) Get(ctx context.Context, key string) (*executor.SearchResult, string) {
	if c.local != nil {
		if r, ok := c.local.Get(key); ok {
			c.localHits.Add(1)
			c.observeHit(TierLocal)
			return r, TierLocal
		}
	}
	if r, ok := c.getRemote(ctx, key); ok {
		if c.local != nil {
			c.local.Add(key, r)
		}
		c.remoteHits.Add(1)
		c.observeHit(TierRemote)
		return r, TierRemote
	}
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
	return nil, TierMiss
}

func (c *QueryCache) getRemote(ctx context.Context, key string) (*executor.SearchResult, bool) {
	if c.remote == nil {
		return nil, false
	}
	var data []byte
	var found bool
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		data, found, err = c.remote.Get(ctx, remoteKey(key))
		return err
	})
	if err != nil {
		c.logger.Warn("remote cache get failed", "error", err, "breaker", c.breaker.State().String())
		return nil, false
	}
	if !found {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var result executor.SearchResult
	if err := dec.Decode(&result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

// Set stores result in both tiers. Remote failures are logged only.
func (c *QueryCache) Set(ctx context.Context, key string, result *executor.SearchResult) {
	if c.local != nil {
		c.local.Add(key, result)
	}
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.remote.Set(ctx, remoteKey(key), data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("remote cache set failed", "error", err)
	}
}

// GetOrCompute returns the cached result for key or computes it once,
// however many callers ask concurrently. The returned tier is where the
// result came from, TierMiss when computed.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, string, error) {
	if r, tier := c.Get(ctx, key); tier != TierMiss {
		return r, tier, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, TierMiss, err
	}
	return val.(*executor.SearchResult), TierMiss, nil
}

// Invalidate empties the local tier and deletes every remote entry.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	if c.local != nil {
		deleted += int64(c.local.Len())
		c.local.Purge()
	}
	if c.remote != nil {
		n, err := c.remote.FlushByPattern(ctx, keyPrefix+"*")
		if err != nil {
			return deleted, fmt.Errorf("invalidating cache: %w", err)
		}
		deleted += n
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// PurgeLocal drops the in-process tier, used when a newer snapshot is
// installed so memory is not held by unreachable generations.
func (c *QueryCache) PurgeLocal() {
	if c.local != nil {
		c.local.Purge()
	}
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	LocalHits    int64  `json:"local_hits"`
	RemoteHits   int64  `json:"remote_hits"`
	Misses       int64  `json:"misses"`
	LocalEntries int    `json:"local_entries"`
	RemoteTier   string `json:"remote_tier"`
}

func (c *QueryCache) Stats() Stats {
	s := Stats{
		LocalHits:  c.localHits.Load(),
		RemoteHits: c.remoteHits.Load(),
		Misses:     c.misses.Load(),
		RemoteTier: "disabled",
	}
	if c.local != nil {
		s.LocalEntries = c.local.Len()
	}
	if c.remote != nil {
		s.RemoteTier = c.breaker.State().String()
	}
	return s
}

// Ping reports the breaker state as an error for health checks.
func (c *QueryCache) Ping(context.Context) error {
	if c.remote != nil && c.breaker.State() == resilience.StateOpen {
		return resilience.ErrCircuitOpen
	}
	return nil
}

func (c *QueryCache) observeHit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

// remoteKey hashes the logical key so Redis keys stay short.
func remoteKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}
