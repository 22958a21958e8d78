package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/kafka"
)

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	TotalRebuilds     int64        `json:"total_rebuilds"`
	IndexGeneration   uint64       `json:"index_generation"`
	IndexedDocuments  int          `json:"indexed_documents"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      float64      `json:"p50_latency_ms"`
	P95LatencyMs      float64      `json:"p95_latency_ms"`
	P99LatencyMs      float64      `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	TopTerms          []QueryCount `json:"top_terms"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	CapturedAt        time.Time    `json:"captured_at"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// AggregatorConfig bounds the aggregator's memory. Zero values take
// defaults.
type AggregatorConfig struct {
	QueryCapacity int
	LatencyWindow int
	TopN          int
}

// Aggregator folds events into AggregatedStats. Counts of distinct
// queries and terms live in LRU caches, so rarely seen queries are
// eventually forgotten instead of growing memory without bound. Latency
// percentiles cover the most recent LatencyWindow searches.
type Aggregator struct {
	mu              sync.RWMutex
	totalSearches   int64
	totalRebuilds   int64
	cacheHits       int64
	cacheMisses     int64
	zeroResults     int64
	generation      uint64
	documents       int
	latencies       []float64
	latencyNext     int
	queryCounts     *lru.Cache[string, int64]
	termCounts      *lru.Cache[string, int64]
	zeroResultCount *lru.Cache[string, int64]
	topN            int
	startTime       time.Time
	logger          *slog.Logger
}

func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.QueryCapacity <= 0 {
		cfg.QueryCapacity = 10000
	}
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = 10000
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	queries, _ := lru.New[string, int64](cfg.QueryCapacity)
	terms, _ := lru.New[string, int64](cfg.QueryCapacity)
	zero, _ := lru.New[string, int64](cfg.QueryCapacity)
	return &Aggregator{
		latencies:       make([]float64, 0, cfg.LatencyWindow),
		queryCounts:     queries,
		termCounts:      terms,
		zeroResultCount: zero,
		topN:            cfg.TopN,
		startTime:       time.Now(),
		logger:          slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns a Kafka handler feeding agg. Undecodable messages are
// logged and committed; redelivering them would never succeed.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		switch EventType(msg.Type) {
		case EventIndexRebuild:
			event, err := kafka.DecodeJSON[IndexEvent](msg.Value)
			if err != nil {
				agg.logger.Error("failed to decode index event", "error", err)
				return nil
			}
			agg.RecordIndex(event)
		default:
			event, err := kafka.DecodeJSON[SearchEvent](msg.Value)
			if err != nil {
				agg.logger.Error("failed to decode search event", "error", err)
				return nil
			}
			agg.RecordSearch(event)
		}
		return nil
	}
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	if event.CacheHit() {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}

	if len(a.latencies) < cap(a.latencies) {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % len(a.latencies)
	}

	increment(a.queryCounts, event.Query)
	for _, t := range event.Terms {
		increment(a.termCounts, t)
	}
	if event.TotalHits == 0 {
		a.zeroResults++
		increment(a.zeroResultCount, event.Query)
	}
}

func (a *Aggregator) RecordIndex(event IndexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalRebuilds++
	if event.Generation >= a.generation {
		a.generation = event.Generation
		a.documents = event.Documents
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:    a.totalSearches,
		TotalRebuilds:    a.totalRebuilds,
		IndexGeneration:  a.generation,
		IndexedDocuments: a.documents,
		CacheHits:        a.cacheHits,
		CacheMisses:      a.cacheMisses,
		ZeroResultCount:  a.zeroResults,
		CapturedAt:       time.Now().UTC(),
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)

		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, a.topN)
	stats.TopTerms = topN(a.termCounts, a.topN)
	stats.ZeroResultQueries = topN(a.zeroResultCount, a.topN)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

// Restore seeds counters from a persisted snapshot after a restart.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches += s.TotalSearches
	a.totalRebuilds += s.TotalRebuilds
	a.cacheHits += s.CacheHits
	a.cacheMisses += s.CacheMisses
	a.zeroResults += s.ZeroResultCount
	if s.IndexGeneration > a.generation {
		a.generation = s.IndexGeneration
		a.documents = s.IndexedDocuments
	}
	for _, q := range s.TopQueries {
		add(a.queryCounts, q.Query, q.Count)
	}
	for _, q := range s.TopTerms {
		add(a.termCounts, q.Query, q.Count)
	}
	for _, q := range s.ZeroResultQueries {
		add(a.zeroResultCount, q.Query, q.Count)
	}
}

func increment(c *lru.Cache[string, int64], key string) {
	add(c, key, 1)
}

func add(c *lru.Cache[string, int64], key string, n int64) {
	count, _ := c.Peek(key)
	c.Add(key, count+n)
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n highest counts, ties broken alphabetically.
func topN(counts *lru.Cache[string, int64], n int) []QueryCount {
	keys := counts.Keys()
	result := make([]QueryCount, 0, len(keys))
	for _, k := range keys {
		if v, ok := counts.Peek(k); ok {
			result = append(result, QueryCount{Query: k, Count: v})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
