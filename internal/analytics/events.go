// Package analytics turns search and index events into aggregate
// statistics: query volume, latency percentiles, cache effectiveness, and
// the most frequent and zero-result queries.
package analytics

import "time"

type EventType string

const (
	EventSearch       EventType = "search"
	EventIndexRebuild EventType = "index_rebuild"
)

// SearchEvent is published by the searcher for every answered query.
type SearchEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Terms      []string  `json:"terms"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  float64   `json:"latency_ms"`
	CacheTier  string    `json:"cache_tier"`
	Generation uint64    `json:"generation"`
	Reranked   bool      `json:"reranked"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

// CacheHit reports whether the result was served from either cache tier.
func (e SearchEvent) CacheHit() bool {
	return e.CacheTier != "" && e.CacheTier != "miss"
}

// IndexEvent is published by the indexer after each rebuild.
type IndexEvent struct {
	Type       EventType `json:"type"`
	Generation uint64    `json:"generation"`
	Documents  int       `json:"documents"`
	Terms      int       `json:"terms"`
	Malformed  int       `json:"malformed"`
	DurationMs float64   `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Recorder accepts search events. *Aggregator records them locally;
// *collector.BatchCollector ships them to Kafka.
type Recorder interface {
	RecordSearch(event SearchEvent)
}
