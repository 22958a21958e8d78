// Package metrics defines the Prometheus collectors shared by the carsearch
// services and serves them for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	searchBuckets  = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	rebuildBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60}
)

// Metrics holds every collector. A service touches only the ones for the
// paths it runs; the rest stay at zero.
type Metrics struct {
	// HTTP layer, labelled by route.
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Query path.
	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       *prometheus.HistogramVec
	SearchResultsCount  prometheus.Histogram
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec

	// Intake and indexing.
	ListingsIngested     *prometheus.CounterVec
	IndexRebuildsTotal   *prometheus.CounterVec
	IndexRebuildDuration prometheus.Histogram
	IndexDocuments       prometheus.Gauge
	IndexTerms           prometheus.Gauge
	IndexGeneration      prometheus.Gauge
	MalformedRecords     prometheus.Counter
}

// New creates the collectors on reg; nil means the default registerer.
// Tests pass a fresh prometheus.NewRegistry so instances do not collide.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	}

	return &Metrics{
		HTTPRequestsTotal: counterVec("http_requests_total",
			"HTTP requests by method, route and status.", "method", "path", "status"),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: latencyBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: gauge("http_requests_in_flight", "HTTP requests being served."),

		SearchQueriesTotal: counterVec("search_queries_total",
			"Executed searches by outcome: hit, zero or error.", "result_type"),
		SearchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "search_latency_seconds",
			Help:    "End-to-end search latency by cache tier.",
			Buckets: searchBuckets,
		}, []string{"cache_status"}),
		SearchResultsCount: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "search_results_count",
			Help:    "Hits returned per search.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		CacheHitsTotal:   counterVec("cache_hits_total", "Query cache hits by tier (local, redis).", "tier"),
		CacheMissesTotal: counter("cache_misses_total", "Query cache misses in both tiers."),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),

		ListingsIngested:   counterVec("listings_ingested_total", "New listings stored, by source site.", "source"),
		IndexRebuildsTotal: counterVec("index_rebuilds_total", "Index rebuilds by status.", "status"),
		IndexRebuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "index_rebuild_duration_seconds",
			Help:    "Wall time of a load, build and persist cycle.",
			Buckets: rebuildBuckets,
		}),
		IndexDocuments:   gauge("index_documents", "Documents in the served index."),
		IndexTerms:       gauge("index_terms", "Distinct terms in the served index."),
		IndexGeneration:  gauge("index_generation", "Generation of the served index."),
		MalformedRecords: counter("corpus_malformed_records_total", "Records indexed empty because no configured attribute had text."),
	}
}

// HandlerFor serves what g gathers, negotiating OpenMetrics when asked.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
