// Package executor runs a query against the currently published snapshot:
// plan, BM25 rank, optional year re-rank, and metadata attachment.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/rerank"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/resilience"
)

// SnapshotProvider hands out the snapshot queries run against.
// *indexer.Engine implements it.
type SnapshotProvider interface {
	Snapshot() (*indexer.Snapshot, error)
}

// Request is one search call. Limit 0 takes the configured default; a nil
// Rerank takes the configured default.
type Request struct {
	Query  string
	Limit  int
	Rerank *bool
}

// Hit is one ranked listing.
type Hit struct {
	DocID    int           `json:"doc_id"`
	Score    float64       `json:"score"`
	Metadata corpus.Record `json:"metadata"`
}

// TermStat describes one distinct query term against the snapshot.
type TermStat struct {
	Term    string  `json:"term"`
	DocFreq int     `json:"doc_freq"`
	IDF     float64 `json:"idf,omitempty"`
}

type SearchResult struct {
	Query      string     `json:"query"`
	Terms      []string   `json:"terms"`
	TotalHits  int        `json:"total_hits"`
	Results    []Hit      `json:"results"`
	TermStats  []TermStat `json:"term_stats"`
	Generation uint64     `json:"generation"`
	Reranked   bool       `json:"reranked"`
	TookMs     float64    `json:"took_ms"`
}

// Query is a request bound to one snapshot. Everything that can change the
// result is fixed here, so CacheKey identifies the result exactly.
type Query struct {
	Snapshot *indexer.Snapshot
	Plan     *parser.QueryPlan
	Limit    int
	Rerank   bool
}

// CacheKey scopes the query to its snapshot generation; a rebuild makes
// every older key unreachable.
func (q *Query) CacheKey() string {
	return fmt.Sprintf("g%d|%s|limit=%d|rerank=%t", q.Snapshot.Generation, q.Plan.Canonical(), q.Limit, q.Rerank)
}

type Executor struct {
	provider      SnapshotProvider
	k1            float64
	b             float64
	defaultLimit  int
	maxResults    int
	timeout       time.Duration
	penalty       rerank.YearPenalty
	rerankDefault bool
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// New creates an Executor from the search config section. m may be nil.
func New(provider SnapshotProvider, cfg config.SearchConfig, m *metrics.Metrics) *Executor {
	e := &Executor{
		provider:      provider,
		k1:            cfg.K1,
		b:             cfg.B,
		defaultLimit:  cfg.DefaultLimit,
		maxResults:    cfg.MaxResults,
		timeout:       cfg.QueryTimeout,
		penalty:       rerank.NewYearPenalty(cfg.Rerank.Field, cfg.Rerank.Weight),
		rerankDefault: cfg.Rerank.Enabled,
		metrics:       m,
		logger:        slog.Default().With("component", "query-executor"),
	}
	if e.defaultLimit < 1 {
		e.defaultLimit = ranker.DefaultTopK
	}
	return e
}

// Prepare binds req to the current snapshot. A negative limit is
// ErrInvalidTopK; limits above the configured maximum are clamped.
func (e *Executor) Prepare(req Request) (*Query, error) {
	if req.Limit < 0 {
		return nil, fmt.Errorf("limit %d: %w", req.Limit, apperrors.ErrInvalidTopK)
	}
	snap, err := e.provider.Snapshot()
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit == 0 {
		limit = e.defaultLimit
	}
	if e.maxResults > 0 && limit > e.maxResults {
		limit = e.maxResults
	}
	rr := e.rerankDefault
	if req.Rerank != nil {
		rr = *req.Rerank
	}
	return &Query{
		Snapshot: snap,
		Plan:     parser.Parse(snap.Index.Normalizer(), req.Query),
		Limit:    limit,
		Rerank:   rr,
	}, nil
}

// Search prepares and runs req.
func (e *Executor) Search(ctx context.Context, req Request) (*SearchResult, error) {
	q, err := e.Prepare(req)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, q)
}

// Run executes a prepared query within the configured query timeout.
func (e *Executor) Run(ctx context.Context, q *Query) (*SearchResult, error) {
	start := time.Now()
	result, err := resilience.WithTimeout(ctx, e.timeout, "search", func(context.Context) (*SearchResult, error) {
		return e.run(q)
	})
	if err != nil {
		e.countQuery("error")
		if errors.Is(err, apperrors.ErrTimeout) {
			return nil, apperrors.Newf(apperrors.ErrTimeout, http.StatusGatewayTimeout,
				"search %q exceeded %v", q.Plan.RawQuery, e.timeout)
		}
		return nil, err
	}
	result.TookMs = float64(time.Since(start).Microseconds()) / 1000

	if len(result.Results) == 0 {
		e.countQuery("zero")
	} else {
		e.countQuery("hit")
	}
	if e.metrics != nil {
		e.metrics.SearchResultsCount.Observe(float64(len(result.Results)))
	}
	e.logger.Debug("query executed",
		"query", q.Plan.RawQuery,
		"terms", q.Plan.Terms,
		"generation", q.Snapshot.Generation,
		"total_hits", result.TotalHits,
		"results", len(result.Results),
		"reranked", result.Reranked,
	)
	return result, nil
}

func (e *Executor) run(q *Query) (*SearchResult, error) {
	snap := q.Snapshot
	scored, err := ranker.Rank(snap.Index, q.Plan.Terms, ranker.Params{K1: e.k1, B: e.b, TopK: q.Limit})
	if err != nil {
		return nil, err
	}
	reranked := false
	if q.Rerank && q.Plan.HasYear {
		scored = e.penalty.Apply(q.Plan.RawQuery, scored, snap.Record)
		reranked = true
	}

	hits := make([]Hit, len(scored))
	for i, s := range scored {
		hits[i] = Hit{DocID: s.DocID, Score: s.Score, Metadata: snap.Record(s.DocID)}
	}
	stats, total := termStats(snap, q.Plan.Terms)
	return &SearchResult{
		Query:      q.Plan.RawQuery,
		Terms:      q.Plan.Terms,
		TotalHits:  total,
		Results:    hits,
		TermStats:  stats,
		Generation: snap.Generation,
		Reranked:   reranked,
	}, nil
}

// termStats reports df and idf per term and the number of documents
// matching at least one term.
func termStats(snap *indexer.Snapshot, terms []string) ([]TermStat, int) {
	stats := make([]TermStat, 0, len(terms))
	matched := make(map[int]struct{})
	n := snap.Index.N()
	for _, t := range terms {
		entry, ok := snap.Index.Lookup(t)
		if !ok {
			stats = append(stats, TermStat{Term: t})
			continue
		}
		stats = append(stats, TermStat{Term: t, DocFreq: entry.DocFreq, IDF: ranker.IDF(n, entry.DocFreq)})
		for _, p := range entry.Postings {
			matched[p.DocID] = struct{}{}
		}
	}
	return stats, len(matched)
}

func (e *Executor) countQuery(resultType string) {
	if e.metrics != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}
