// Package handler serves the searcher's HTTP API.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/middleware"
)

// CacheHeader reports which cache tier answered a search.
const CacheHeader = "X-Cache"

type Handler struct {
	executor *executor.Executor
	provider executor.SnapshotProvider
	cache    *cache.QueryCache
	recorder analytics.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Handler. queryCache, recorder and m may be nil.
func New(
	exec *executor.Executor,
	provider executor.SnapshotProvider,
	queryCache *cache.QueryCache,
	recorder analytics.Recorder,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		executor: exec,
		provider: provider,
		cache:    queryCache,
		recorder: recorder,
		metrics:  m,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search serves GET /api/v1/search?q=&limit=&rerank=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := logger.WithRequestID(r.Context(), middleware.GetRequestID(r))
	log := logger.FromContext(ctx)

	params := r.URL.Query()
	query := params.Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	req := executor.Request{Query: query}
	if v := params.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		if limit < 1 {
			h.writeError(w, http.StatusBadRequest, apperrors.ErrInvalidTopK.Error())
			return
		}
		req.Limit = limit
	}
	if v := params.Get("rerank"); v != "" {
		rr, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "rerank must be a boolean")
			return
		}
		req.Rerank = &rr
	}

	q, err := h.executor.Prepare(req)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.PublicMessage(err))
		return
	}

	var result *executor.SearchResult
	tier := "disabled"
	if h.cache != nil {
		result, tier, err = h.cache.GetOrCompute(ctx, q.CacheKey(), func() (*executor.SearchResult, error) {
			return h.executor.Run(ctx, q)
		})
	} else {
		result, err = h.executor.Run(ctx, q)
	}
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("search execution failed", "query", query, "error", err)
		}
		h.writeError(w, status, apperrors.PublicMessage(err))
		return
	}

	elapsed := time.Since(start)
	// Cached results are shared between queries with the same plan; the
	// response echoes this request's text and timing.
	hit := tier == cache.TierLocal || tier == cache.TierRemote
	if hit || result.Query != query {
		own := *result
		own.Query = query
		if hit {
			own.TookMs = float64(elapsed.Microseconds()) / 1000
		}
		result = &own
	}
	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(tier).Observe(elapsed.Seconds())
	}
	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_tier", tier,
		"generation", result.Generation,
		"latency_ms", elapsed.Milliseconds(),
	)
	if h.recorder != nil {
		h.recorder.RecordSearch(analytics.SearchEvent{
			Type:       analytics.EventSearch,
			Query:      query,
			Terms:      q.Plan.Terms,
			TotalHits:  result.TotalHits,
			Returned:   len(result.Results),
			LatencyMs:  float64(elapsed.Microseconds()) / 1000,
			CacheTier:  tier,
			Generation: result.Generation,
			Reranked:   result.Reranked,
			Timestamp:  time.Now().UTC(),
			RequestID:  logger.RequestID(ctx),
		})
	}

	w.Header().Set(CacheHeader, tier)
	h.writeJSON(w, http.StatusOK, result)
}

// IndexStats serves GET /api/v1/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.provider.Snapshot()
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.PublicMessage(err))
		return
	}
	h.writeJSON(w, http.StatusOK, snap.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	total := stats.LocalHits + stats.RemoteHits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.LocalHits+stats.RemoteHits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"stats":    stats,
		"total":    total,
		"hit_rate": hitRate,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
