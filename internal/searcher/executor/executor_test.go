package executor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/metrics"
)

func newEngine(t *testing.T, records indexer.StaticSource) *indexer.Engine {
	t.Helper()
	e, err := indexer.NewEngine(indexer.Options{Fields: corpus.DefaultFields}, records, nil, nil)
	require.NoError(t, err)
	_, err = e.Rebuild(context.Background())
	require.NoError(t, err)
	return e
}

var civics = indexer.StaticSource{
	{"marca": "Honda", "modelo": "Civic", "ano": "2010"},
	{"marca": "Honda", "modelo": "Civic", "ano": "2014"},
	{"marca": "Honda", "modelo": "Civic", "ano": "2019"},
	{"marca": "Fiat", "modelo": "Uno", "ano": "2015"},
}

func boolPtr(b bool) *bool { return &b }

func TestSearch_AttachesMetadataAndStats(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	ex := New(newEngine(t, civics), config.Default().Search, m)

	res, err := ex.Search(context.Background(), Request{Query: "honda civic fusca"})
	require.NoError(t, err)
	require.Len(t, res.Results, 3)
	assert.Equal(t, 3, res.TotalHits)
	assert.Equal(t, uint64(1), res.Generation)
	assert.Equal(t, []string{"honda", "civic", "fusca"}, res.Terms)
	for _, h := range res.Results {
		assert.Equal(t, "Civic", h.Metadata["modelo"])
	}
	require.Len(t, res.TermStats, 3)
	assert.Equal(t, 3, res.TermStats[0].DocFreq)
	assert.Greater(t, res.TermStats[0].IDF, 0.0)
	assert.Equal(t, TermStat{Term: "fusca"}, res.TermStats[2])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")))
}

func TestSearch_RerankByYear(t *testing.T) {
	ex := New(newEngine(t, civics), config.Default().Search, nil)

	plain, err := ex.Search(context.Background(), Request{Query: "civic 2018"})
	require.NoError(t, err)
	assert.False(t, plain.Reranked)
	assert.Equal(t, 0, plain.Results[0].DocID, "ties keep document order without re-rank")

	res, err := ex.Search(context.Background(), Request{Query: "civic 2018", Rerank: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, res.Reranked)
	require.Len(t, res.Results, 3)
	assert.Equal(t, 2, res.Results[0].DocID)
	assert.Equal(t, 1, res.Results[1].DocID)
	assert.Equal(t, 0, res.Results[2].DocID)
	assert.InDelta(t, plain.Results[0].Score-0.05, res.Results[0].Score, 1e-9)
}

func TestSearch_RerankWithoutYearIsNoop(t *testing.T) {
	ex := New(newEngine(t, civics), config.Default().Search, nil)
	res, err := ex.Search(context.Background(), Request{Query: "civic", Rerank: boolPtr(true)})
	require.NoError(t, err)
	assert.False(t, res.Reranked)
}

func TestSearch_Limits(t *testing.T) {
	cfg := config.Default().Search
	cfg.MaxResults = 2
	ex := New(newEngine(t, civics), cfg, nil)

	res, err := ex.Search(context.Background(), Request{Query: "honda", Limit: 50})
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, 3, res.TotalHits)

	_, err = ex.Search(context.Background(), Request{Query: "honda", Limit: -1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTopK)
}

func TestSearch_DegenerateAndEmpty(t *testing.T) {
	ex := New(newEngine(t, civics), config.Default().Search, nil)
	res, err := ex.Search(context.Background(), Request{Query: "de para ?!"})
	require.NoError(t, err)
	assert.NotNil(t, res.Results)
	assert.Empty(t, res.Results)

	empty := New(newEngine(t, indexer.StaticSource{}), config.Default().Search, nil)
	_, err = empty.Search(context.Background(), Request{Query: "civic"})
	assert.ErrorIs(t, err, apperrors.ErrEmptyCorpus)
}

func TestSearch_NotReady(t *testing.T) {
	e, err := indexer.NewEngine(indexer.Options{}, nil, nil, nil)
	require.NoError(t, err)
	_, err = New(e, config.Default().Search, nil).Search(context.Background(), Request{Query: "civic"})
	assert.ErrorIs(t, err, apperrors.ErrIndexNotReady)
}

func TestCacheKey_ScopedByGeneration(t *testing.T) {
	e := newEngine(t, civics)
	ex := New(e, config.Default().Search, nil)

	q1, err := ex.Prepare(Request{Query: "Honda, CIVIC!"})
	require.NoError(t, err)
	q2, err := ex.Prepare(Request{Query: "honda civic"})
	require.NoError(t, err)
	assert.Equal(t, q1.CacheKey(), q2.CacheKey())

	q3, err := ex.Prepare(Request{Query: "honda civic", Limit: 5})
	require.NoError(t, err)
	assert.NotEqual(t, q1.CacheKey(), q3.CacheKey())

	_, err = e.Rebuild(context.Background())
	require.NoError(t, err)
	q4, err := ex.Prepare(Request{Query: "honda civic"})
	require.NoError(t, err)
	assert.NotEqual(t, q1.CacheKey(), q4.CacheKey())
}

func TestSearchResult_JSONShape(t *testing.T) {
	ex := New(newEngine(t, civics), config.Default().Search, nil)
	res, err := ex.Search(context.Background(), Request{Query: "uno"})
	require.NoError(t, err)
	b, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	for _, key := range []string{"query", "total_hits", "results", "term_stats"} {
		assert.Contains(t, decoded, key)
	}
	first := decoded["results"].([]any)[0].(map[string]any)
	assert.Contains(t, first, "doc_id")
	assert.Contains(t, first, "score")
	assert.Contains(t, first, "metadata")
}
