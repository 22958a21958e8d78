package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion/store"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/metrics"
)

type memStore struct {
	byHash map[string]*store.Listing
	next   int64
	err    error
}

func (m *memStore) Insert(_ context.Context, source string, attrs corpus.Record) (*store.Listing, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	hash, err := store.ContentHash(source, attrs)
	if err != nil {
		return nil, false, err
	}
	if l, ok := m.byHash[hash]; ok {
		return l, false, nil
	}
	m.next++
	l := &store.Listing{ID: m.next, Source: source, ContentHash: hash, Attributes: attrs}
	m.byHash[hash] = l
	return l, true, nil
}

type recorder struct {
	mu     sync.Mutex
	events []kafka.Event
	fail   int
}

func (r *recorder) Publish(_ context.Context, e kafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return errors.New("broker unavailable")
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, e := range events {
		if err := r.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func TestIngest_NewAndDuplicate(t *testing.T) {
	s := &memStore{byHash: map[string]*store.Listing{}}
	rec := &recorder{}
	m := metrics.New(prometheus.NewRegistry())
	p := New(s, rec, m)

	req := &ingestion.ListingRequest{Source: "webmotors", Attributes: corpus.Record{"marca": "Fiat"}}
	resp, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusAccepted, resp.Status)
	assert.Equal(t, int64(1), resp.ListingID)

	resp, err = p.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusDuplicate, resp.Status)
	assert.Equal(t, int64(1), resp.ListingID)

	require.Len(t, rec.events, 1)
	assert.Equal(t, ingestion.EventListingIngested, rec.events[0].Type)
	ev := rec.events[0].Value.(ingestion.ListingEvent)
	assert.Equal(t, int64(1), ev.ListingID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ListingsIngested.WithLabelValues("webmotors")))
}

func TestIngest_RetriesPublish(t *testing.T) {
	rec := &recorder{fail: 2}
	p := New(&memStore{byHash: map[string]*store.Listing{}}, rec, nil)
	_, err := p.Ingest(context.Background(), &ingestion.ListingRequest{Source: "icarros", Attributes: corpus.Record{"modelo": "Gol"}})
	require.NoError(t, err)
	assert.Len(t, rec.events, 1)
}

func TestIngest_PublishFailureStillAccepts(t *testing.T) {
	rec := &recorder{fail: 10}
	p := New(&memStore{byHash: map[string]*store.Listing{}}, rec, nil)
	resp, err := p.Ingest(context.Background(), &ingestion.ListingRequest{Source: "icarros", Attributes: corpus.Record{"modelo": "Gol"}})
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusAccepted, resp.Status)
	assert.Empty(t, rec.events)
}

func TestIngest_StoreError(t *testing.T) {
	p := New(&memStore{err: errors.New("connection refused")}, &recorder{}, nil)
	_, err := p.Ingest(context.Background(), &ingestion.ListingRequest{Source: "x", Attributes: corpus.Record{"modelo": "Gol"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storing listing")
}
