// Package publisher persists listings and announces new ones on the
// listing-ingest topic so the indexer knows its corpus changed.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion/store"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/resilience"
)

// ListingStore is the persistence the publisher needs. *store.Store
// implements it.
type ListingStore interface {
	Insert(ctx context.Context, source string, attrs corpus.Record) (*store.Listing, bool, error)
}

// Publisher coordinates listing persistence and event production.
type Publisher struct {
	store    ListingStore
	producer kafka.Publisher
	metrics  *metrics.Metrics
	retry    resilience.RetryConfig
	logger   *slog.Logger
}

// New creates a Publisher. m may be nil.
func New(s ListingStore, producer kafka.Publisher, m *metrics.Metrics) *Publisher {
	return &Publisher{
		store:    s,
		producer: producer,
		metrics:  m,
		retry:    resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond},
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest stores the listing and publishes a ListingEvent for new rows.
// Duplicates are reported without an event. A failed publish is logged
// but does not fail the request: the row is stored and the next rebuild
// picks it up anyway.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.ListingRequest) (*ingestion.ListingResponse, error) {
	listing, inserted, err := p.store.Insert(ctx, req.Source, req.Attributes)
	if err != nil {
		return nil, fmt.Errorf("storing listing: %w", err)
	}
	resp := &ingestion.ListingResponse{
		ListingID:   listing.ID,
		ContentHash: listing.ContentHash,
		Status:      ingestion.StatusAccepted,
	}
	if !inserted {
		p.logger.Info("duplicate listing", "listing_id", listing.ID, "source", req.Source)
		resp.Status = ingestion.StatusDuplicate
		return resp, nil
	}
	if p.metrics != nil {
		p.metrics.ListingsIngested.WithLabelValues(req.Source).Inc()
	}

	event := kafka.Event{
		Key:  listing.ContentHash,
		Type: ingestion.EventListingIngested,
		Value: ingestion.ListingEvent{
			ListingID:   listing.ID,
			Source:      listing.Source,
			ContentHash: listing.ContentHash,
			IngestedAt:  time.Now().UTC(),
		},
	}
	err = resilience.Retry(ctx, "publish-listing", p.retry, func() error {
		return p.producer.Publish(ctx, event)
	})
	if err != nil {
		p.logger.Error("failed to publish listing event, index will catch up on next rebuild",
			"listing_id", listing.ID,
			"error", err,
		)
	}
	return resp, nil
}
