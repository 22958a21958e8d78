// Package consumer connects the index engine to Kafka. Listing events mark
// the indexer's engine dirty so the rebuild loop picks them up;
// index-complete events make searchers load the new snapshot.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/kafka"
)

// IndexConsumer wraps a Kafka consumer driving one of the handlers below.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// Marker is implemented by *indexer.Engine.
type Marker interface {
	MarkDirty()
}

// Loader is implemented by *indexer.Engine.
type Loader interface {
	Current() *indexer.Snapshot
	LoadSnapshot(ctx context.Context) (*indexer.Snapshot, error)
}

// HandleListingEvent marks m dirty for every new listing. Rebuilds are
// batched by the rebuild loop, so a burst of listings costs one rebuild.
func HandleListingEvent(m Marker) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, msg kafka.Message) error {
		event, err := kafka.DecodeJSON[ingestion.ListingEvent](msg.Value)
		if err != nil {
			logger.Error("failed to decode listing event", "error", err, "key", string(msg.Key))
			return nil
		}
		logger.Debug("listing event received",
			"listing_id", event.ListingID,
			"source", event.Source,
		)
		m.MarkDirty()
		return nil
	}
}

// HandleIndexComplete loads the announced snapshot when it is newer than
// the one l serves, then calls onSwap with it. onSwap may be nil.
func HandleIndexComplete(l Loader, onSwap func(*indexer.Snapshot)) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, msg kafka.Message) error {
		event, err := kafka.DecodeJSON[indexer.IndexCompleteEvent](msg.Value)
		if err != nil {
			logger.Error("failed to decode index-complete event", "error", err)
			return nil
		}
		if cur := l.Current(); cur != nil && cur.Generation >= event.Generation {
			logger.Debug("index-complete event not newer, ignoring",
				"current", cur.Generation,
				"announced", event.Generation,
			)
			return nil
		}
		snap, err := l.LoadSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("loading snapshot generation %d: %w", event.Generation, err)
		}
		logger.Info("snapshot swapped",
			"generation", snap.Generation,
			"documents", snap.Index.N(),
		)
		if onSwap != nil {
			onSwap(snap)
		}
		return nil
	}
}
