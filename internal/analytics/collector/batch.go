// Package collector batches analytics events on the producing services
// and ships them to the analytics topic.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/kafka"
)

// BatchCollector implements analytics.Recorder. Events are buffered and
// published when a batch fills or the flush interval passes. While the
// broker is unreachable at most three batches are kept; older events are
// dropped first.
type BatchCollector struct {
	producer    kafka.Publisher
	batchSize   int
	maxBuffered int
	interval    time.Duration
	logger      *slog.Logger

	kick    chan struct{}
	done    chan struct{}
	started atomic.Bool
	dropped atomic.Int64

	flushMu sync.Mutex
	mu      sync.Mutex
	buffer  []kafka.Event
}

var _ analytics.Recorder = (*BatchCollector)(nil)

func NewBatchCollector(producer kafka.Publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		producer:    producer,
		batchSize:   batchSize,
		maxBuffered: 3 * batchSize,
		interval:    flushInterval,
		logger:      slog.Default().With("component", "batch-collector"),
		kick:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		buffer:      make([]kafka.Event, 0, batchSize),
	}
}

// Start runs the flush loop in the background until ctx is cancelled,
// then flushes what is left.
func (bc *BatchCollector) Start(ctx context.Context) {
	bc.started.Store(true)
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				bc.Flush(ctx)
			case <-bc.kick:
				bc.Flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bc.Flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	bc.logger.Info("batch collector started", "batch_size", bc.batchSize, "flush_interval", bc.interval)
}

func (bc *BatchCollector) RecordSearch(event analytics.SearchEvent) {
	bc.Track(kafka.Event{Key: event.Query, Type: string(analytics.EventSearch), Value: event})
}

func (bc *BatchCollector) RecordIndex(event analytics.IndexEvent) {
	bc.Track(kafka.Event{Key: "index", Type: string(analytics.EventIndexRebuild), Value: event})
}

// Track buffers event and wakes the flush loop once a batch is full.
func (bc *BatchCollector) Track(event kafka.Event) {
	bc.mu.Lock()
	bc.buffer = append(bc.buffer, event)
	bc.trimLocked()
	full := len(bc.buffer) >= bc.batchSize
	bc.mu.Unlock()

	if full {
		select {
		case bc.kick <- struct{}{}:
		default:
		}
	}
}

// Close waits for the loop started by Start to finish its final flush.
func (bc *BatchCollector) Close() {
	if bc.started.Load() {
		<-bc.done
	}
}

func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

// Dropped reports how many events were discarded because the buffer was
// full while publishing failed.
func (bc *BatchCollector) Dropped() int64 {
	return bc.dropped.Load()
}

// Flush publishes everything buffered. A failed batch goes back to the
// front of the buffer.
func (bc *BatchCollector) Flush(ctx context.Context) {
	bc.flushMu.Lock()
	defer bc.flushMu.Unlock()

	bc.mu.Lock()
	batch := bc.buffer
	if len(batch) == 0 {
		bc.mu.Unlock()
		return
	}
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()

	if err := bc.producer.PublishBatch(ctx, batch); err != nil {
		bc.logger.Error("analytics batch not published", "events", len(batch), "error", err)
		bc.mu.Lock()
		bc.buffer = append(batch, bc.buffer...)
		bc.trimLocked()
		bc.mu.Unlock()
		return
	}
	bc.logger.Debug("analytics batch published", "events", len(batch))
}

func (bc *BatchCollector) trimLocked() {
	over := len(bc.buffer) - bc.maxBuffered
	if over <= 0 {
		return
	}
	bc.buffer = append(bc.buffer[:0:0], bc.buffer[over:]...)
	bc.dropped.Add(int64(over))
	bc.logger.Warn("analytics buffer full, oldest events dropped", "dropped", over)
}
