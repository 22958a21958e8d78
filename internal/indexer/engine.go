// Package indexer owns the build-then-freeze-then-serve lifecycle of the
// listing index. An Engine turns a record Source into an immutable
// Snapshot, persists it, and publishes it with an atomic swap so readers
// never see a half-built index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/tracing"
)

// Options configures an Engine. An empty SnapshotPath disables persistence.
type Options struct {
	Fields          []string
	Normalizer      tokenizer.Options
	SnapshotPath    string
	Codec           segment.Codec
	Compression     segment.Compression
	RebuildInterval time.Duration
	LoadTimeout     time.Duration
	Tracing         bool
}

// OptionsFromConfig maps the indexer and normalizer config sections.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	codec, err := segment.ParseCodec(cfg.Indexer.Codec)
	if err != nil {
		return Options{}, err
	}
	compression, err := segment.ParseCompression(cfg.Indexer.Compression)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Fields: cfg.Indexer.Fields,
		Normalizer: tokenizer.Options{
			KeepDigits: cfg.Normalizer.KeepDigits,
			Stemmer:    cfg.Normalizer.Stemmer,
		},
		SnapshotPath:    cfg.Indexer.SnapshotPath(),
		Codec:           codec,
		Compression:     compression,
		RebuildInterval: cfg.Indexer.RebuildInterval,
		LoadTimeout:     cfg.Indexer.LoadTimeout,
		Tracing:         cfg.Tracing.Enabled,
	}, nil
}

type Engine struct {
	opts       Options
	source     Source
	normalizer *tokenizer.Normalizer
	builder    *corpus.Builder
	writer     *segment.Writer
	notifier   kafka.Publisher
	metrics    *metrics.Metrics
	current    atomic.Pointer[Snapshot]
	dirty      atomic.Bool
	group      singleflight.Group
	onRebuild  func(snap *Snapshot, took time.Duration)
	logger     *slog.Logger
}

// NewEngine creates an Engine. source may be nil for read-only engines
// that only load persisted snapshots. notifier and m may be nil.
func NewEngine(opts Options, source Source, notifier kafka.Publisher, m *metrics.Metrics) (*Engine, error) {
	n, err := tokenizer.New(opts.Normalizer)
	if err != nil {
		return nil, fmt.Errorf("creating normalizer: %w", err)
	}
	if opts.Codec == 0 {
		opts.Codec = segment.CodecJSON
	}
	if opts.RebuildInterval <= 0 {
		opts.RebuildInterval = 30 * time.Second
	}
	e := &Engine{
		opts:       opts,
		source:     source,
		normalizer: n,
		builder:    corpus.NewBuilder(opts.Fields),
		notifier:   notifier,
		metrics:    m,
		logger:     slog.Default().With("component", "indexer"),
	}
	if opts.SnapshotPath != "" {
		e.writer = segment.NewWriter(opts.SnapshotPath, opts.Codec, opts.Compression)
	}
	return e, nil
}

// NormalizerOptions returns the options a rebuild indexes with. A loaded
// snapshot keeps the options it was built with.
func (e *Engine) NormalizerOptions() tokenizer.Options {
	return e.normalizer.Options()
}

// OnRebuild registers fn to run after every successful rebuild. It must be
// set before the first rebuild.
func (e *Engine) OnRebuild(fn func(snap *Snapshot, took time.Duration)) {
	e.onRebuild = fn
}

// Current returns the published snapshot, or nil before the first load.
func (e *Engine) Current() *Snapshot {
	return e.current.Load()
}

// Snapshot returns the published snapshot or ErrIndexNotReady.
func (e *Engine) Snapshot() (*Snapshot, error) {
	s := e.current.Load()
	if s == nil {
		return nil, apperrors.ErrIndexNotReady
	}
	return s, nil
}

// MarkDirty schedules a rebuild on the next loop tick.
func (e *Engine) MarkDirty() {
	e.dirty.Store(true)
}

// Dirty reports whether a rebuild is pending.
func (e *Engine) Dirty() bool {
	return e.dirty.Load()
}

// LoadSnapshot reads the persisted snapshot and publishes it unless the
// engine already serves the same or a newer generation. A missing file is
// reported as ErrIndexNotReady.
func (e *Engine) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	if e.opts.SnapshotPath == "" {
		return nil, fmt.Errorf("no snapshot path configured: %w", apperrors.ErrIndexNotReady)
	}
	v, err, _ := e.group.Do("load", func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, header, err := segment.Read(e.opts.SnapshotPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("snapshot %s: %w", e.opts.SnapshotPath, apperrors.ErrIndexNotReady)
			}
			return nil, err
		}
		idx, err := doc.Index()
		if err != nil {
			return nil, fmt.Errorf("restoring index from %s: %w", e.opts.SnapshotPath, err)
		}
		snap := &Snapshot{
			Index:      idx,
			Metadata:   doc.Metadata,
			Fields:     doc.Fields,
			Generation: doc.Generation,
			BuiltAt:    header.CreatedAt,
		}
		if cur := e.current.Load(); cur != nil && cur.Generation >= snap.Generation {
			e.logger.Debug("snapshot not newer than current, keeping current",
				"current", cur.Generation,
				"loaded", snap.Generation,
			)
			return cur, nil
		}
		e.publish(snap)
		e.logger.Info("snapshot loaded",
			"path", e.opts.SnapshotPath,
			"generation", snap.Generation,
			"documents", idx.N(),
			"terms", idx.TermCount(),
			"codec", header.Codec,
			"compression", header.Compression,
		)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Rebuild reads the source, builds a fresh index, persists it and
// publishes it. Concurrent calls share one build.
func (e *Engine) Rebuild(ctx context.Context) (*Snapshot, error) {
	if e.source == nil {
		return nil, fmt.Errorf("engine has no record source: %w", apperrors.ErrInvalidInput)
	}
	v, err, shared := e.group.Do("rebuild", func() (any, error) {
		return e.rebuild(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		e.logger.Debug("rebuild shared with concurrent caller")
	}
	return v.(*Snapshot), nil
}

func (e *Engine) rebuild(ctx context.Context) (snap *Snapshot, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "index.rebuild")
	defer func() {
		span.SetAttr("ok", err == nil)
		span.End()
		if e.opts.Tracing {
			span.LogTo(e.logger)
		}
		e.observeRebuild(start, err)
	}()

	records, err := e.loadRecords(ctx)
	if err != nil {
		return nil, err
	}

	_, buildSpan := tracing.Start(ctx, "build")
	c := e.builder.Build(records)
	idx, err := index.BuildIndex(e.normalizer, c)
	buildSpan.SetAttr("documents", c.Len())
	buildSpan.End()
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}

	var generation uint64 = 1
	if cur := e.current.Load(); cur != nil {
		generation = cur.Generation + 1
	}
	snap = &Snapshot{
		Index:      idx,
		Metadata:   c.AllMetadata(),
		Fields:     e.builder.Fields(),
		Generation: generation,
		BuiltAt:    time.Now().UTC(),
		Malformed:  len(c.Malformed),
	}

	if e.writer != nil {
		_, persistSpan := tracing.Start(ctx, "persist")
		header, err := e.writer.Write(segment.FromIndex(idx, snap.Metadata, snap.Fields, generation))
		persistSpan.SetAttr("payload_size", header.PayloadSize)
		persistSpan.End()
		if err != nil {
			return nil, fmt.Errorf("persisting snapshot: %w", err)
		}
		snap.BuiltAt = header.CreatedAt
	}

	e.publish(snap)
	if e.metrics != nil && snap.Malformed > 0 {
		e.metrics.MalformedRecords.Add(float64(snap.Malformed))
	}
	e.logger.Info("index rebuilt",
		"generation", generation,
		"documents", idx.N(),
		"terms", idx.TermCount(),
		"avg_doc_length", idx.AvgDocLength(),
		"malformed", snap.Malformed,
		"duration", time.Since(start),
		"stages_ms", span.Stages(),
	)
	e.notify(ctx, snap)
	if e.onRebuild != nil {
		e.onRebuild(snap, time.Since(start))
	}
	return snap, nil
}

func (e *Engine) loadRecords(ctx context.Context) ([]corpus.Record, error) {
	ctx, span := tracing.Start(ctx, "load")
	defer span.End()

	records, err := resilience.WithTimeout(ctx, e.opts.LoadTimeout, "load-records", func(ctx context.Context) ([]corpus.Record, error) {
		var records []corpus.Record
		err := resilience.Retry(ctx, "load-records", resilience.RetryConfig{}, func() error {
			var err error
			records, err = e.source.Records(ctx)
			if errors.Is(err, apperrors.ErrInvalidInput) || errors.Is(err, os.ErrNotExist) {
				return resilience.Permanent(err)
			}
			return err
		})
		return records, err
	})
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	span.SetAttr("records", len(records))
	return records, nil
}

func (e *Engine) publish(snap *Snapshot) {
	e.current.Store(snap)
	if e.metrics != nil {
		e.metrics.IndexDocuments.Set(float64(snap.Index.N()))
		e.metrics.IndexTerms.Set(float64(snap.Index.TermCount()))
		e.metrics.IndexGeneration.Set(float64(snap.Generation))
	}
}

func (e *Engine) observeRebuild(start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.IndexRebuildsTotal.WithLabelValues(status).Inc()
	e.metrics.IndexRebuildDuration.Observe(time.Since(start).Seconds())
}

func (e *Engine) notify(ctx context.Context, snap *Snapshot) {
	if e.notifier == nil {
		return
	}
	event := kafka.Event{
		Key:  "index",
		Type: EventIndexComplete,
		Value: IndexCompleteEvent{
			Generation:   snap.Generation,
			Documents:    snap.Index.N(),
			Terms:        snap.Index.TermCount(),
			SnapshotPath: e.opts.SnapshotPath,
			BuiltAt:      snap.BuiltAt,
		},
	}
	err := resilience.Retry(ctx, "publish-index-complete", resilience.RetryConfig{}, func() error {
		return e.notifier.Publish(ctx, event)
	})
	if err != nil {
		e.logger.Error("failed to publish index-complete event", "generation", snap.Generation, "error", err)
	}
}

// StartRebuildLoop rebuilds on every tick while the engine is marked
// dirty. A failed rebuild leaves the engine dirty so the next tick retries.
func (e *Engine) StartRebuildLoop(ctx context.Context) {
	ticker := time.NewTicker(e.opts.RebuildInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("rebuild loop stopping")
				return
			case <-ticker.C:
				if !e.dirty.Swap(false) {
					continue
				}
				if _, err := e.Rebuild(ctx); err != nil {
					e.dirty.Store(true)
					e.logger.Error("periodic rebuild failed", "error", err)
				}
			}
		}
	}()
	e.logger.Info("rebuild loop started", "interval", e.opts.RebuildInterval)
}
