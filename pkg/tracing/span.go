// Package tracing records in-process span trees. The indexer wraps each
// rebuild in a root span with one child per stage (load, build, persist)
// and logs the tree when tracing is enabled.
package tracing

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type spanKey struct{}

// Span is one timed operation. All methods are safe for concurrent use.
type Span struct {
	name    string
	traceID string
	start   time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	attrs    map[string]any
	children []*Span
}

// Start opens a span named name. When ctx already carries a span the new
// one becomes its child and shares its trace ID; otherwise it is a root
// with a fresh trace ID.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{name: name, start: time.Now(), attrs: make(map[string]any)}
	if parent := FromContext(ctx); parent != nil {
		s.traceID = parent.traceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	} else {
		s.traceID = uuid.NewString()
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

// FromContext returns the innermost span in ctx, or nil.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// End fixes the span's duration. Later calls are no-ops.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.duration = time.Since(s.start)
		s.ended = true
	}
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

func (s *Span) Name() string    { return s.name }
func (s *Span) TraceID() string { return s.traceID }

// Duration is the ended span's duration, or the time elapsed so far.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return s.duration
	}
	return time.Since(s.start)
}

// Stages maps each direct child's name to its duration in milliseconds.
func (s *Span) Stages() map[string]int64 {
	s.mu.Lock()
	children := slices.Clone(s.children)
	s.mu.Unlock()
	stages := make(map[string]int64, len(children))
	for _, c := range children {
		stages[c.name] += c.Duration().Milliseconds()
	}
	return stages
}

// LogTo writes one record per span, depth first, attributes sorted by key.
func (s *Span) LogTo(logger *slog.Logger) {
	s.walk(0, func(span *Span, depth int) {
		span.mu.Lock()
		args := []any{
			"trace_id", span.traceID,
			"span", span.name,
			"depth", depth,
			"duration_ms", span.duration.Milliseconds(),
		}
		for _, k := range slices.Sorted(maps.Keys(span.attrs)) {
			args = append(args, k, span.attrs[k])
		}
		span.mu.Unlock()
		logger.Info("span", args...)
	})
}

func (s *Span) walk(depth int, fn func(*Span, int)) {
	fn(s, depth)
	s.mu.Lock()
	children := slices.Clone(s.children)
	s.mu.Unlock()
	for _, c := range children {
		c.walk(depth+1, fn)
	}
}
