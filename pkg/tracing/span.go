// Package tracing times the stages of a single search. A root span is
// opened per request, stages hang child spans off it through the context,
// and the finished tree is emitted as one debug log record.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type spanKey struct{}

// Span is one timed stage. Children may be added from concurrent
// goroutines, e.g. strategies running in parallel.
type Span struct {
	name    string
	traceID string
	start   time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	attrs    []slog.Attr
	children []*Span
}

// StartSpan opens a root span. An empty traceID gets a fresh UUID so log
// records from requests without an id still group together.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	s := &Span{name: name, traceID: traceID, start: time.Now()}
	return context.WithValue(ctx, spanKey{}, s), s
}

// StartChildSpan opens a span under the one carried by ctx. Without a
// parent the span is detached and only its own timing is kept.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{name: name, start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		s.traceID = parent.traceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

// FromContext returns the innermost span in ctx, or nil.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// End fixes the span duration. Later calls are ignored.
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
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

func (s *Span) TraceID() string { return s.traceID }

// ChildDurations maps the names of ended direct children to their
// durations. Children that share a name keep the last one.
func (s *Span) ChildDurations() map[string]time.Duration {
	out := make(map[string]time.Duration)
	for _, c := range s.snapshotChildren() {
		c.mu.Lock()
		if c.ended {
			out[c.name] = c.duration
		}
		c.mu.Unlock()
	}
	return out
}

// Log emits the whole tree as a single debug record, each child nested as
// a group under its name.
func (s *Span) Log(logger *slog.Logger) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := append([]slog.Attr{slog.String("trace_id", s.traceID)}, s.tree()...)
	logger.LogAttrs(context.Background(), slog.LevelDebug, "trace "+s.name, attrs...)
}

func (s *Span) tree() []slog.Attr {
	s.mu.Lock()
	attrs := make([]slog.Attr, 0, len(s.attrs)+len(s.children)+1)
	attrs = append(attrs, slog.Int64("duration_us", s.duration.Microseconds()))
	attrs = append(attrs, s.attrs...)
	s.mu.Unlock()

	for _, c := range s.snapshotChildren() {
		attrs = append(attrs, slog.Attr{Key: c.name, Value: slog.GroupValue(c.tree()...)})
	}
	return attrs
}

func (s *Span) snapshotChildren() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}
