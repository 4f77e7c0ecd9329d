package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildSpansShareTrace(t *testing.T) {
	t.Parallel()

	ctx, root := StartSpan(context.Background(), "search", "req-1")
	var wg sync.WaitGroup
	for _, name := range []string{"bm25", "jaccard", "fuzzy"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, child := StartChildSpan(ctx, name)
			assert.Equal(t, "req-1", child.TraceID())
			child.End()
		}()
	}
	wg.Wait()
	root.End()

	durations := root.ChildDurations()
	assert.Len(t, durations, 3)
	assert.Contains(t, durations, "jaccard")
}

func TestStartSpan_GeneratesTraceID(t *testing.T) {
	t.Parallel()

	_, s := StartSpan(context.Background(), "search", "")
	assert.Len(t, s.TraceID(), 36)
}

func TestChildDurations_SkipsOpenSpans(t *testing.T) {
	t.Parallel()

	ctx, root := StartSpan(context.Background(), "search", "x")
	_, done := StartChildSpan(ctx, "understand")
	done.End()
	StartChildSpan(ctx, "still-running")

	durations := root.ChildDurations()
	assert.Len(t, durations, 1)
	assert.Contains(t, durations, "understand")
}

func TestDetachedChild(t *testing.T) {
	t.Parallel()

	ctx, s := StartChildSpan(context.Background(), "orphan")
	assert.Same(t, s, FromContext(ctx))
	assert.Empty(t, s.TraceID())
}

func TestLog_NestsChildren(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, root := StartSpan(context.Background(), "search", "req-9")
	root.SetAttr("cache_hit", false)
	_, child := StartChildSpan(ctx, "understand")
	child.SetAttr("terms", 2)
	child.End()
	root.End()
	root.Log(logger)

	out := buf.String()
	require.Contains(t, out, `msg="trace search"`)
	assert.Contains(t, out, "trace_id=req-9")
	assert.Contains(t, out, "cache_hit=false")
	assert.Contains(t, out, "understand.terms=2")
}

func TestLog_SkippedAboveDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	_, root := StartSpan(context.Background(), "search", "req")
	root.End()
	root.Log(logger)
	assert.Empty(t, buf.String())
}
