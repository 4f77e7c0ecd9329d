package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func search(query string, results int, cacheHit bool) QueryPerformanceEvent {
	return QueryPerformanceEvent{
		Type:              EventSearch,
		Query:             query,
		Strategies:        []string{"lexical", "bm25"},
		StrategyLatencyMs: map[string]float64{"lexical": 1, "bm25": 3},
		CacheHit:          cacheHit,
		TotalResults:      results,
		LatencyMs:         float64(results),
		Intent:            "none",
	}
}

func TestAggregator_Stats(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	agg.Record(search("Bluetooth  Speaker", 4, false))
	agg.Record(search("bluetooth speaker", 2, true))
	agg.Record(&QueryPerformanceEvent{Type: EventBooleanSearch, Query: "sony AND NOT jbl", TotalResults: 0, Corrected: true})
	agg.Record(CatalogEvent{Type: EventCatalogRebuild, Items: 10})
	agg.Record("not an event")

	stats := agg.Stats()
	assert.Equal(t, int64(3), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.BooleanSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(2), stats.CacheMisses)
	assert.InDelta(t, 1.0/3.0, stats.CacheHitRatio, 1e-9)
	assert.Equal(t, int64(1), stats.CorrectedQueries)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, int64(1), stats.CatalogRebuilds)
	assert.InDelta(t, 2.0, stats.AvgLatencyMs, 1e-9)

	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, QueryCount{Query: "bluetooth speaker", Count: 2}, stats.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "sony and not jbl", Count: 1}}, stats.ZeroResultQueries)
	assert.Equal(t, int64(2), stats.Intents["none"])

	bm25 := stats.Strategies["bm25"]
	assert.Equal(t, int64(2), bm25.Uses)
	assert.InDelta(t, 3.0, bm25.AvgLatencyMs, 1e-9, "cache hits do not contribute strategy latency")
}

func TestAggregator_StrategyFailures(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	ev := search("tv", 1, false)
	ev.FailedStrategies = []string{"jaccard"}
	agg.Record(ev)

	assert.Equal(t, int64(1), agg.Stats().Strategies["jaccard"].Failures)
}

func TestAggregator_Percentiles(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	for i := 1; i <= 100; i++ {
		agg.Record(QueryPerformanceEvent{Query: "q", LatencyMs: float64(i)})
	}
	stats := agg.Stats()
	assert.Equal(t, 51.0, stats.P50LatencyMs)
	assert.Equal(t, 96.0, stats.P95LatencyMs)
	assert.Equal(t, 100.0, stats.P99LatencyMs)
}

func TestAggregator_LatencySamplesBounded(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	for i := 0; i < maxLatencySamples+50; i++ {
		agg.Record(QueryPerformanceEvent{LatencyMs: 1})
	}
	agg.mu.RLock()
	defer agg.mu.RUnlock()
	assert.Len(t, agg.latencies, maxLatencySamples)
}

func TestAggregator_Suggest(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	for i := 0; i < 3; i++ {
		agg.Record(search("bluetooth speaker", 1, false))
	}
	agg.Record(search("bluetooth headphones", 1, false))
	agg.Record(search("usb cable", 1, false))
	for i := 0; i < 8; i++ {
		agg.Record(search(fmt.Sprintf("tooth %d", i), 1, false))
	}

	tests := []struct {
		name  string
		input string
		limit int
		want  []string
	}{
		{"most frequent first", "blue", 5, []string{"bluetooth speaker", "bluetooth headphones"}},
		{"substring match", "SPEAK", 5, []string{"bluetooth speaker"}},
		{"limit applies", "tooth", 2, []string{"bluetooth speaker", "bluetooth headphones"}},
		{"default limit", "tooth", 0, []string{"bluetooth speaker", "bluetooth headphones", "tooth 0", "tooth 1", "tooth 2"}},
		{"too short", "b", 5, []string{}},
		{"no match", "fridge", 5, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, agg.Suggest(tt.input, tt.limit))
		})
	}
}

func TestHandleEvent_DecodesByType(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	handler := HandleEvent(agg)

	query, err := json.Marshal(search("tv", 3, false))
	require.NoError(t, err)
	rebuild, err := json.Marshal(CatalogEvent{Type: EventCatalogRebuild, Items: 5})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, handler(ctx, []byte("query"), query))
	require.NoError(t, handler(ctx, []byte("catalog"), rebuild))
	require.NoError(t, handler(ctx, nil, []byte("{not json")), "poison messages are skipped")

	stats := agg.Stats()
	assert.Equal(t, int64(1), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.CatalogRebuilds)
}
