package analytics

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/kafka"
)

const (
	maxLatencySamples      = 10000
	DefaultSuggestionLimit = 5
	minSuggestionPrefix    = 2
)

type AggregatedStats struct {
	TotalSearches     int64                    `json:"total_searches"`
	BooleanSearches   int64                    `json:"boolean_searches"`
	CacheHits         int64                    `json:"cache_hits"`
	CacheMisses       int64                    `json:"cache_misses"`
	CacheHitRatio     float64                  `json:"cache_hit_ratio"`
	CorrectedQueries  int64                    `json:"corrected_queries"`
	ZeroResultCount   int64                    `json:"zero_result_count"`
	CatalogRebuilds   int64                    `json:"catalog_rebuilds"`
	AvgLatencyMs      float64                  `json:"avg_latency_ms"`
	P50LatencyMs      float64                  `json:"p50_latency_ms"`
	P95LatencyMs      float64                  `json:"p95_latency_ms"`
	P99LatencyMs      float64                  `json:"p99_latency_ms"`
	Strategies        map[string]StrategyStats `json:"strategies"`
	Intents           map[string]int64         `json:"intents"`
	TopQueries        []QueryCount             `json:"top_queries"`
	ZeroResultQueries []QueryCount             `json:"zero_result_queries"`
	QueriesPerMinute  float64                  `json:"queries_per_minute"`
}

// StrategyStats summarises how one strategy behaved across searches.
type StrategyStats struct {
	Uses         int64   `json:"uses"`
	Failures     int64   `json:"failures"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type strategyTally struct {
	uses, failures int64
	latencyMs      float64
	timed          int64
}

// Aggregator folds events into running statistics. Events arrive either
// in-process (as a collector Sink) or from Kafka via HandleEvent.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     atomic.Int64
	booleanSearches   atomic.Int64
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	corrected         atomic.Int64
	zeroResults       atomic.Int64
	rebuilds          atomic.Int64
	latencies         []float64
	nextLatency       int
	strategies        map[string]*strategyTally
	intents           map[string]int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]float64, 0, 1024),
		strategies:        make(map[string]*strategyTally),
		intents:           make(map[string]int64),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent decodes events published by the search service.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		env, err := kafka.DecodeJSON[envelope](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		switch env.Type {
		case EventCatalogRebuild:
			ev, err := kafka.DecodeJSON[CatalogEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode catalog event", "error", err)
				return nil
			}
			agg.Record(ev)
		default:
			ev, err := kafka.DecodeJSON[QueryPerformanceEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode query event", "error", err)
				return nil
			}
			agg.Record(ev)
		}
		return nil
	}
}

// Send implements Sink.
func (a *Aggregator) Send(_ context.Context, event any) error {
	a.Record(event)
	return nil
}

// Track implements the search engine's tracker synchronously, for
// processes that aggregate in-process without a collector.
func (a *Aggregator) Track(event any) {
	a.Record(event)
}

// Record folds one event into the statistics. Unknown event types are
// ignored.
func (a *Aggregator) Record(event any) {
	switch ev := event.(type) {
	case QueryPerformanceEvent:
		a.recordQuery(ev)
	case *QueryPerformanceEvent:
		a.recordQuery(*ev)
	case CatalogEvent, *CatalogEvent:
		a.rebuilds.Add(1)
	}
}

func (a *Aggregator) recordQuery(event QueryPerformanceEvent) {
	a.totalSearches.Add(1)
	if event.Type == EventBooleanSearch {
		a.booleanSearches.Add(1)
	}
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.Corrected {
		a.corrected.Add(1)
	}
	if event.TotalResults == 0 {
		a.zeroResults.Add(1)
	}

	query := normalizeQuery(event.Query)

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.nextLatency] = event.LatencyMs
		a.nextLatency = (a.nextLatency + 1) % maxLatencySamples
	}
	if query != "" {
		a.queryCounts[query]++
		if event.TotalResults == 0 {
			a.zeroResultQueries[query]++
		}
	}
	if event.Intent != "" {
		a.intents[event.Intent]++
	}
	for _, s := range event.Strategies {
		a.tally(s).uses++
	}
	for _, s := range event.FailedStrategies {
		a.tally(s).failures++
	}
	if !event.CacheHit {
		for s, ms := range event.StrategyLatencyMs {
			t := a.tally(s)
			t.latencyMs += ms
			t.timed++
		}
	}
}

func (a *Aggregator) tally(name string) *strategyTally {
	t, ok := a.strategies[name]
	if !ok {
		t = &strategyTally{}
		a.strategies[name] = t
	}
	return t
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:    a.totalSearches.Load(),
		BooleanSearches:  a.booleanSearches.Load(),
		CacheHits:        a.cacheHits.Load(),
		CacheMisses:      a.cacheMisses.Load(),
		CorrectedQueries: a.corrected.Load(),
		ZeroResultCount:  a.zeroResults.Load(),
		CatalogRebuilds:  a.rebuilds.Load(),
		Strategies:       make(map[string]StrategyStats, len(a.strategies)),
		Intents:          make(map[string]int64, len(a.intents)),
	}
	if total := stats.CacheHits + stats.CacheMisses; total > 0 {
		stats.CacheHitRatio = float64(stats.CacheHits) / float64(total)
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)

		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	for name, t := range a.strategies {
		s := StrategyStats{Uses: t.uses, Failures: t.failures}
		if t.timed > 0 {
			s.AvgLatencyMs = t.latencyMs / float64(t.timed)
		}
		stats.Strategies[name] = s
	}
	for intent, n := range a.intents {
		stats.Intents[intent] = n
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}

	return stats
}

// Suggest returns up to limit past queries containing input, most frequent
// first. Inputs shorter than two characters yield nothing.
func (a *Aggregator) Suggest(input string, limit int) []string {
	input = normalizeQuery(input)
	if len([]rune(input)) < minSuggestionPrefix {
		return []string{}
	}
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	a.mu.RLock()
	matches := make(map[string]int64)
	for q, n := range a.queryCounts {
		if strings.Contains(q, input) {
			matches[q] = n
		}
	}
	a.mu.RUnlock()

	top := topN(matches, limit)
	out := make([]string, len(top))
	for i, qc := range top {
		out[i] = qc.Query
	}
	return out
}

// PopularQueries returns the n most frequent queries.
func (a *Aggregator) PopularQueries(n int) []QueryCount {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return topN(a.queryCounts, n)
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
