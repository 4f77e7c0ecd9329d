package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/strategy"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/understand"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/tracing"
)

type stubStrategy struct {
	id    strategy.ID
	err   error
	panic bool
	calls *atomic.Int32
}

func (s stubStrategy) ID() strategy.ID { return s.id }

func (s stubStrategy) Score(_ understand.NormalizedQuery, _ *index.Index, candidates []string) (strategy.Scores, error) {
	if s.calls != nil {
		s.calls.Add(1)
	}
	if s.panic {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make(strategy.Scores, len(candidates))
	for _, id := range candidates {
		out[id] = 1
	}
	return out, nil
}

func setup(t *testing.T, m *metrics.Metrics, override ...strategy.Strategy) (*Executor, *index.Index) {
	t.Helper()
	reg, err := strategy.NewRegistry(config.Default().Strategies)
	require.NoError(t, err)
	for _, s := range override {
		reg.Register(s)
	}
	exec, err := New(reg, 4, m)
	require.NoError(t, err)
	t.Cleanup(exec.Release)

	idx, _ := index.Build([]*catalog.Item{
		catalog.NewItem("A", map[string]string{"Type": "Bluetooth Speaker"}),
		catalog.NewItem("B", map[string]string{"Type": "Headphones"}),
	}, tokenizer.Default(), index.BuildOptions{})
	return exec, idx
}

func bluetooth() understand.NormalizedQuery {
	return understand.NormalizedQuery{Terms: []string{"bluetooth"}, Intent: understand.IntentNone}
}

func TestRun_AllStrategiesSucceed(t *testing.T) {
	t.Parallel()

	exec, idx := setup(t, nil)
	out := exec.Run(context.Background(), bluetooth(), idx, strategy.AllIDs())

	assert.Empty(t, out.Failures)
	assert.Equal(t, strategy.AllIDs(), out.Succeeded())
	assert.Equal(t, 1, out.Candidates)
	assert.Len(t, out.Elapsed, 4)
	for id, scores := range out.Vectors {
		assert.Contains(t, scores, "A", "strategy %s", id)
	}
}

func TestRun_FailuresAreIsolated(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(reg)
	exec, idx := setup(t, m,
		stubStrategy{id: strategy.BM25, panic: true},
		stubStrategy{id: strategy.Jaccard, err: errors.New("no good")},
	)

	out := exec.Run(context.Background(), bluetooth(), idx, strategy.AllIDs())
	assert.Equal(t, []strategy.ID{strategy.Lexical, strategy.TFIDF}, out.Succeeded())
	require.Len(t, out.Failures, 2)
	assert.ErrorContains(t, out.Failures[strategy.BM25], "panicked")
	assert.ErrorContains(t, out.Failures[strategy.Jaccard], "no good")

	families, err := reg.Gather()
	require.NoError(t, err)
	var failures float64
	for _, mf := range families {
		if mf.GetName() != "search_strategy_failures_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			failures += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, failures)
}

func TestRun_OnlyActiveStrategiesRun(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	exec, idx := setup(t, nil,
		stubStrategy{id: strategy.Lexical, calls: &calls},
		stubStrategy{id: strategy.TFIDF, calls: &calls},
	)

	out := exec.Run(context.Background(), bluetooth(), idx, []strategy.ID{strategy.Lexical})
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []strategy.ID{strategy.Lexical}, out.Succeeded())
}

func TestRun_RecordsChildSpans(t *testing.T) {
	t.Parallel()

	exec, idx := setup(t, nil)
	ctx, root := tracing.StartSpan(context.Background(), "search", "trace-1")
	exec.Run(ctx, bluetooth(), idx, []strategy.ID{strategy.Lexical, strategy.BM25})

	durations := root.ChildDurations()
	assert.Contains(t, durations, "strategy.lexical")
	assert.Contains(t, durations, "strategy.bm25")
}

func TestRun_EmptyIndex(t *testing.T) {
	t.Parallel()

	exec, _ := setup(t, nil)
	out := exec.Run(context.Background(), bluetooth(), index.Empty(), strategy.AllIDs())
	assert.Empty(t, out.Failures)
	for _, scores := range out.Vectors {
		assert.Empty(t, scores)
	}
}
