// Package executor fans the active scoring strategies out over a bounded
// worker pool and joins their score maps before fusion.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/strategy"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/understand"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/tracing"
)

// Outcome is the joined result of one fan-out.
type Outcome struct {
	Vectors    map[strategy.ID]strategy.Scores
	Failures   map[strategy.ID]error
	Elapsed    map[strategy.ID]time.Duration
	Candidates int
}

// Succeeded lists the strategies that produced a score map.
func (o Outcome) Succeeded() []strategy.ID {
	out := make([]strategy.ID, 0, len(o.Vectors))
	for _, id := range strategy.AllIDs() {
		if _, ok := o.Vectors[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Executor runs strategies concurrently. It is safe for concurrent use.
type Executor struct {
	registry *strategy.Registry
	pool     *ants.Pool
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates an Executor backed by a pool of poolSize workers shared by
// all requests.
func New(registry *strategy.Registry, poolSize int, m *metrics.Metrics) (*Executor, error) {
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("creating strategy pool: %w", err)
	}
	return &Executor{
		registry: registry,
		pool:     pool,
		metrics:  m,
		logger:   slog.Default().With("component", "strategy-executor"),
	}, nil
}

// Release stops the worker pool.
func (e *Executor) Release() {
	e.pool.Release()
}

// Run scores q against idx with every strategy in active. A strategy that
// errors or panics is recorded in Failures and left out of Vectors; the
// others are unaffected.
func (e *Executor) Run(ctx context.Context, q understand.NormalizedQuery, idx *index.Index, active []strategy.ID) Outcome {
	candidates := strategy.Candidates(q, idx)

	type result struct {
		id      strategy.ID
		scores  strategy.Scores
		err     error
		elapsed time.Duration
	}
	results := make([]result, len(active))
	var wg sync.WaitGroup
	for i, id := range active {
		s, ok := e.registry.Get(id)
		if !ok {
			results[i] = result{id: id, err: fmt.Errorf("strategy %q not registered", id)}
			continue
		}
		task := func() {
			defer wg.Done()
			scores, elapsed, err := e.runOne(ctx, s, q, idx, candidates)
			results[i] = result{id: id, scores: scores, err: err, elapsed: elapsed}
		}
		wg.Add(1)
		if err := e.pool.Submit(task); err != nil {
			e.logger.Warn("strategy pool unavailable, running inline", "strategy", id, "error", err)
			task()
		}
	}
	wg.Wait()

	out := Outcome{
		Vectors:    make(map[strategy.ID]strategy.Scores, len(active)),
		Failures:   make(map[strategy.ID]error),
		Elapsed:    make(map[strategy.ID]time.Duration, len(active)),
		Candidates: len(candidates),
	}
	for _, r := range results {
		out.Elapsed[r.id] = r.elapsed
		if r.err != nil {
			out.Failures[r.id] = r.err
			e.logger.Error("strategy failed", "strategy", r.id, "error", r.err)
			if e.metrics != nil {
				e.metrics.StrategyFailuresTotal.WithLabelValues(string(r.id)).Inc()
			}
			continue
		}
		out.Vectors[r.id] = r.scores
	}
	return out
}

func (e *Executor) runOne(ctx context.Context, s strategy.Strategy, q understand.NormalizedQuery, idx *index.Index, candidates []string) (scores strategy.Scores, elapsed time.Duration, err error) {
	_, span := tracing.StartChildSpan(ctx, "strategy."+string(s.ID()))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			scores = nil
			err = errors.Join(err, fmt.Errorf("strategy %s panicked: %v", s.ID(), r))
		}
		elapsed = time.Since(start)
		span.SetAttr("results", len(scores))
		span.End()
		if e.metrics != nil {
			e.metrics.StrategyLatency.WithLabelValues(string(s.ID())).Observe(elapsed.Seconds())
		}
	}()
	scores, err = s.Score(q, idx, candidates)
	return scores, elapsed, err
}
