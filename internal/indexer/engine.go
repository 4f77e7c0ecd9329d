// Package indexer owns the live index snapshot. Readers take one snapshot
// per request; rebuilds construct a new index off to the side and swap it in
// atomically, so an in-flight query never sees a half-built index.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
)

// RebuildHook runs after a new snapshot has been swapped in.
type RebuildHook func(ctx context.Context, idx *index.Index)

// RebuildReport summarises one rebuild.
type RebuildReport struct {
	Generation uint64               `json:"generation"`
	Items      int                  `json:"items"`
	Vocabulary int                  `json:"vocabulary"`
	Rejected   []catalog.Rejection  `json:"rejected,omitempty"`
	Warnings   []index.BuildWarning `json:"warnings,omitempty"`
	Duration   time.Duration        `json:"duration"`
}

type Engine struct {
	current    atomic.Pointer[index.Index]
	tok        *tokenizer.Tokenizer
	cfg        config.IndexConfig
	rebuildMu  sync.Mutex
	generation atomic.Uint64
	hooksMu    sync.RWMutex
	hooks      []RebuildHook
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewEngine creates an Engine serving an empty index until the first
// rebuild. m may be nil.
func NewEngine(cfg config.IndexConfig, m *metrics.Metrics) *Engine {
	e := &Engine{
		tok: tokenizer.New(tokenizer.Options{
			StopWords: cfg.StopWords,
			Stem:      cfg.Stemming,
		}),
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
	e.current.Store(index.Empty())
	return e
}

// Snapshot returns the live index. Callers should take it once per request.
func (e *Engine) Snapshot() *index.Index {
	return e.current.Load()
}

// Tokenizer returns the tokenizer shared by indexing and query processing.
func (e *Engine) Tokenizer() *tokenizer.Tokenizer {
	return e.tok
}

// OnRebuild registers a hook run after every successful swap.
func (e *Engine) OnRebuild(hook RebuildHook) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.hooks = append(e.hooks, hook)
}

// Rebuild indexes store and swaps the result in, waiting for any rebuild
// already running.
func (e *Engine) Rebuild(ctx context.Context, store *catalog.Store) (*RebuildReport, error) {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()
	return e.rebuildLocked(ctx, store)
}

// TryReload loads src and rebuilds, failing fast with ErrRebuildInProgress
// rather than queueing behind another rebuild.
func (e *Engine) TryReload(ctx context.Context, src catalog.Source) (*RebuildReport, error) {
	if !e.rebuildMu.TryLock() {
		return nil, apperrors.ErrRebuildInProgress
	}
	defer e.rebuildMu.Unlock()
	return e.reloadLocked(ctx, src)
}

// Reload loads src and rebuilds, waiting for any rebuild already running.
func (e *Engine) Reload(ctx context.Context, src catalog.Source) (*RebuildReport, error) {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()
	return e.reloadLocked(ctx, src)
}

func (e *Engine) reloadLocked(ctx context.Context, src catalog.Source) (*RebuildReport, error) {
	store, rejected, err := src.Load(ctx)
	if err != nil {
		e.countRebuild("failed")
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrCatalogUnavailable, src.Name(), err)
	}
	for _, r := range rejected {
		e.logger.Warn("catalog record rejected",
			"source", src.Name(),
			"index", r.Index,
			"id", r.ID,
			"reason", r.Reason,
		)
	}
	report, err := e.rebuildLocked(ctx, store)
	if err != nil {
		return nil, err
	}
	report.Rejected = rejected
	return report, nil
}

func (e *Engine) rebuildLocked(ctx context.Context, store *catalog.Store) (*RebuildReport, error) {
	if err := ctx.Err(); err != nil {
		e.countRebuild("cancelled")
		return nil, fmt.Errorf("rebuild cancelled: %w", err)
	}
	start := time.Now()
	gen := e.generation.Add(1)
	idx, warnings := index.Build(store.Items(), e.tok, index.BuildOptions{
		Concurrency: e.cfg.BuildConcurrency,
		Generation:  gen,
	})
	for _, w := range warnings {
		e.logger.Warn("item skipped during index build",
			"position", w.Position,
			"item_id", w.ItemID,
			"reason", w.Reason,
		)
	}
	e.current.Store(idx)
	report := &RebuildReport{
		Generation: gen,
		Items:      idx.TotalItems(),
		Vocabulary: len(idx.Vocabulary()),
		Warnings:   warnings,
		Duration:   time.Since(start),
	}
	e.countRebuild("success")
	if e.metrics != nil {
		e.metrics.IndexItems.Set(float64(report.Items))
		e.metrics.IndexVocabulary.Set(float64(report.Vocabulary))
	}
	e.logger.Info("index rebuilt",
		"generation", gen,
		"items", report.Items,
		"vocabulary", report.Vocabulary,
		"avg_item_length", idx.AverageItemLength(),
		"warnings", len(warnings),
		"duration", report.Duration,
	)

	e.hooksMu.RLock()
	hooks := make([]RebuildHook, len(e.hooks))
	copy(hooks, e.hooks)
	e.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, idx)
	}
	return report, nil
}

func (e *Engine) countRebuild(status string) {
	if e.metrics != nil {
		e.metrics.IndexRebuildsTotal.WithLabelValues(status).Inc()
	}
}

// HealthCheck reports the index down until the first rebuild has loaded at
// least one item.
func (e *Engine) HealthCheck() health.Check {
	return func(context.Context) health.ComponentHealth {
		idx := e.Snapshot()
		if idx.TotalItems() == 0 {
			return health.ComponentHealth{Status: health.StatusDown, Message: "index is empty"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("generation %d, %d items", idx.Generation(), idx.TotalItems()),
		}
	}
}
