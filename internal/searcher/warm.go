package searcher

import (
	"context"
	"errors"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/cache"
)

// WarmReport summarises one warming pass.
type WarmReport struct {
	Warmed int      `json:"warmed"`
	Failed []string `json:"failed,omitempty"`
}

// WarmCache runs each query once with the default strategies and first page
// so later identical requests are served from cache. Warming searches are
// not reported to analytics.
func (e *Engine) WarmCache(ctx context.Context, queries []string) WarmReport {
	var report WarmReport
	if e.cache == nil {
		return report
	}
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		if _, err := e.search(ctx, Request{Query: q}, false); err != nil {
			e.logger.Warn("cache warm query failed", "query", q, "error", err)
			report.Failed = append(report.Failed, q)
			continue
		}
		report.Warmed++
	}
	return report
}

// InvalidateCache drops every cached page, locally and in the remote tier.
func (e *Engine) InvalidateCache(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Purge(ctx)
}

// CacheStats reports cache effectiveness. The zero Stats is returned when
// caching is disabled.
func (e *Engine) CacheStats() cache.Stats {
	if e.cache == nil {
		return cache.Stats{}
	}
	return e.cache.Stats()
}

func (e *Engine) onRebuild(ctx context.Context, idx *index.Index) {
	if err := e.InvalidateCache(ctx); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Warn("cache purge after rebuild failed", "generation", idx.Generation(), "error", err)
	}
	if len(e.warmQueries) == 0 {
		return
	}
	report := e.WarmCache(ctx, e.warmQueries)
	e.logger.Info("cache warmed",
		"generation", idx.Generation(),
		"warmed", report.Warmed,
		"failed", len(report.Failed),
	)
}
