package searcher

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/facet"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/fusion"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/strategy"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/understand"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/tracing"
)

// SearchBoolean evaluates an AND / OR / NOT expression against the live
// index and ranks the matching items by BM25 over the terms outside any
// NOT, then by id. An expression that does not parse is answered as a
// ranked search of its words, with Fallback set.
func (e *Engine) SearchBoolean(ctx context.Context, req BooleanRequest) (*Response, error) {
	start := time.Now()
	expr, err := e.sanitize(req.Expression)
	if err != nil {
		e.countQuery("invalid")
		return nil, err
	}
	filters, err := canonicalFilters(req.Filters)
	if err != nil {
		e.countQuery("invalid")
		return nil, err
	}

	node, err := parser.Parse(expr, e.indexer.Tokenizer())
	if err != nil {
		words := strings.Join(parser.Words(expr), " ")
		if strings.TrimSpace(words) == "" {
			e.countQuery("invalid")
			return nil, err
		}
		logger.FromContext(ctx).Info("boolean expression malformed, falling back to ranked search",
			"expression", expr,
			"error", err,
		)
		resp, serr := e.search(ctx, Request{
			Query:    words,
			Page:     req.Page,
			PageSize: req.PageSize,
			Filters:  req.Filters,
		}, false)
		if serr != nil {
			return nil, serr
		}
		resp.Query = expr
		resp.Fallback = true
		e.track(ctx, analytics.EventBooleanSearch, resp, nil)
		return resp, nil
	}

	page, pageSize := e.clampPage(req.Page, req.PageSize)
	idx := e.indexer.Snapshot()
	terms := parser.PositiveTerms(node)
	active := []strategy.ID{strategy.BM25}

	ctx, span := tracing.StartSpan(ctx, "search.boolean", logger.RequestID(ctx))
	defer func() {
		span.End()
		span.Log(e.logger)
	}()
	span.SetAttr("expression", node.String())

	resp := &Response{
		Query:  expr,
		Terms:  nonNil(terms),
		Intent: understand.IntentNone,
	}
	if idx.TotalItems() == 0 {
		resp.Page = emptyPage(active, page, pageSize)
	} else {
		key := cache.Key{
			Mode:       modeBoolean,
			Signature:  node.String(),
			Strategies: idStrings(active),
			Page:       page,
			PageSize:   pageSize,
			Filters:    filters,
			Generation: idx.Generation(),
		}
		compute := func() (Page, bool, error) {
			_, espan := tracing.StartChildSpan(ctx, "boolean.eval")
			matches := node.Eval(idx)
			espan.SetAttr("matches", len(matches))
			espan.End()

			ranked, err := e.rankBoolean(matches, terms, idx, keep(filters))
			if err != nil {
				return Page{}, false, err
			}
			results, pagination := paginate(toResults(ranked, idx, e.highlighter(terms)), page, pageSize)
			return Page{Results: results, Pagination: pagination, Strategies: active}, true, nil
		}
		p, hit, err := e.lookup(ctx, key, compute)
		if err != nil {
			e.countQuery("error")
			return nil, err
		}
		resp.Page = p
		resp.CacheHit = hit
	}

	resp.TookMs = float64(time.Since(start).Microseconds()) / 1000
	e.observe(resp, time.Since(start))
	e.track(ctx, analytics.EventBooleanSearch, resp, nil)
	return resp, nil
}

func (e *Engine) rankBoolean(matches parser.Set, terms []string, idx *index.Index, keep func(*catalog.Item) bool) ([]fusion.Ranked, error) {
	ids := make([]string, 0, len(matches))
	for id := range matches {
		if keep != nil {
			if item, ok := idx.Item(id); !ok || !keep(item) {
				continue
			}
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var scores strategy.Scores
	if len(terms) > 0 {
		var err error
		scores, err = e.bm25.Score(understand.NormalizedQuery{Terms: terms}, idx, ids)
		if err != nil {
			return nil, err
		}
	}
	ranked := make([]fusion.Ranked, len(ids))
	for i, id := range ids {
		s := scores[id]
		ranked[i] = fusion.Ranked{
			ItemID:    id,
			Score:     s,
			Breakdown: map[strategy.ID]float64{strategy.BM25: s},
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	fusion.AttachMatchedFields(ranked, terms, idx)
	return ranked, nil
}

// Facets counts facet values over the whole live catalog. Counts are
// computed once per index generation.
func (e *Engine) Facets() facet.Counts {
	idx := e.indexer.Snapshot()
	e.facetsMu.Lock()
	defer e.facetsMu.Unlock()
	if e.facets != nil && e.facets.generation == idx.Generation() {
		return e.facets.counts
	}
	counts := facet.Count(idx.Items())
	e.facets = &facetMemo{generation: idx.Generation(), counts: counts}
	return counts
}
