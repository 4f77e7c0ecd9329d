// Package searcher orchestrates one search: the raw query is validated and
// understood, the result cache is consulted, the active strategies score
// the candidates in parallel, fusion merges their scores and the requested
// page is cut. A QueryPerformanceEvent is handed to the analytics tracker
// once the response is built.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/facet"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/fusion"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/strategy"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/understand"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/tracing"
)

const (
	modeRanked  = "ranked"
	modeBoolean = "boolean"

	strippedChars = `<>"'`
)

// Tracker receives analytics events. *analytics.Collector satisfies it.
type Tracker interface {
	Track(event any)
}

// Deps are the collaborators an Engine is assembled from. Cache, Tracker
// and Metrics may be nil.
type Deps struct {
	Indexer      *indexer.Engine
	Understander *understand.Understander
	Registry     *strategy.Registry
	Executor     *executor.Executor
	Fusion       *fusion.Engine
	Cache        *cache.Cache[Page]
	Tracker      Tracker
	Metrics      *metrics.Metrics
}

type facetMemo struct {
	generation uint64
	counts     facet.Counts
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg         config.SearchConfig
	warmQueries []string

	indexer      *indexer.Engine
	understander *understand.Understander
	registry     *strategy.Registry
	executor     *executor.Executor
	fusion       *fusion.Engine
	cache        *cache.Cache[Page]
	tracker      Tracker
	metrics      *metrics.Metrics
	bm25         strategy.BM25Scorer

	facetsMu sync.Mutex
	facets   *facetMemo

	logger *slog.Logger
}

// New assembles an Engine and registers its rebuild hook, which purges the
// cache and re-runs warmQueries against the new index.
func New(cfg config.SearchConfig, bm25 strategy.BM25Scorer, warmQueries []string, deps Deps) *Engine {
	e := &Engine{
		cfg:          cfg,
		warmQueries:  warmQueries,
		indexer:      deps.Indexer,
		understander: deps.Understander,
		registry:     deps.Registry,
		executor:     deps.Executor,
		fusion:       deps.Fusion,
		cache:        deps.Cache,
		tracker:      deps.Tracker,
		metrics:      deps.Metrics,
		bm25:         bm25,
		logger:       slog.Default().With("component", "search-engine"),
	}
	e.indexer.OnRebuild(e.onRebuild)
	return e
}

// Build wires a complete Engine from configuration. remote may be nil, in
// which case the cache is process-local.
func Build(cfg *config.Config, idx *indexer.Engine, tracker Tracker, remote cache.Remote, m *metrics.Metrics) (*Engine, error) {
	registry, err := strategy.NewRegistry(cfg.Strategies)
	if err != nil {
		return nil, fmt.Errorf("building strategy registry: %w", err)
	}
	exec, err := executor.New(registry, cfg.Strategies.PoolSize, m)
	if err != nil {
		return nil, err
	}
	deps := Deps{
		Indexer:      idx,
		Understander: understand.New(cfg.Understanding, idx.Tokenizer()),
		Registry:     registry,
		Executor:     exec,
		Fusion:       fusion.New(cfg.Fusion, cfg.Strategies.Weights),
		Tracker:      tracker,
		Metrics:      m,
	}
	if cfg.Cache.Enabled {
		opts := cache.Options{
			Capacity:  cfg.Cache.Capacity,
			TTL:       cfg.Cache.TTL,
			RemoteTTL: cfg.Redis.CacheTTL,
			Metrics:   m,
		}
		if cfg.Cache.RedisTier {
			opts.Remote = remote
		}
		deps.Cache = cache.New[Page](opts)
	}
	bm25 := strategy.BM25Scorer{K1: cfg.Strategies.BM25K1, B: cfg.Strategies.BM25B}
	return New(cfg.Search, bm25, cfg.Cache.WarmQueries, deps), nil
}

// Close releases the strategy worker pool.
func (e *Engine) Close() {
	e.executor.Release()
}

// Search runs one ranked search. Only validation errors and the
// all-strategies-failed condition are returned; degraded understanding and
// individual strategy failures are absorbed.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	return e.search(ctx, req, true)
}

func (e *Engine) search(ctx context.Context, req Request, track bool) (*Response, error) {
	start := time.Now()
	query, err := e.sanitize(req.Query)
	if err != nil {
		e.countQuery("invalid")
		return nil, err
	}
	active, err := e.registry.Resolve(req.Strategies)
	if err != nil {
		e.countQuery("invalid")
		return nil, err
	}
	filters, err := canonicalFilters(req.Filters)
	if err != nil {
		e.countQuery("invalid")
		return nil, err
	}
	page, pageSize := e.clampPage(req.Page, req.PageSize)

	idx := e.indexer.Snapshot()
	ctx, span := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	defer func() {
		span.End()
		span.Log(e.logger)
	}()

	_, uspan := tracing.StartChildSpan(ctx, "understand")
	q := e.understander.Understand(query, idx)
	uspan.SetAttr("terms", len(q.Terms))
	uspan.SetAttr("corrections", len(q.Corrections))
	uspan.End()

	resp := &Response{
		Query:       query,
		Terms:       nonNil(q.Terms),
		Corrections: q.Corrections,
		Expansions:  q.Expansions,
		Intent:      q.Intent,
		Degraded:    q.Degraded,
	}
	if e.metrics != nil && len(q.Corrections) > 0 {
		e.metrics.QueryCorrectionsTotal.Add(float64(len(q.Corrections)))
	}

	var outcome *executor.Outcome
	if q.Empty() || idx.TotalItems() == 0 {
		resp.Page = emptyPage(active, page, pageSize)
	} else {
		key := cache.Key{
			Mode:       modeRanked,
			Signature:  q.Signature(),
			Strategies: idStrings(active),
			Page:       page,
			PageSize:   pageSize,
			Filters:    filters,
			Generation: idx.Generation(),
		}
		compute := func() (Page, bool, error) {
			out := e.executor.Run(ctx, q, idx, active)
			outcome = &out
			if len(out.Vectors) == 0 {
				return Page{}, false, apperrors.New(apperrors.ErrNoResultsAvailable, http.StatusServiceUnavailable,
					"every scoring strategy failed")
			}
			ranked := e.fusion.CombineFiltered(out.Vectors, active, q, idx, keep(filters))
			all := toResults(ranked, idx, e.highlighter(q.AllTerms()))
			results, pagination := paginate(all, page, pageSize)
			return Page{
				Results:          results,
				Pagination:       pagination,
				Strategies:       active,
				FailedStrategies: failedIDs(out),
			}, len(out.Failures) == 0, nil
		}
		p, hit, err := e.lookup(ctx, key, compute)
		if err != nil {
			e.countQuery("error")
			logger.FromContext(ctx).Error("search failed", "query", query, "error", err)
			return nil, err
		}
		resp.Page = p
		resp.CacheHit = hit
	}

	resp.TookMs = float64(time.Since(start).Microseconds()) / 1000
	span.SetAttr("cache_hit", resp.CacheHit)
	span.SetAttr("total_results", resp.Pagination.TotalResults)
	e.observe(resp, time.Since(start))
	if track {
		e.track(ctx, analytics.EventSearch, resp, outcome)
	}
	return resp, nil
}

func (e *Engine) lookup(ctx context.Context, key cache.Key, compute cache.Compute[Page]) (Page, bool, error) {
	if e.cache == nil {
		p, _, err := compute()
		return p, false, err
	}
	return e.cache.GetOrCompute(ctx, key, compute)
}

// sanitize trims the query, rejects control characters and over-long input,
// and strips markup-significant characters.
func (e *Engine) sanitize(raw string) (string, error) {
	q := strings.TrimSpace(raw)
	if q == "" {
		return "", apperrors.Validation("query must not be empty")
	}
	if n := utf8.RuneCountInString(q); n > e.cfg.MaxQueryLength {
		return "", apperrors.Validation("query is %d characters, maximum is %d", n, e.cfg.MaxQueryLength)
	}
	if !utf8.ValidString(q) {
		return "", apperrors.Validation("query is not valid UTF-8")
	}
	for _, r := range q {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return "", apperrors.Validation("query contains control character %U", r)
		}
	}
	q = strings.Join(strings.Fields(strings.Map(func(r rune) rune {
		if strings.ContainsRune(strippedChars, r) {
			return -1
		}
		return r
	}, q)), " ")
	if q == "" {
		return "", apperrors.Validation("query has no searchable content")
	}
	return q, nil
}

func (e *Engine) clampPage(page, pageSize int) (int, int) {
	page = min(max(page, 1), MaxPage)
	if pageSize <= 0 {
		pageSize = e.cfg.DefaultPageSize
	}
	if pageSize > e.cfg.MaxPageSize {
		pageSize = e.cfg.MaxPageSize
	}
	return page, pageSize
}

func canonicalFilters(f facet.Filters) (facet.Filters, error) {
	for name := range f {
		if !facet.Known(strings.ToLower(strings.TrimSpace(name))) {
			return nil, apperrors.Validation("unknown facet %q (known: %s)", name, strings.Join(facet.Names(), ", "))
		}
	}
	return f.Canonical(), nil
}

// keep returns the item predicate for filters, or nil when there are none.
func keep(filters facet.Filters) func(*catalog.Item) bool {
	if filters.Empty() {
		return nil
	}
	return filters.Match
}

// toResults materialises ranked items with their highlights and snippet.
func toResults(ranked []fusion.Ranked, idx *index.Index, hl *highlighter) []Result {
	out := make([]Result, 0, len(ranked))
	for _, r := range ranked {
		item, ok := idx.Item(r.ItemID)
		if !ok {
			continue
		}
		out = append(out, Result{
			ID:            r.ItemID,
			Score:         r.Score,
			Breakdown:     r.Breakdown,
			Factors:       r.Factors,
			MatchedFields: r.MatchedFields,
			Fields:        item.Fields,
			Highlights:    hl.highlights(item, r.MatchedFields),
			Snippet:       hl.snippet(item),
		})
	}
	return out
}

func emptyPage(active []strategy.ID, page, pageSize int) Page {
	results, pagination := paginate([]Result{}, page, pageSize)
	return Page{Results: results, Pagination: pagination, Strategies: active}
}

func failedIDs(out executor.Outcome) []strategy.ID {
	if len(out.Failures) == 0 {
		return nil
	}
	ids := make([]strategy.ID, 0, len(out.Failures))
	for id := range out.Failures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func idStrings(ids []strategy.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (e *Engine) countQuery(resultType string) {
	if e.metrics != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}

func (e *Engine) observe(resp *Response, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	status := "miss"
	if resp.CacheHit {
		status = "hit"
	}
	resultType := status
	if resp.Pagination.TotalResults == 0 {
		resultType = "zero_result"
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchLatency.WithLabelValues(status).Observe(elapsed.Seconds())
	e.metrics.SearchResultsCount.Observe(float64(resp.Pagination.TotalResults))
}

func (e *Engine) track(ctx context.Context, kind analytics.EventType, resp *Response, outcome *executor.Outcome) {
	if e.tracker == nil {
		return
	}
	ev := analytics.QueryPerformanceEvent{
		Type:             kind,
		Query:            resp.Query,
		Terms:            resp.Terms,
		Intent:           string(resp.Intent),
		Corrected:        len(resp.Corrections) > 0,
		Strategies:       idStrings(resp.Strategies),
		FailedStrategies: idStrings(resp.FailedStrategies),
		CacheHit:         resp.CacheHit,
		TotalResults:     resp.Pagination.TotalResults,
		Returned:         len(resp.Results),
		LatencyMs:        resp.TookMs,
		RequestID:        logger.RequestID(ctx),
		Timestamp:        time.Now().UTC(),
	}
	if len(resp.Results) > 0 {
		ev.TopScore = resp.Results[0].Score
	}
	if outcome != nil {
		ev.StrategyLatencyMs = make(map[string]float64, len(outcome.Elapsed))
		for id, d := range outcome.Elapsed {
			ev.StrategyLatencyMs[string(id)] = float64(d.Microseconds()) / 1000
		}
	}
	e.tracker.Track(ev)
}
