package searcher

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/facet"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/strategy"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/understand"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
)

type recorder struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder) Track(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) queryEvents() []analytics.QueryPerformanceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []analytics.QueryPerformanceEvent
	for _, ev := range r.events {
		if q, ok := ev.(analytics.QueryPerformanceEvent); ok {
			out = append(out, q)
		}
	}
	return out
}

type panicky struct{ id strategy.ID }

func (p panicky) ID() strategy.ID { return p.id }

func (p panicky) Score(understand.NormalizedQuery, *index.Index, []string) (strategy.Scores, error) {
	panic("scorer exploded")
}

func speakerItems() []*catalog.Item {
	return []*catalog.Item{
		catalog.NewItem("A", map[string]string{"Brand": "Sony", "Type": "Bluetooth Speaker", "Name": "Sony SRS-XB13"}),
		catalog.NewItem("B", map[string]string{"Brand": "JBL", "Type": "Headphones", "Name": "JBL Tune 510BT"}),
		catalog.NewItem("C", map[string]string{"Brand": "boAt", "Type": "Bluetooth Headphones", "Name": "boAt Rockerz 450"}),
	}
}

func testConfig(mutate func(*config.Config)) *config.Config {
	cfg := config.Default()
	cfg.Search.DefaultPageSize = 3
	if mutate != nil {
		mutate(cfg)
	}
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config, items []*catalog.Item) (*Engine, *indexer.Engine, *recorder) {
	t.Helper()
	idx := indexer.NewEngine(cfg.Index, nil)
	rec := &recorder{}
	e, err := Build(cfg, idx, rec, nil, nil)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	if items != nil {
		_, err := idx.Rebuild(context.Background(), catalog.NewStore(items))
		require.NoError(t, err)
	}
	return e, idx, rec
}

func resultIDs(rs []Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestSearch_BluetoothSpeakerRanksSpeakerFirst(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	resp, err := e.Search(context.Background(), Request{Query: "bluetooth speaker"})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "A", resp.Results[0].ID)
	assert.Contains(t, resp.Results[0].MatchedFields, "Type")
	assert.Equal(t, []string{"bluetooth", "speaker"}, resp.Terms)
	assert.ElementsMatch(t, strategy.AllIDs(), resp.Strategies)
	assert.Empty(t, resp.FailedStrategies)
	assert.NotContains(t, resultIDs(resp.Results), "B", "JBL headphones share no term with the query")
}

func TestSearch_MisspelledQueryIsCorrected(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	resp, err := e.Search(context.Background(), Request{Query: "blutooth speaker"})
	require.NoError(t, err)

	require.Len(t, resp.Corrections, 1)
	assert.Equal(t, understand.Correction{From: "blutooth", To: "bluetooth", Distance: 1}, resp.Corrections[0])
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "A", resp.Results[0].ID)
}

func TestSearch_PaginationCompleteness(t *testing.T) {
	t.Parallel()

	const pageSize = 3
	for _, n := range []int{0, 1, pageSize, pageSize + 1} {
		t.Run(fmt.Sprintf("%d_results", n), func(t *testing.T) {
			t.Parallel()

			items := []*catalog.Item{catalog.NewItem("lamp", map[string]string{"Name": "desk lamp"})}
			for i := 0; i < n; i++ {
				items = append(items, catalog.NewItem(fmt.Sprintf("w%02d", i), map[string]string{"Name": "widget"}))
			}
			e, _, _ := newEngine(t, testConfig(nil), items)

			var seen []string
			for page := 1; ; page++ {
				resp, err := e.Search(context.Background(), Request{Query: "widget", Page: page, PageSize: pageSize})
				require.NoError(t, err)
				assert.Equal(t, n, resp.Pagination.TotalResults)
				assert.Equal(t, (n+pageSize-1)/pageSize, resp.Pagination.TotalPages)
				assert.Equal(t, page > 1, resp.Pagination.HasPrev)
				assert.LessOrEqual(t, len(resp.Results), pageSize)
				seen = append(seen, resultIDs(resp.Results)...)
				if !resp.Pagination.HasNext {
					break
				}
			}
			assert.Len(t, seen, n)
			unique := make(map[string]struct{}, len(seen))
			for _, id := range seen {
				unique[id] = struct{}{}
			}
			assert.Len(t, unique, n, "no item appears on two pages")
		})
	}
}

func TestSearch_PageBeyondEndIsEmpty(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	resp, err := e.Search(context.Background(), Request{Query: "bluetooth", Page: 9})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Results)
	assert.False(t, resp.Pagination.HasNext)
	assert.True(t, resp.Pagination.HasPrev)
}

func TestSearch_Deterministic(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(func(c *config.Config) { c.Cache.Enabled = false }), speakerItems())
	first, err := e.Search(context.Background(), Request{Query: "bluetooth headphones"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Search(context.Background(), Request{Query: "bluetooth headphones"})
		require.NoError(t, err)
		assert.False(t, again.CacheHit)
		assert.Equal(t, first.Results, again.Results)
	}
}

func TestSearch_CacheIdempotence(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	first, err := e.Search(context.Background(), Request{Query: "Bluetooth Speaker"})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := e.Search(context.Background(), Request{Query: "speaker bluetooth"})
	require.NoError(t, err)
	assert.True(t, second.CacheHit, "word order and case do not change the cache key")
	assert.Equal(t, first.Page, second.Page)

	stats := e.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestSearch_CacheKeyIncludesStrategiesAndPaging(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	ctx := context.Background()
	_, err := e.Search(ctx, Request{Query: "bluetooth"})
	require.NoError(t, err)

	for _, req := range []Request{
		{Query: "bluetooth", Strategies: []string{"bm25"}},
		{Query: "bluetooth", PageSize: 1},
		{Query: "bluetooth", Page: 2},
		{Query: "bluetooth", Filters: facet.Filters{"brand": {"sony"}}},
	} {
		resp, err := e.Search(ctx, req)
		require.NoError(t, err)
		assert.False(t, resp.CacheHit, "%+v", req)
	}
}

func TestSearch_PartialFailureIsServedButNotCached(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	e.registry.Register(panicky{id: strategy.BM25})

	for i := 0; i < 2; i++ {
		resp, err := e.Search(context.Background(), Request{Query: "bluetooth speaker"})
		require.NoError(t, err)
		assert.False(t, resp.CacheHit)
		assert.Equal(t, []strategy.ID{strategy.BM25}, resp.FailedStrategies)
		require.NotEmpty(t, resp.Results)
		assert.Equal(t, "A", resp.Results[0].ID)
		assert.NotContains(t, resp.Results[0].Breakdown, strategy.BM25)
	}
}

func TestSearch_AllStrategiesFailing(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	for _, id := range strategy.AllIDs() {
		e.registry.Register(panicky{id: id})
	}

	_, err := e.Search(context.Background(), Request{Query: "bluetooth"})
	require.ErrorIs(t, err, apperrors.ErrNoResultsAvailable)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
	assert.Zero(t, e.CacheStats().Size)
}

func TestSearch_EmptyIndexYieldsEmptyPage(t *testing.T) {
	t.Parallel()

	e, _, rec := newEngine(t, testConfig(nil), nil)
	resp, err := e.Search(context.Background(), Request{Query: "bluetooth"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, resp.Pagination.TotalResults)
	assert.Equal(t, 0, resp.Pagination.TotalPages)
	assert.Len(t, rec.queryEvents(), 1)
}

func TestSearch_Validation(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	tests := []struct {
		name string
		req  Request
	}{
		{"empty", Request{Query: "   "}},
		{"only stripped characters", Request{Query: `<>"'`}},
		{"too long", Request{Query: strings.Repeat("a", 501)}},
		{"control character", Request{Query: "blue\x00tooth"}},
		{"unknown strategy", Request{Query: "bluetooth", Strategies: []string{"cosine"}}},
		{"unknown facet", Request{Query: "bluetooth", Filters: facet.Filters{"colour": {"red"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Search(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
		})
	}
}

func TestSearch_SanitizesMarkup(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	resp, err := e.Search(context.Background(), Request{Query: `  <b>"speaker"</b> `})
	require.NoError(t, err)
	assert.Equal(t, "bspeaker/b", resp.Query)
}

func TestSearch_ClampsPageSize(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	resp, err := e.Search(context.Background(), Request{Query: "bluetooth", Page: -4, PageSize: 10_000})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Pagination.Page)
	assert.Equal(t, 100, resp.Pagination.PageSize)
}

func TestSearch_FacetFilters(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	resp, err := e.Search(context.Background(), Request{
		Query:   "bluetooth",
		Filters: facet.Filters{"brand": {"BOAT"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, resultIDs(resp.Results))
	assert.Equal(t, 1, resp.Pagination.TotalResults)
}

func TestSearch_HugePageIsEmpty(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	for _, page := range []int{math.MaxInt, math.MaxInt / 10, MaxPage + 1} {
		var resp *Response
		require.NotPanics(t, func() {
			var err error
			resp, err = e.Search(context.Background(), Request{Query: "bluetooth", Page: page, PageSize: 10})
			require.NoError(t, err)
		})
		assert.Empty(t, resp.Results)
		assert.NotNil(t, resp.Results)
		assert.Equal(t, MaxPage, resp.Pagination.Page)
		assert.False(t, resp.Pagination.HasNext)
		assert.Equal(t, 2, resp.Pagination.TotalResults)
	}
}

func TestSearch_FiltersApplyBeforeBrandDiversity(t *testing.T) {
	t.Parallel()

	var items []*catalog.Item
	for i := 1; i <= 5; i++ {
		items = append(items, catalog.NewItem(fmt.Sprintf("a%d", i), map[string]string{"Brand": "Sony", "Name": "Speaker"}))
	}
	items = append(items,
		catalog.NewItem("b1", map[string]string{"Brand": "JBL", "Name": "Speaker Dock"}),
		catalog.NewItem("c1", map[string]string{"Brand": "Bose", "Name": "Speaker Bar Unit"}),
	)
	cfg := testConfig(func(c *config.Config) {
		c.Fusion.AuthorityWeight = 0
		c.Fusion.FreshnessWeight = 0
		c.Fusion.IntentWeight = 0
		c.Fusion.DiversityWindow = 10
		c.Fusion.DiversityCap = 3
	})
	e, _, _ := newEngine(t, cfg, items)

	resp, err := e.Search(context.Background(), Request{
		Query:    "speaker",
		PageSize: 10,
		Filters:  facet.Filters{"brand": {"Sony", "Bose"}},
	})
	require.NoError(t, err)

	got := resultIDs(resp.Results)
	assert.ElementsMatch(t, []string{"a1", "a2", "a3", "a4", "a5", "c1"}, got)
	run, longest := 0, 0
	for _, r := range resp.Results {
		if r.Fields["Brand"] == "Sony" {
			run++
		} else {
			run = 0
		}
		longest = max(longest, run)
	}
	assert.LessOrEqual(t, longest, 3, "order %v", got)
	assert.LessOrEqual(t, indexOf(got, "c1"), 3, "the Bose item breaks the Sony run")
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func TestSearch_FacetNamesAreCaseInsensitive(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	resp, err := e.Search(context.Background(), Request{
		Query:   "bluetooth",
		Filters: facet.Filters{" Brand ": {"sony"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, resultIDs(resp.Results))
}

func TestSearch_HighlightsAndSnippet(t *testing.T) {
	t.Parallel()

	items := []*catalog.Item{
		catalog.NewItem("A", map[string]string{
			"Brand":         "Sony",
			"Type":          "Bluetooth Speaker",
			"Name":          "Sony SRS-XB13",
			"Sales Package": "1 Speaker Unit. Charging Cable, Bluetooth Speaker Strap. Manual",
		}),
		catalog.NewItem("B", map[string]string{"Brand": "JBL", "Type": "Speaker", "Name": strings.Repeat("Portable speaker ", 12)}),
	}
	e, _, _ := newEngine(t, testConfig(nil), items)
	resp, err := e.Search(context.Background(), Request{Query: "bluetooth speaker"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	byID := make(map[string]Result, len(resp.Results))
	for _, r := range resp.Results {
		byID[r.ID] = r
	}
	a := byID["A"]
	assert.Equal(t, "<mark>Bluetooth</mark> <mark>Speaker</mark>", a.Highlights["Type"])
	assert.NotContains(t, a.Highlights, "Name", "fields without a query word are not highlighted")
	assert.Equal(t, "Charging Cable, Bluetooth Speaker Strap", a.Snippet)

	b := byID["B"]
	assert.Equal(t, "<mark>Speaker</mark>", b.Highlights["Type"])
	assert.Len(t, []rune(b.Snippet), 150)
	assert.True(t, strings.HasSuffix(b.Snippet, "..."))
}

func TestSearch_RareCorrectionTargetIsRejected(t *testing.T) {
	t.Parallel()

	cfg := testConfig(func(c *config.Config) { c.Understanding.MinCorpusFrequency = 2 })
	e, _, _ := newEngine(t, cfg, speakerItems())
	resp, err := e.Search(context.Background(), Request{Query: "blutooth speker"})
	require.NoError(t, err)

	assert.Equal(t, []understand.Correction{{From: "blutooth", To: "bluetooth", Distance: 1}}, resp.Corrections,
		"speaker occurs once in the catalog, below the threshold")
	assert.Contains(t, resp.Terms, "speker")
}

func TestSearch_TracksQueryEvent(t *testing.T) {
	t.Parallel()

	e, _, rec := newEngine(t, testConfig(nil), speakerItems())
	_, err := e.Search(context.Background(), Request{Query: "blutooth"})
	require.NoError(t, err)

	events := rec.queryEvents()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, analytics.EventSearch, ev.Type)
	assert.Equal(t, "blutooth", ev.Query)
	assert.True(t, ev.Corrected)
	assert.False(t, ev.CacheHit)
	assert.Equal(t, 2, ev.TotalResults)
	assert.Len(t, ev.StrategyLatencyMs, 4)
}

func TestSearchBoolean(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	tests := []struct {
		expr string
		want []string
	}{
		{"bluetooth AND NOT headphones", []string{"A"}},
		{"sony OR jbl", []string{"A", "B"}},
		{"NOT bluetooth", []string{"B"}},
		{"(speaker OR tune) headphones", []string{"B"}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			resp, err := e.SearchBoolean(context.Background(), BooleanRequest{Expression: tt.expr})
			require.NoError(t, err)
			assert.False(t, resp.Fallback)
			assert.ElementsMatch(t, tt.want, resultIDs(resp.Results))
		})
	}
}

func TestSearchBoolean_FiltersAndHighlights(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	resp, err := e.SearchBoolean(context.Background(), BooleanRequest{
		Expression: "bluetooth",
		Filters:    facet.Filters{"Brand": {"boat"}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"C"}, resultIDs(resp.Results))
	assert.Equal(t, 1, resp.Pagination.TotalResults)
	assert.Equal(t, "<mark>Bluetooth</mark> Headphones", resp.Results[0].Highlights["Type"])
	assert.Equal(t, "boAt Rockerz 450", resp.Results[0].Snippet)
}

func TestSearchBoolean_RanksByBM25ThenID(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	resp, err := e.SearchBoolean(context.Background(), BooleanRequest{Expression: "headphones OR speaker"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	for i := 1; i < len(resp.Results); i++ {
		prev, cur := resp.Results[i-1], resp.Results[i]
		if prev.Score == cur.Score {
			assert.Less(t, prev.ID, cur.ID)
		} else {
			assert.Greater(t, prev.Score, cur.Score)
		}
	}
}

func TestSearchBoolean_MalformedFallsBack(t *testing.T) {
	t.Parallel()

	e, _, rec := newEngine(t, testConfig(nil), speakerItems())
	resp, err := e.SearchBoolean(context.Background(), BooleanRequest{Expression: "speaker AND (sony"})
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "A", resp.Results[0].ID)

	events := rec.queryEvents()
	require.Len(t, events, 1)
	assert.Equal(t, analytics.EventBooleanSearch, events[0].Type)
}

func TestSearchBoolean_OperatorsOnlyIsInvalid(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, testConfig(nil), speakerItems())
	_, err := e.SearchBoolean(context.Background(), BooleanRequest{Expression: "AND OR"})
	require.ErrorIs(t, err, apperrors.ErrMalformedExpression)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
}

func TestFacets_MemoizedPerGeneration(t *testing.T) {
	t.Parallel()

	e, idx, _ := newEngine(t, testConfig(nil), speakerItems())
	counts := e.Facets()
	assert.Len(t, counts[facet.Brand], 3)

	_, err := idx.Rebuild(context.Background(), catalog.NewStore(speakerItems()[:1]))
	require.NoError(t, err)
	counts = e.Facets()
	assert.Equal(t, []facet.Bucket{{Value: "Sony", Count: 1}}, counts[facet.Brand])
}

func TestRebuild_PurgesAndWarmsCache(t *testing.T) {
	t.Parallel()

	cfg := testConfig(func(c *config.Config) { c.Cache.WarmQueries = []string{"speaker", "<>"} })
	e, idx, rec := newEngine(t, cfg, speakerItems())

	_, err := e.Search(context.Background(), Request{Query: "headphones"})
	require.NoError(t, err)
	assert.Equal(t, 2, e.CacheStats().Size, "warmed query plus the search above")

	_, err = idx.Rebuild(context.Background(), catalog.NewStore(speakerItems()))
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheStats().Size, "only the warmed query survives a rebuild")

	resp, err := e.Search(context.Background(), Request{Query: "speaker"})
	require.NoError(t, err)
	assert.True(t, resp.CacheHit)
	assert.Len(t, rec.queryEvents(), 2, "warming is not reported")
}
