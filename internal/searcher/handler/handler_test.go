package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/middleware"
)

func catalogStore() *catalog.Store {
	return catalog.NewStore([]*catalog.Item{
		catalog.NewItem("A", map[string]string{"Brand": "Sony", "Type": "Bluetooth Speaker"}),
		catalog.NewItem("B", map[string]string{"Brand": "JBL", "Type": "Headphones"}),
	})
}

type fixture struct {
	router http.Handler
	agg    *analytics.Aggregator
	idx    *indexer.Engine
}

func newFixture(t *testing.T, reload Reloader) fixture {
	t.Helper()
	cfg := config.Default()
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	idx := indexer.NewEngine(cfg.Index, m)
	agg := analytics.NewAggregator()
	engine, err := searcher.Build(cfg, idx, agg, nil, m)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	_, err = idx.Rebuild(context.Background(), catalogStore())
	require.NoError(t, err)

	checker := health.NewChecker()
	checker.Register("index", idx.HealthCheck())
	return fixture{
		router: NewRouter(New(engine, agg, reload), checker, m, 5*time.Second),
		agg:    agg,
		idx:    idx,
	}
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestSearch_OK(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec, body := do(t, f.router, http.MethodGet, "/api/v1/search?q=blutooth&strategies=lexical,bm25&page_size=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(pkgmw.RequestIDHeader))

	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].(map[string]any)["id"])
	assert.Equal(t, []any{"lexical", "bm25"}, body["strategies"])
	assert.Len(t, body["corrections"], 1)
	pagination := body["pagination"].(map[string]any)
	assert.Equal(t, 5.0, pagination["page_size"])
}

func TestSearch_FacetFilterFromQueryString(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, body := do(t, f.router, http.MethodGet, "/api/v1/search?q=sony+jbl&brand=jbl")
	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "B", results[0].(map[string]any)["id"])
}

func TestSearch_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing query", "/api/v1/search", http.StatusBadRequest},
		{"bad page", "/api/v1/search?q=tv&page=zero", http.StatusBadRequest},
		{"bad page size", "/api/v1/search?q=tv&page_size=-1", http.StatusBadRequest},
		{"page past the cap", "/api/v1/search?q=tv&page=9223372036854775807", http.StatusBadRequest},
		{"page overflows int", "/api/v1/search?q=tv&page=99999999999999999999", http.StatusBadRequest},
		{"unknown strategy", "/api/v1/search?q=tv&strategies=cosine", http.StatusBadRequest},
		{"malformed boolean without words", "/api/v1/search/boolean?q=AND", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, f.router, http.MethodGet, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSearchBoolean_OK(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec, body := do(t, f.router, http.MethodGet, "/api/v1/search/boolean?q=bluetooth+OR+headphones")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["results"], 2)
}

func TestFacetsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec, body := do(t, f.router, http.MethodGet, "/api/v1/facets")
	require.Equal(t, http.StatusOK, rec.Code)
	facets := body["facets"].(map[string]any)
	assert.Len(t, facets["brand"], 2)
}

func TestSuggestionsAndAnalytics(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	for i := 0; i < 2; i++ {
		rec, _ := do(t, f.router, http.MethodGet, "/api/v1/search?q=bluetooth+speaker")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	_, body := do(t, f.router, http.MethodGet, "/api/v1/suggestions?q=blue")
	assert.Equal(t, []any{"bluetooth speaker"}, body["suggestions"])

	_, body = do(t, f.router, http.MethodGet, "/api/v1/analytics")
	assert.Equal(t, 2.0, body["total_searches"])
	assert.Equal(t, 1.0, body["cache_hits"])
}

func TestCacheEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	do(t, f.router, http.MethodGet, "/api/v1/search?q=speaker")

	_, body := do(t, f.router, http.MethodGet, "/api/v1/cache/stats")
	assert.Equal(t, 1.0, body["size"])

	rec, _ := do(t, f.router, http.MethodPost, "/api/v1/cache/invalidate")
	require.Equal(t, http.StatusOK, rec.Code)
	_, body = do(t, f.router, http.MethodGet, "/api/v1/cache/stats")
	assert.Equal(t, 0.0, body["size"])
}

func TestReload(t *testing.T) {
	t.Parallel()

	var f fixture
	f = newFixture(t, func(ctx context.Context) (*indexer.RebuildReport, error) {
		return f.idx.Rebuild(ctx, catalogStore())
	})
	rec, body := do(t, f.router, http.MethodPost, "/api/v1/catalog/reload")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, body["generation"])
	assert.Equal(t, 2.0, body["items"])
}

func TestReload_InProgressIsConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(context.Context) (*indexer.RebuildReport, error) {
		return nil, apperrors.ErrRebuildInProgress
	})
	rec, _ := do(t, f.router, http.MethodPost, "/api/v1/catalog/reload")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec, body := do(t, f.router, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "up", body["status"])

	rec, _ = do(t, f.router, http.MethodGet, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
}
