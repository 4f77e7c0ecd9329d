package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Suggestions(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	for _, q := range []string{"bluetooth speaker", "bluetooth speaker", "bluetooth headphones", "laptop"} {
		agg.Record(QueryPerformanceEvent{Type: EventSearch, Query: q})
	}
	h := NewHandler(agg)

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"most frequent first", "/?q=blue", []string{"bluetooth speaker", "bluetooth headphones"}},
		{"limit", "/?q=blue&limit=1", []string{"bluetooth speaker"}},
		{"bad limit uses default", "/?q=blue&limit=-3", []string{"bluetooth speaker", "bluetooth headphones"}},
		{"short input", "/?q=b", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Suggestions(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.Equal(t, http.StatusOK, rec.Code)

			var body struct {
				Suggestions []string `json:"suggestions"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Suggestions)
		})
	}
}

func TestHandler_Stats(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	agg.Record(QueryPerformanceEvent{Type: EventSearch, Query: "tv", CacheHit: true})
	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
}
