package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLoad(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/search", r.URL.Path)
		assert.Equal(t, "bm25", r.URL.Query().Get("strategies"))
		if calls.Add(1)%2 == 0 {
			_, _ = w.Write([]byte(`{"cache_hit":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"cache_hit":false}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	stats := runLoad(ctx, &loadOptions{
		baseURL:     srv.URL,
		concurrency: 2,
		strategies:  "bm25",
		queries:     []string{"speaker"},
	})

	require.Positive(t, stats.total.Load())
	assert.Zero(t, stats.failed.Load())
	assert.Positive(t, stats.cacheHits.Load())

	var out bytes.Buffer
	require.NoError(t, writeLoadReport(&out, stats, 100*time.Millisecond))
	assert.Contains(t, out.String(), "200:")
}

func TestWriteLoadReport_NoRequests(t *testing.T) {
	t.Parallel()

	err := writeLoadReport(&bytes.Buffer{}, newLoadStats(), time.Second)
	assert.Error(t, err)
}

func TestLatencyPercentile(t *testing.T) {
	t.Parallel()

	sorted := make([]time.Duration, 100)
	for i := range sorted {
		sorted[i] = time.Duration(i+1) * time.Millisecond
	}
	assert.Equal(t, 50*time.Millisecond, latencyPercentile(sorted, 50))
	assert.Equal(t, 99*time.Millisecond, latencyPercentile(sorted, 99))
	assert.Equal(t, 100*time.Millisecond, latencyPercentile(sorted, 100))
	assert.Zero(t, latencyPercentile(nil, 50))
}
