package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRouter(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg)
	m.CacheHitsTotal.Inc()

	srv := httptest.NewServer(NewAdminRouter(ServerOptions{Gatherer: reg}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "cache_hits_total 1")

	resp, err = http.Get(srv.URL + "/debug/pprof/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminRouter_Profiling(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(NewAdminRouter(ServerOptions{Gatherer: prometheus.NewRegistry(), Profiling: true}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/pprof/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
