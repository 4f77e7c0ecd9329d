// Package metrics defines the Prometheus metric collectors used by the search
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	SearchQueriesTotal    *prometheus.CounterVec
	SearchLatency         *prometheus.HistogramVec
	SearchResultsCount    prometheus.Histogram
	StrategyLatency       *prometheus.HistogramVec
	StrategyFailuresTotal *prometheus.CounterVec
	QueryCorrectionsTotal prometheus.Counter
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	CacheEvictionsTotal   prometheus.Counter
	IndexItems            prometheus.Gauge
	IndexVocabulary       prometheus.Gauge
	IndexRebuildsTotal    *prometheus.CounterVec
	AnalyticsDropped      prometheus.Counter
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all collectors and registers them with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, miss, zero_result, invalid, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of ranked results per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		StrategyLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_strategy_latency_seconds",
				Help:    "Scoring strategy latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"strategy"},
		),
		StrategyFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_strategy_failures_total",
				Help: "Total scoring strategy failures by strategy.",
			},
			[]string{"strategy"},
		),
		QueryCorrectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_corrections_total",
				Help: "Total spelling corrections applied to query tokens.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		CacheEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_evictions_total",
				Help: "Total number of result cache evictions (capacity or expiry).",
			},
		),
		IndexItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_items",
				Help: "Number of items in the live index snapshot.",
			},
		),
		IndexVocabulary: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_vocabulary_size",
				Help: "Number of distinct tokens in the live index snapshot.",
			},
		),
		IndexRebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_rebuilds_total",
				Help: "Total index rebuilds by status.",
			},
			[]string{"status"},
		),
		AnalyticsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analytics_events_dropped_total",
				Help: "Analytics events dropped because the collector buffer was full.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.StrategyLatency,
		m.StrategyFailuresTotal,
		m.QueryCorrectionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheEvictionsTotal,
		m.IndexItems,
		m.IndexVocabulary,
		m.IndexRebuildsTotal,
		m.AnalyticsDropped,
		m.CircuitBreakerState,
	)

	return m
}

