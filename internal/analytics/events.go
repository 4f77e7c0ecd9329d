package analytics

import "time"

type EventType string

const (
	EventSearch         EventType = "search"
	EventBooleanSearch  EventType = "boolean_search"
	EventCatalogRebuild EventType = "catalog_rebuild"
)

// QueryPerformanceEvent describes one completed search. It is emitted after
// the response is built and never influences the response.
type QueryPerformanceEvent struct {
	Type              EventType          `json:"type"`
	Query             string             `json:"query"`
	Terms             []string           `json:"terms"`
	Intent            string             `json:"intent,omitempty"`
	Corrected         bool               `json:"corrected,omitempty"`
	Strategies        []string           `json:"strategies"`
	FailedStrategies  []string           `json:"failed_strategies,omitempty"`
	StrategyLatencyMs map[string]float64 `json:"strategy_latency_ms,omitempty"`
	CacheHit          bool               `json:"cache_hit"`
	TotalResults      int                `json:"total_results"`
	Returned          int                `json:"returned"`
	TopScore          float64            `json:"top_score"`
	LatencyMs         float64            `json:"latency_ms"`
	RequestID         string             `json:"request_id,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
}

// CatalogEvent describes one index rebuild.
type CatalogEvent struct {
	Type       EventType `json:"type"`
	Generation uint64    `json:"generation"`
	Items      int       `json:"items"`
	Rejected   int       `json:"rejected"`
	Skipped    int       `json:"skipped"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// envelope is used to sniff the type of an encoded event.
type envelope struct {
	Type EventType `json:"type"`
}
