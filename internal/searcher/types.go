package searcher

import (
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/facet"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/strategy"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/understand"
)

// Request is one ranked search.
type Request struct {
	Query string
	// Strategies names the strategies to run. Empty means the configured
	// defaults.
	Strategies []string
	Page       int
	PageSize   int
	Filters    facet.Filters
}

// BooleanRequest is one boolean-expression search.
type BooleanRequest struct {
	Expression string
	Page       int
	PageSize   int
	Filters    facet.Filters
}

// Result is one item on a result page.
type Result struct {
	ID            string                  `json:"id"`
	Score         float64                 `json:"score"`
	Breakdown     map[strategy.ID]float64 `json:"breakdown"`
	Factors       map[string]float64      `json:"factors,omitempty"`
	MatchedFields []string                `json:"matched_fields,omitempty"`
	Fields        map[string]string       `json:"fields"`
	// Highlights holds each matched field with query words wrapped in
	// <mark> tags.
	Highlights map[string]string `json:"highlights,omitempty"`
	Snippet    string            `json:"snippet,omitempty"`
}

// Pagination describes where a page sits in the full result list.
type Pagination struct {
	Page         int  `json:"page"`
	PageSize     int  `json:"page_size"`
	TotalResults int  `json:"total_results"`
	TotalPages   int  `json:"total_pages"`
	HasNext      bool `json:"has_next"`
	HasPrev      bool `json:"has_prev"`
}

// Page is the cacheable part of a response: everything that depends only
// on the understood query, the strategy set, the filters and the page
// parameters.
type Page struct {
	Results          []Result      `json:"results"`
	Pagination       Pagination    `json:"pagination"`
	Strategies       []strategy.ID `json:"strategies"`
	FailedStrategies []strategy.ID `json:"failed_strategies,omitempty"`
}

// Response is what callers of Search see.
type Response struct {
	Query       string                  `json:"query"`
	Terms       []string                `json:"terms"`
	Corrections []understand.Correction `json:"corrections,omitempty"`
	Expansions  []understand.Expansion  `json:"expansions,omitempty"`
	Intent      understand.Intent       `json:"intent"`
	Degraded    bool                    `json:"degraded,omitempty"`
	Page
	CacheHit bool    `json:"cache_hit"`
	TookMs   float64 `json:"took_ms"`
	// Fallback is set on boolean searches whose expression could not be
	// parsed and which were answered as a ranked search instead.
	Fallback bool `json:"fallback,omitempty"`
}

// MaxPage is the highest page number a caller may ask for. Larger values
// are clamped.
const MaxPage = 100_000

func paginate[T any](all []T, page, pageSize int) ([]T, Pagination) {
	total := len(all)
	pages := total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	p := Pagination{
		Page:         page,
		PageSize:     pageSize,
		TotalResults: total,
		TotalPages:   pages,
	}
	p.HasNext = page < pages
	p.HasPrev = page > 1
	if page > pages {
		return []T{}, p
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, total)
	return all[start:end], p
}
