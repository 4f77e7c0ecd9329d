package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/middleware"
)

// NewRouter builds the search service HTTP handler.
//
// Route table:
//
//	GET    /api/v1/search              ranked search
//	GET    /api/v1/search/boolean      AND / OR / NOT search
//	GET    /api/v1/facets              facet value counts
//	GET    /api/v1/suggestions         popular-query suggestions
//	GET    /api/v1/analytics           aggregated query statistics
//	GET    /api/v1/cache/stats         result cache statistics
//	POST   /api/v1/cache/invalidate    drop every cached page
//	POST   /api/v1/catalog/reload      rebuild the index from the catalog source
//	GET    /health/live, /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID → Recoverer → Metrics → Timeout → handler
//
// m and checker may be nil.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(pkgmw.RequestID)
	r.Use(chimw.Recoverer)
	if m != nil {
		r.Use(pkgmw.Metrics(m))
	}

	if checker != nil {
		r.Get("/health/live", checker.LiveHandler())
		r.Get("/health/ready", checker.ReadyHandler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if timeout > 0 {
			r.Use(pkgmw.Timeout(timeout))
		}
		r.Get("/search", h.Search)
		r.Get("/search/boolean", h.SearchBoolean)
		r.Get("/facets", h.Facets)
		r.Get("/suggestions", h.Suggestions)
		r.Get("/analytics", h.Analytics)
		r.Get("/cache/stats", h.CacheStats)
		r.Post("/cache/invalidate", h.CacheInvalidate)
		r.Post("/catalog/reload", h.Reload)
	})
	return r
}
