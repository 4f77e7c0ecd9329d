// Package handler exposes the search engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/facet"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/logger"
)

var errAnalyticsDisabled = apperrors.New(apperrors.ErrInternal, http.StatusServiceUnavailable, "analytics disabled")

// Reloader rebuilds the index from the configured catalog source.
type Reloader func(ctx context.Context) (*indexer.RebuildReport, error)

type Handler struct {
	engine *searcher.Engine
	stats  *analytics.Handler
	reload Reloader
	logger *slog.Logger
}

// New creates a Handler. aggregator and reload may be nil; the endpoints
// that need them then answer 503.
func New(engine *searcher.Engine, aggregator *analytics.Aggregator, reload Reloader) *Handler {
	h := &Handler{
		engine: engine,
		reload: reload,
		logger: slog.Default().With("component", "search-handler"),
	}
	if aggregator != nil {
		h.stats = analytics.NewHandler(aggregator)
	}
	return h
}

// Search serves GET /api/v1/search?q=&strategies=&page=&page_size=&<facet>=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	page, pageSize, err := paging(params.Get("page"), params.Get("page_size"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.engine.Search(r.Context(), searcher.Request{
		Query:      params.Get("q"),
		Strategies: splitList(params["strategies"]),
		Page:       page,
		PageSize:   pageSize,
		Filters:    filters(params),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("search completed",
		"query", resp.Query,
		"total_results", resp.Pagination.TotalResults,
		"returned", len(resp.Results),
		"cache_hit", resp.CacheHit,
		"took_ms", resp.TookMs,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// SearchBoolean serves GET /api/v1/search/boolean?q=&page=&page_size=.
func (h *Handler) SearchBoolean(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	page, pageSize, err := paging(params.Get("page"), params.Get("page_size"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.engine.SearchBoolean(r.Context(), searcher.BooleanRequest{
		Expression: params.Get("q"),
		Page:       page,
		PageSize:   pageSize,
		Filters:    filters(params),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Facets(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"facets": h.engine.Facets()})
}

// Suggestions serves GET /api/v1/suggestions?q=&limit=.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.writeError(w, r, errAnalyticsDisabled)
		return
	}
	h.stats.Suggestions(w, r)
}

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.writeError(w, r, errAnalyticsDisabled)
		return
	}
	h.stats.Stats(w, r)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.CacheStats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.InvalidateCache(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// Reload serves POST /api/v1/catalog/reload. A reload already running
// answers 409 instead of queueing.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reload == nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrCatalogUnavailable, http.StatusServiceUnavailable, "reload not configured"))
		return
	}
	report, err := h.reload(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func paging(pageStr, sizeStr string) (int, int, error) {
	var page, size int
	var err error
	if pageStr != "" {
		if page, err = strconv.Atoi(pageStr); err != nil || page < 1 {
			return 0, 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "page must be a positive integer, got %q", pageStr)
		}
		if page > searcher.MaxPage {
			return 0, 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "page must be at most %d, got %d", searcher.MaxPage, page)
		}
	}
	if sizeStr != "" {
		if size, err = strconv.Atoi(sizeStr); err != nil || size < 1 {
			return 0, 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "page_size must be a positive integer, got %q", sizeStr)
		}
	}
	return page, size, nil
}

// splitList accepts both repeated parameters and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func filters(params map[string][]string) facet.Filters {
	var f facet.Filters
	for _, name := range facet.Names() {
		values := splitList(params[name])
		if len(values) == 0 {
			continue
		}
		if f == nil {
			f = make(facet.Filters)
		}
		f[name] = values
	}
	return f
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
