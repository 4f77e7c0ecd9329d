package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const maxSuggestionLimit = 50

// Handler exposes an Aggregator over HTTP for the standalone analytics
// service.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats serves the current AggregatedStats.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, h.aggregator.Stats())
}

// Suggestions serves GET ?q=<input>&limit=<n>. An out-of-range limit falls
// back to the default rather than failing the request.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	limit, err := strconv.Atoi(params.Get("limit"))
	if err != nil || limit <= 0 || limit > maxSuggestionLimit {
		limit = DefaultSuggestionLimit
	}
	q := params.Get("q")
	h.respond(w, map[string]any{
		"query":       q,
		"suggestions": h.aggregator.Suggest(q, limit),
	})
}

func (h *Handler) respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("writing analytics response", "error", err)
	}
}
