package strategy

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
)

// Registry binds strategy IDs to implementations. It is built once and
// read concurrently afterwards.
type Registry struct {
	strategies map[ID]Strategy
	defaults   []ID
}

// NewRegistry builds the four standard strategies from config.
func NewRegistry(cfg config.StrategiesConfig) (*Registry, error) {
	r := &Registry{strategies: make(map[ID]Strategy, 4)}
	r.Register(LexicalOverlap{})
	r.Register(TFIDFScorer{})
	r.Register(BM25Scorer{K1: cfg.BM25K1, B: cfg.BM25B})
	r.Register(JaccardApprox{Floor: cfg.JaccardFloor, Ceiling: cfg.JaccardCeiling})

	defaults, err := r.Resolve(cfg.Default)
	if err != nil {
		return nil, fmt.Errorf("default strategies: %w", err)
	}
	r.defaults = defaults
	return r, nil
}

// Register adds or replaces the implementation for s.ID().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.ID()] = s
}

// Get returns the implementation bound to id.
func (r *Registry) Get(id ID) (Strategy, bool) {
	s, ok := r.strategies[id]
	return s, ok
}

// Defaults returns the strategy set used when a request names none.
func (r *Registry) Defaults() []ID {
	if len(r.defaults) == 0 {
		return AllIDs()
	}
	return append([]ID(nil), r.defaults...)
}

// Resolve validates names and returns the distinct IDs in canonical order.
// An empty list resolves to the defaults.
func (r *Registry) Resolve(names []string) ([]ID, error) {
	if len(names) == 0 {
		return r.Defaults(), nil
	}
	set := make(map[ID]struct{}, len(names))
	for _, name := range names {
		id, err := ParseID(name)
		if err != nil {
			return nil, err
		}
		if _, ok := r.strategies[id]; !ok {
			return nil, fmt.Errorf("%w: %q is not registered", apperrors.ErrUnknownStrategy, name)
		}
		set[id] = struct{}{}
	}
	return canonical(set), nil
}

func canonical(set map[ID]struct{}) []ID {
	rank := make(map[ID]int)
	for i, id := range AllIDs() {
		rank[id] = i
	}
	out := make([]ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return rank[out[i]] < rank[out[j]] })
	return out
}
