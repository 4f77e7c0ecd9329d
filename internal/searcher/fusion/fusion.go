// Package fusion merges per-strategy score maps into one ranked list.
package fusion

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/strategy"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/understand"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
)

// Ranked is one fused result.
type Ranked struct {
	ItemID        string                  `json:"id"`
	Score         float64                 `json:"score"`
	Breakdown     map[strategy.ID]float64 `json:"breakdown"`
	Factors       map[string]float64      `json:"factors,omitempty"`
	MatchedFields []string                `json:"matched_fields,omitempty"`
}

// Engine holds the fusion weights. It is immutable after New and safe for
// concurrent use.
type Engine struct {
	weights  map[strategy.ID]float64
	factors  []WeightedFactor
	window   int
	brandCap int
}

// New builds an Engine with the default factor set.
func New(cfg config.FusionConfig, weights map[string]float64) *Engine {
	return NewWithFactors(cfg, weights, []WeightedFactor{
		{Factor: Authority{}, Weight: cfg.AuthorityWeight},
		{Factor: Freshness{}, Weight: cfg.FreshnessWeight},
		{Factor: IntentBoost{}, Weight: cfg.IntentWeight},
	})
}

// NewWithFactors builds an Engine with a caller-supplied factor set.
// Factors with a zero weight are skipped.
func NewWithFactors(cfg config.FusionConfig, weights map[string]float64, factors []WeightedFactor) *Engine {
	w := make(map[strategy.ID]float64, len(weights))
	for name, v := range weights {
		if id, err := strategy.ParseID(name); err == nil {
			w[id] = v
		}
	}
	active := make([]WeightedFactor, 0, len(factors))
	for _, f := range factors {
		if f.Weight != 0 && f.Factor != nil {
			active = append(active, f)
		}
	}
	return &Engine{
		weights:  w,
		factors:  active,
		window:   cfg.DiversityWindow,
		brandCap: cfg.DiversityCap,
	}
}

// Weight returns the multiplier for one strategy. Strategies without a
// configured weight count at full weight.
func (e *Engine) Weight(id strategy.ID) float64 {
	if w, ok := e.weights[id]; ok {
		return w
	}
	return 1
}

// Combine fuses the score maps of the active strategies. Vectors for
// strategies outside active are ignored, as are active strategies with no
// vector (they failed). Every item scored by at least one counted strategy
// appears exactly once in the output.
func (e *Engine) Combine(vectors map[strategy.ID]strategy.Scores, active []strategy.ID, q understand.NormalizedQuery, idx *index.Index) []Ranked {
	return e.CombineFiltered(vectors, active, q, idx, nil)
}

// CombineFiltered is Combine restricted to the items keep accepts. Items
// are dropped before ranking and brand diversity, so the diversity rule
// holds on the filtered list. A nil keep accepts every item.
func (e *Engine) CombineFiltered(vectors map[strategy.ID]strategy.Scores, active []strategy.ID, q understand.NormalizedQuery, idx *index.Index, keep func(*catalog.Item) bool) []Ranked {
	var rejected map[string]struct{}
	if keep != nil {
		rejected = make(map[string]struct{})
	}
	byID := make(map[string]*Ranked)
	for _, id := range active {
		scores, ok := vectors[id]
		if !ok {
			continue
		}
		weight := e.Weight(id)
		for itemID, s := range scores {
			r, ok := byID[itemID]
			if !ok && keep != nil {
				if _, skip := rejected[itemID]; skip {
					continue
				}
				if item, found := idx.Item(itemID); !found || !keep(item) {
					rejected[itemID] = struct{}{}
					continue
				}
			}
			if !ok {
				r = &Ranked{ItemID: itemID, Breakdown: make(map[strategy.ID]float64, len(active))}
				byID[itemID] = r
			}
			r.Breakdown[id] = s
			r.Score += s * weight
		}
	}

	out := make([]Ranked, 0, len(byID))
	for _, r := range byID {
		item, ok := idx.Item(r.ItemID)
		if ok && len(e.factors) > 0 {
			r.Factors = make(map[string]float64, len(e.factors))
			for _, f := range e.factors {
				v := f.Score(item, q.Intent)
				r.Factors[f.Name()] = v
				r.Score += v * f.Weight
			}
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	AttachMatchedFields(out, q.AllTerms(), idx)
	return Diversify(out, e.window, e.brandCap, brandOf(idx))
}

func less(a, b Ranked) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ItemID < b.ItemID
}

// AttachMatchedFields sets MatchedFields on each result to the sorted item
// fields in which any of terms occurs.
func AttachMatchedFields(results []Ranked, terms []string, idx *index.Index) {
	if len(results) == 0 {
		return
	}
	pos := make(map[string]int, len(results))
	for i, r := range results {
		pos[r.ItemID] = i
	}
	fields := make([]map[string]struct{}, len(results))
	for _, term := range terms {
		for _, p := range idx.Lookup(term) {
			i, ok := pos[p.ItemID]
			if !ok {
				continue
			}
			if fields[i] == nil {
				fields[i] = make(map[string]struct{})
			}
			for _, f := range p.Fields {
				fields[i][f] = struct{}{}
			}
		}
	}
	for i, set := range fields {
		if len(set) == 0 {
			continue
		}
		names := make([]string, 0, len(set))
		for f := range set {
			names = append(names, f)
		}
		sort.Strings(names)
		results[i].MatchedFields = names
	}
}

func brandOf(idx *index.Index) func(string) string {
	return func(itemID string) string {
		item, ok := idx.Item(itemID)
		if !ok {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(item.Field(catalog.FieldBrand)))
	}
}

// Diversify reorders results in place so that no more than maxRun items
// with the same non-empty brand appear consecutively within the first
// window positions. When a run would exceed maxRun, the next lower-ranked
// item with a different (or no) brand is moved up; nothing is dropped. If
// no such item exists the remaining order is left as is.
func Diversify(results []Ranked, window, maxRun int, brand func(string) string) []Ranked {
	if window <= 0 || maxRun <= 0 || len(results) <= maxRun {
		return results
	}
	limit := min(window, len(results))
	run := 0
	prev := ""
	for i := 0; i < limit; i++ {
		b := brand(results[i].ItemID)
		if b != "" && b == prev && run >= maxRun {
			j := i + 1
			for j < len(results) && brand(results[j].ItemID) == prev {
				j++
			}
			if j == len(results) {
				break
			}
			moved := results[j]
			copy(results[i+1:j+1], results[i:j])
			results[i] = moved
			b = brand(moved.ItemID)
		}
		if b != "" && b == prev {
			run++
		} else {
			run = 1
		}
		prev = b
	}
	return results
}
