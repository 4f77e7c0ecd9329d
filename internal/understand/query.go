package understand

import (
	"sort"
	"strconv"
	"strings"
)

// Correction records one spelling fix applied to a query token.
type Correction struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Distance int    `json:"distance"`
}

// Expansion is a synonym added for one original term.
type Expansion struct {
	Term   string  `json:"term"`
	Source string  `json:"source"`
	Weight float64 `json:"weight"`
}

// WeightedTerm is a query term with the weight strategies should give it.
type WeightedTerm struct {
	Term      string
	Weight    float64
	Expansion bool
}

// NormalizedQuery is the understood form of one raw query. It is built per
// request and never shared across requests.
type NormalizedQuery struct {
	Raw string `json:"raw"`
	// Terms are the distinct original terms after spelling correction, in
	// query order.
	Terms       []string     `json:"terms"`
	Expansions  []Expansion  `json:"expansions,omitempty"`
	Intent      Intent       `json:"intent"`
	Corrections []Correction `json:"corrections,omitempty"`
	// Degraded is set when a stage failed and the query fell back to plain
	// tokens.
	Degraded bool `json:"degraded,omitempty"`
}

// Empty reports whether the query has no searchable terms.
func (q NormalizedQuery) Empty() bool {
	return len(q.Terms) == 0
}

// ExpansionsOf returns the expansions added for one original term.
func (q NormalizedQuery) ExpansionsOf(term string) []Expansion {
	var out []Expansion
	for _, e := range q.Expansions {
		if e.Source == term {
			out = append(out, e)
		}
	}
	return out
}

// WeightedTerms returns every distinct term once: originals at weight 1,
// then expansions at their own weight.
func (q NormalizedQuery) WeightedTerms() []WeightedTerm {
	out := make([]WeightedTerm, 0, len(q.Terms)+len(q.Expansions))
	seen := make(map[string]int, cap(out))
	for _, t := range q.Terms {
		seen[t] = len(out)
		out = append(out, WeightedTerm{Term: t, Weight: 1})
	}
	for _, e := range q.Expansions {
		if i, ok := seen[e.Term]; ok {
			if out[i].Weight < e.Weight {
				out[i].Weight = e.Weight
			}
			continue
		}
		seen[e.Term] = len(out)
		out = append(out, WeightedTerm{Term: e.Term, Weight: e.Weight, Expansion: true})
	}
	return out
}

// AllTerms returns the distinct original and expansion terms.
func (q NormalizedQuery) AllTerms() []string {
	wt := q.WeightedTerms()
	out := make([]string, len(wt))
	for i, t := range wt {
		out[i] = t.Term
	}
	return out
}

// Signature is a canonical string identifying everything about the query
// that affects scoring. Word order and letter case of the raw text do not
// change it.
func (q NormalizedQuery) Signature() string {
	terms := append([]string(nil), q.Terms...)
	sort.Strings(terms)
	exps := make([]string, 0, len(q.Expansions))
	for _, e := range q.Expansions {
		exps = append(exps, e.Source+">"+e.Term+"@"+strconv.FormatFloat(e.Weight, 'g', -1, 64))
	}
	sort.Strings(exps)
	return strings.Join(terms, ",") + "|" + strings.Join(exps, ",") + "|" + string(q.Intent)
}
