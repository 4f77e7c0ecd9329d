package strategy

import (
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/understand"
)

// LexicalOverlap scores the fraction of original query terms an item
// contains. A term missing from the item still earns partial credit, its
// expansion weight, when one of its synonyms is present. Items with no
// credit are left out, which makes this the cheap pre-filter.
type LexicalOverlap struct{}

func (LexicalOverlap) ID() ID { return Lexical }

func (LexicalOverlap) Score(q understand.NormalizedQuery, idx *index.Index, candidates []string) (Scores, error) {
	scores := make(Scores)
	if idx.TotalItems() == 0 || len(q.Terms) == 0 {
		return scores, nil
	}
	expansions := make(map[string][]understand.Expansion, len(q.Terms))
	for _, e := range q.Expansions {
		expansions[e.Source] = append(expansions[e.Source], e)
	}
	denom := float64(len(q.Terms))
	for _, id := range candidates {
		terms := idx.ItemTerms(id)
		credit := 0.0
		for _, t := range q.Terms {
			if terms[t] > 0 {
				credit++
				continue
			}
			best := 0.0
			for _, e := range expansions[t] {
				if terms[e.Term] > 0 && e.Weight > best {
					best = e.Weight
				}
			}
			credit += best
		}
		if credit > 0 {
			scores[id] = credit / denom
		}
	}
	return scores, nil
}
