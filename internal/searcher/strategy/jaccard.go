package strategy

import (
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/understand"
)

// JaccardApprox scores |Q ∩ D| / |Q ∪ D| between the original query terms
// and an item's distinct terms.
//
// It is deliberately approximate: only the first Ceiling candidates in
// catalog load order are scored, and scores below Floor are dropped. A
// relevant item late in a very broad candidate set can therefore be
// missed by this strategy; the ceiling trades that recall for a hard bound
// on per-query work. The other strategies still see every candidate.
type JaccardApprox struct {
	Floor   float64
	Ceiling int
}

func (JaccardApprox) ID() ID { return Jaccard }

func (s JaccardApprox) Score(q understand.NormalizedQuery, idx *index.Index, candidates []string) (Scores, error) {
	scores := make(Scores)
	if idx.TotalItems() == 0 || len(q.Terms) == 0 {
		return scores, nil
	}
	if s.Ceiling > 0 && len(candidates) > s.Ceiling {
		candidates = candidates[:s.Ceiling]
	}
	query := make(map[string]struct{}, len(q.Terms))
	for _, t := range q.Terms {
		query[t] = struct{}{}
	}
	for _, id := range candidates {
		sim := JaccardSimilarity(query, idx.ItemTerms(id))
		if sim >= s.Floor && sim > 0 {
			scores[id] = sim
		}
	}
	return scores, nil
}

// JaccardSimilarity is the set overlap ratio of two term sets. Two empty
// sets are identical and score 1.
func JaccardSimilarity[A, B any](a map[string]A, b map[string]B) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	small, large := len(a), len(b)
	inter := 0
	if small <= large {
		for t := range a {
			if _, ok := b[t]; ok {
				inter++
			}
		}
	} else {
		for t := range b {
			if _, ok := a[t]; ok {
				inter++
			}
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
