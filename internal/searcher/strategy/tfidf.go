package strategy

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/understand"
)

// TFIDFScorer sums tf·idf over query terms, each scaled by its term weight.
type TFIDFScorer struct{}

func (TFIDFScorer) ID() ID { return TFIDF }

func (TFIDFScorer) Score(q understand.NormalizedQuery, idx *index.Index, candidates []string) (Scores, error) {
	scores := make(Scores)
	n := idx.TotalItems()
	if n == 0 {
		return scores, nil
	}
	terms := q.WeightedTerms()
	idfs := make([]float64, len(terms))
	for i, t := range terms {
		idfs[i] = IDF(n, idx.DocumentFrequency(t.Term))
	}
	for _, id := range candidates {
		length := idx.ItemLength(id)
		if length == 0 {
			continue
		}
		itemTerms := idx.ItemTerms(id)
		score := 0.0
		matched := false
		for i, t := range terms {
			occ := itemTerms[t.Term]
			if occ == 0 {
				continue
			}
			matched = true
			score += float64(occ) / float64(length) * idfs[i] * t.Weight
		}
		if matched {
			scores[id] = score
		}
	}
	return scores, nil
}

// IDF is ln(totalItems / max(1, df)). It is never negative and is zero
// exactly when the term occurs in every item.
func IDF(totalItems, df int) float64 {
	if totalItems <= 0 {
		return 0
	}
	if df < 1 {
		df = 1
	}
	if df >= totalItems {
		return 0
	}
	return math.Log(float64(totalItems) / float64(df))
}
