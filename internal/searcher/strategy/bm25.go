package strategy

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/understand"
)

// BM25Scorer is Okapi BM25 with configurable k1 and b.
type BM25Scorer struct {
	K1 float64
	B  float64
}

func (BM25Scorer) ID() ID { return BM25 }

func (s BM25Scorer) Score(q understand.NormalizedQuery, idx *index.Index, candidates []string) (Scores, error) {
	scores := make(Scores)
	n := idx.TotalItems()
	if n == 0 {
		return scores, nil
	}
	avgLen := idx.AverageItemLength()
	terms := q.WeightedTerms()
	idfs := make([]float64, len(terms))
	for i, t := range terms {
		idfs[i] = BM25IDF(n, idx.DocumentFrequency(t.Term))
	}
	for _, id := range candidates {
		itemTerms := idx.ItemTerms(id)
		length := float64(idx.ItemLength(id))
		score := 0.0
		matched := false
		for i, t := range terms {
			tf := itemTerms[t.Term]
			if tf == 0 {
				continue
			}
			matched = true
			score += idfs[i] * s.tfNorm(float64(tf), length, avgLen) * t.Weight
		}
		if matched {
			scores[id] = score
		}
	}
	return scores, nil
}

// BM25IDF is the non-negative form ln((N - df)/(df + 0.5) + 1).
func BM25IDF(totalItems, df int) float64 {
	numerator := float64(totalItems) - float64(df)
	denominator := float64(df) + 0.5
	return math.Log(numerator/denominator + 1)
}

func (s BM25Scorer) tfNorm(termFreq, itemLength, avgItemLength float64) float64 {
	if avgItemLength == 0 {
		return 0
	}
	lengthRatio := itemLength / avgItemLength
	denominator := termFreq + s.K1*(1-s.B+s.B*lengthRatio)
	return (termFreq * (s.K1 + 1)) / denominator
}
