// Package strategy implements the independent relevance scorers that run
// against one index snapshot: lexical overlap, TF-IDF, BM25 and a bounded
// Jaccard approximation. Strategies are pure functions of their inputs and
// safe to run concurrently against a shared index.
package strategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/understand"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
)

// ID names a strategy. The set is fixed; see AllIDs.
type ID string

const (
	Lexical ID = "lexical"
	TFIDF   ID = "tfidf"
	BM25    ID = "bm25"
	Jaccard ID = "jaccard"
)

// AllIDs returns every known strategy in canonical order.
func AllIDs() []ID {
	return []ID{Lexical, TFIDF, BM25, Jaccard}
}

// ParseID validates a strategy name.
func ParseID(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllIDs() {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownStrategy, s)
}

// Scores maps item id to a strategy's raw score. Ranges are strategy
// specific.
type Scores map[string]float64

// Strategy scores candidates for one understood query. Implementations
// must not mutate shared state.
type Strategy interface {
	ID() ID
	Score(q understand.NormalizedQuery, idx *index.Index, candidates []string) (Scores, error)
}

// Candidates returns the ids of every item containing at least one query
// term, original or expansion, in catalog load order.
func Candidates(q understand.NormalizedQuery, idx *index.Index) []string {
	seen := make(map[string]struct{})
	for _, term := range q.AllTerms() {
		for _, p := range idx.Lookup(term) {
			seen[p.ItemID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return idx.Position(out[i]) < idx.Position(out[j])
	})
	return out
}
