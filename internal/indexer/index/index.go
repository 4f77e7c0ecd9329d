// Package index implements the immutable in-memory inverted index: token to
// postings, plus the corpus statistics the scoring strategies read.
package index

import (
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/tokenizer"
)

// Index is never mutated after Build returns, so any number of goroutines
// may read it without locking.
type Index struct {
	postings    map[string]PostingList
	corpusFreq  map[string]int
	stats       map[string]*itemStats
	items       []*catalog.Item
	position    map[string]int
	vocabulary  []string
	totalTokens int
	generation  uint64
}

// BuildOptions tunes Build.
type BuildOptions struct {
	// Concurrency bounds the goroutines tokenizing items. Zero means
	// GOMAXPROCS.
	Concurrency int
	// Generation is stamped on the index so cache keys can tell snapshots
	// apart.
	Generation uint64
}

type tokenized struct {
	stats    *itemStats
	postings map[string]*Posting
}

// Build tokenizes every item and assembles a new Index. Items without an id
// or repeating an earlier id are skipped and reported; Build never fails.
func Build(items []*catalog.Item, tok *tokenizer.Tokenizer, opts BuildOptions) (*Index, []BuildWarning) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	results := make([]*tokenized, len(items))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, it := range items {
		if it == nil || it.ID == "" {
			continue
		}
		g.Go(func() error {
			results[i] = tokenizeItem(it, tok)
			return nil
		})
	}
	_ = g.Wait()

	idx := &Index{
		postings:   make(map[string]PostingList),
		corpusFreq: make(map[string]int),
		stats:      make(map[string]*itemStats, len(items)),
		items:      make([]*catalog.Item, 0, len(items)),
		position:   make(map[string]int, len(items)),
		generation: opts.Generation,
	}
	var warnings []BuildWarning
	for i, it := range items {
		if it == nil || it.ID == "" {
			warnings = append(warnings, BuildWarning{Position: i, Reason: "missing item id"})
			continue
		}
		if _, dup := idx.position[it.ID]; dup {
			warnings = append(warnings, BuildWarning{Position: i, ItemID: it.ID, Reason: "duplicate item id"})
			continue
		}
		res := results[i]
		idx.position[it.ID] = len(idx.items)
		idx.items = append(idx.items, it)
		idx.stats[it.ID] = res.stats
		idx.totalTokens += res.stats.length

		// Sorted terms keep map iteration out of the posting order.
		terms := make([]string, 0, len(res.postings))
		for term := range res.postings {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		for _, term := range terms {
			p := res.postings[term]
			idx.postings[term] = append(idx.postings[term], *p)
			idx.corpusFreq[term] += p.Frequency
		}
	}

	idx.vocabulary = make([]string, 0, len(idx.postings))
	for term := range idx.postings {
		idx.vocabulary = append(idx.vocabulary, term)
	}
	sort.Strings(idx.vocabulary)
	return idx, warnings
}

func tokenizeItem(it *catalog.Item, tok *tokenizer.Tokenizer) *tokenized {
	st := &itemStats{
		fieldLengths: make(map[string]int, len(it.Fields)),
		terms:        make(map[string]int),
	}
	postings := make(map[string]*Posting)
	offset := 0
	for _, field := range it.FieldNames() {
		tokens := tok.Tokenize(it.Fields[field])
		st.fieldLengths[field] = len(tokens)
		for _, token := range tokens {
			p, exists := postings[token.Term]
			if !exists {
				p = &Posting{
					ItemID:    it.ID,
					Positions: make([]int, 0, 2),
				}
				postings[token.Term] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, offset+token.Position)
			if n := len(p.Fields); n == 0 || p.Fields[n-1] != field {
				p.Fields = append(p.Fields, field)
			}
			st.terms[token.Term]++
		}
		offset += len(tokens)
	}
	st.length = offset
	return &tokenized{stats: st, postings: postings}
}

// Lookup returns the postings for term in load order, or nil for unknown
// terms. The returned slice must not be modified.
func (x *Index) Lookup(term string) PostingList {
	return x.postings[term]
}

// DocumentFrequency returns the number of items containing term.
func (x *Index) DocumentFrequency(term string) int {
	return len(x.postings[term])
}

// CorpusFrequency returns the total occurrences of term across all items.
func (x *Index) CorpusFrequency(term string) int {
	return x.corpusFreq[term]
}

// Contains reports whether term occurs anywhere in the corpus.
func (x *Index) Contains(term string) bool {
	_, ok := x.postings[term]
	return ok
}

// TermFrequency returns the occurrences of term within one item.
func (x *Index) TermFrequency(term, itemID string) int {
	st, ok := x.stats[itemID]
	if !ok {
		return 0
	}
	return st.terms[term]
}

// TotalItems returns the number of indexed items.
func (x *Index) TotalItems() int {
	return len(x.items)
}

// TotalTokens returns the number of tokens across all items.
func (x *Index) TotalTokens() int {
	return x.totalTokens
}

// AverageItemLength returns the mean token count per item, or 0 when empty.
func (x *Index) AverageItemLength() float64 {
	if len(x.items) == 0 {
		return 0
	}
	return float64(x.totalTokens) / float64(len(x.items))
}

// ItemLength returns the token count of one item.
func (x *Index) ItemLength(itemID string) int {
	if st, ok := x.stats[itemID]; ok {
		return st.length
	}
	return 0
}

// FieldLength returns the token count of one field of one item.
func (x *Index) FieldLength(itemID, field string) int {
	if st, ok := x.stats[itemID]; ok {
		return st.fieldLengths[field]
	}
	return 0
}

// ItemTerms returns the distinct terms of one item mapped to their
// frequencies. The returned map must not be modified.
func (x *Index) ItemTerms(itemID string) map[string]int {
	if st, ok := x.stats[itemID]; ok {
		return st.terms
	}
	return nil
}

// Position returns the item's load-order position, or -1 if unknown.
func (x *Index) Position(itemID string) int {
	if p, ok := x.position[itemID]; ok {
		return p
	}
	return -1
}

// Item returns the indexed item with the given id.
func (x *Index) Item(itemID string) (*catalog.Item, bool) {
	p, ok := x.position[itemID]
	if !ok {
		return nil, false
	}
	return x.items[p], true
}

// Items returns the indexed items in load order. The slice must not be
// modified.
func (x *Index) Items() []*catalog.Item {
	return x.items
}

// Vocabulary returns every distinct term in sorted order. The slice must
// not be modified.
func (x *Index) Vocabulary() []string {
	return x.vocabulary
}

// Generation returns the build generation stamped by BuildOptions.
func (x *Index) Generation() uint64 {
	return x.generation
}

// Empty returns an index with no items.
func Empty() *Index {
	idx, _ := Build(nil, tokenizer.Default(), BuildOptions{})
	return idx
}
