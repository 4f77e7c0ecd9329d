// Package understand turns raw query text into a NormalizedQuery: spelling
// is corrected against the corpus vocabulary, synonyms are added as
// down-weighted expansion terms, and a coarse intent is classified. Each
// stage can be switched off, and a failing stage never fails the query.
package understand

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
)

// Vocabulary is the corpus view spelling correction needs. *index.Index
// satisfies it.
type Vocabulary interface {
	Contains(term string) bool
	CorpusFrequency(term string) int
	Vocabulary() []string
}

type Understander struct {
	cfg      config.UnderstandingConfig
	tok      *tokenizer.Tokenizer
	raw      *tokenizer.Tokenizer
	synonyms map[string][]string
	intents  map[string]Intent
	logger   *slog.Logger
}

// New creates an Understander using the default synonym table.
func New(cfg config.UnderstandingConfig, tok *tokenizer.Tokenizer) *Understander {
	return NewWithSynonyms(cfg, tok, DefaultSynonyms())
}

// NewWithSynonyms creates an Understander with a custom synonym table. Keys
// and values are normalised with tok so they compare equal to index terms.
func NewWithSynonyms(cfg config.UnderstandingConfig, tok *tokenizer.Tokenizer, table map[string][]string) *Understander {
	syn := make(map[string][]string, len(table))
	for key, values := range table {
		k := tok.Normalize(key)
		if k == "" {
			continue
		}
		for _, v := range values {
			if nv := tok.Normalize(v); nv != "" && nv != k {
				syn[k] = appendUnique(syn[k], nv)
			}
		}
	}
	intents := make(map[string]Intent)
	// Walk in reverse so earlier rules overwrite later ones on shared words.
	for i := len(intentRules) - 1; i >= 0; i-- {
		for _, kw := range intentRules[i].keywords {
			intents[kw] = intentRules[i].intent
		}
	}
	return &Understander{
		cfg:      cfg,
		tok:      tok,
		raw:      tokenizer.Default(),
		synonyms: syn,
		intents:  intents,
		logger:   slog.Default().With("component", "query-understander"),
	}
}

// Understand normalises raw against vocab. It never fails: if any stage
// errors or panics, the result holds the plain tokens and Degraded is set.
func (u *Understander) Understand(raw string, vocab Vocabulary) NormalizedQuery {
	base := NormalizedQuery{
		Raw:    raw,
		Terms:  distinct(u.tok.Terms(raw)),
		Intent: IntentNone,
	}
	q, err := u.run(base, vocab)
	if err != nil {
		u.logger.Warn("query understanding degraded", "query", raw, "error", err)
		base.Degraded = true
		return base
	}
	return q
}

func (u *Understander) run(base NormalizedQuery, vocab Vocabulary) (q NormalizedQuery, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	q = base
	q.Terms = append([]string(nil), base.Terms...)

	if u.cfg.SpellCorrection && vocab != nil {
		q.Terms, q.Corrections = u.correct(q.Terms, vocab)
	}
	if u.cfg.SynonymExpansion {
		q.Expansions = u.expand(q.Terms)
	}
	if u.cfg.IntentDetection {
		q.Intent = u.detectIntent(q.Raw)
	}
	return q, nil
}

func (u *Understander) correct(terms []string, vocab Vocabulary) ([]string, []Correction) {
	out := make([]string, 0, len(terms))
	var corrections []Correction
	for _, term := range terms {
		if vocab.Contains(term) || !correctable(term, u.cfg.MinTokenLength) {
			out = append(out, term)
			continue
		}
		best, dist, ok := u.closest(term, vocab)
		if !ok {
			out = append(out, term)
			continue
		}
		corrections = append(corrections, Correction{From: term, To: best, Distance: dist})
		out = append(out, best)
	}
	return distinct(out), corrections
}

// closest finds the vocabulary term nearest to term within MaxEditDistance
// whose corpus frequency meets MinCorpusFrequency. Ties prefer the smaller
// distance, then the more frequent term, then the lexicographically smaller.
func (u *Understander) closest(term string, vocab Vocabulary) (string, int, bool) {
	target := []rune(term)
	limit := u.cfg.MaxEditDistance
	bestDist := limit + 1
	bestFreq := -1
	best := ""
	for _, cand := range vocab.Vocabulary() {
		d := boundedDistance(target, []rune(cand), limit)
		if d > limit || d > bestDist {
			continue
		}
		freq := vocab.CorpusFrequency(cand)
		if freq < u.cfg.MinCorpusFrequency {
			continue
		}
		if d < bestDist || freq > bestFreq || (freq == bestFreq && cand < best) {
			best, bestDist, bestFreq = cand, d, freq
		}
	}
	return best, bestDist, best != ""
}

func (u *Understander) expand(terms []string) []Expansion {
	originals := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		originals[t] = struct{}{}
	}
	var out []Expansion
	for _, t := range terms {
		added := 0
		for _, syn := range u.synonyms[t] {
			if added >= u.cfg.MaxExpansionsPerTerm {
				break
			}
			if _, isOriginal := originals[syn]; isOriginal {
				continue
			}
			out = append(out, Expansion{Term: syn, Source: t, Weight: u.cfg.ExpansionWeight})
			added++
		}
	}
	return out
}

func (u *Understander) detectIntent(raw string) Intent {
	best := IntentNone
	bestRank := len(intentRules)
	for _, word := range u.raw.Terms(raw) {
		intent, ok := u.intents[word]
		if !ok {
			continue
		}
		if r := intentRank(intent); r < bestRank {
			best, bestRank = intent, r
		}
	}
	return best
}

func intentRank(intent Intent) int {
	for i, rule := range intentRules {
		if rule.intent == intent {
			return i
		}
	}
	return len(intentRules)
}

// correctable reports whether a token is a candidate for spelling
// correction: long enough and purely alphabetic.
func correctable(term string, minLen int) bool {
	if len([]rune(term)) < minLen {
		return false
	}
	return strings.IndexFunc(term, func(r rune) bool { return !unicode.IsLetter(r) }) < 0
}

func distinct(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
