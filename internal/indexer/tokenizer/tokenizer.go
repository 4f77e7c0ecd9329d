// Package tokenizer provides text tokenisation for the search engine.
// It lower-cases input and splits on non-alphanumeric boundaries. Stop-word
// removal and a simple suffix-based stemmer can be switched on; whatever
// options are chosen apply identically to indexed items and to queries.
package tokenizer

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Options selects the optional normalisation stages.
type Options struct {
	StopWords bool
	Stem      bool
}

// Tokenizer is stateless after construction and safe for concurrent use.
type Tokenizer struct {
	opts Options
}

// New returns a Tokenizer with the given options.
func New(opts Options) *Tokenizer {
	return &Tokenizer{opts: opts}
}

// Default returns a Tokenizer that only lower-cases and splits.
func Default() *Tokenizer {
	return &Tokenizer{}
}

// Tokenize breaks text into lower-cased Tokens. Positions count emitted
// tokens, so they stay dense when stop-words are removed.
func (t *Tokenizer) Tokenize(text string) []Token {
	words := split(text)
	tokens := make([]Token, 0, len(words))
	for _, word := range words {
		term := t.normalize(word)
		if term == "" {
			continue
		}
		tokens = append(tokens, Token{
			Term:     term,
			Position: len(tokens),
		})
	}
	return tokens
}

// Terms is Tokenize without positions.
func (t *Tokenizer) Terms(text string) []string {
	tokens := t.Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// Normalize maps a single word to its index form, or "" if it is dropped.
// The word is split first, and only the first resulting term is kept.
func (t *Tokenizer) Normalize(word string) string {
	words := split(word)
	if len(words) == 0 {
		return ""
	}
	return t.normalize(words[0])
}

func (t *Tokenizer) normalize(word string) string {
	if t.opts.StopWords {
		if _, isStop := stopWords[word]; isStop {
			return ""
		}
	}
	if t.opts.Stem {
		return stem(word)
	}
	return word
}

func split(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var suffixes = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// stem applies a simple suffix-stripping stemmer to the given word. The
// first matching rule whose result meets its minimum length wins.
func stem(word string) string {
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
