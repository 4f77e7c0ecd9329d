package searcher

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/tokenizer"
)

const (
	markOpen   = "<mark>"
	markClose  = "</mark>"
	snippetMax = 150
)

// highlighter marks query words in item text. A word matches when its
// index form, under the shared tokenizer, is one of the query terms.
type highlighter struct {
	tok   *tokenizer.Tokenizer
	terms map[string]struct{}
}

func (e *Engine) highlighter(terms []string) *highlighter {
	h := &highlighter{tok: e.indexer.Tokenizer(), terms: make(map[string]struct{}, len(terms))}
	for _, t := range terms {
		h.terms[t] = struct{}{}
	}
	return h
}

// mark wraps every matching word of text in <mark> tags and reports how
// many distinct terms it found.
func (h *highlighter) mark(text string) (string, int) {
	var b strings.Builder
	found := make(map[string]struct{})
	rest := text
	for rest != "" {
		i := strings.IndexFunc(rest, isWordRune)
		if i < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		rest = rest[i:]
		j := strings.IndexFunc(rest, func(r rune) bool { return !isWordRune(r) })
		if j < 0 {
			j = len(rest)
		}
		word := rest[:j]
		rest = rest[j:]
		if term := h.tok.Normalize(word); h.hit(term) {
			found[term] = struct{}{}
			b.WriteString(markOpen)
			b.WriteString(word)
			b.WriteString(markClose)
			continue
		}
		b.WriteString(word)
	}
	return b.String(), len(found)
}

// highlights returns the marked text of each matched field, or nil if
// there are no query terms.
func (h *highlighter) highlights(item *catalog.Item, fields []string) map[string]string {
	if len(h.terms) == 0 || len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		v := item.Field(f)
		if v == "" {
			continue
		}
		if marked, n := h.mark(v); n > 0 {
			out[f] = marked
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// snippet picks the sentence of the sales package (or the name, when the
// item has none) that contains the most query terms, falling back to the
// first sentence. Long sentences are truncated.
func (h *highlighter) snippet(item *catalog.Item) string {
	source := item.Field(catalog.FieldSalesPackage)
	if source == "" {
		source = item.Field(catalog.FieldName)
	}
	if source == "" {
		return ""
	}
	sentences := strings.Split(source, ".")
	best, bestHits := "", 0
	for _, s := range sentences {
		if _, n := h.mark(s); n > bestHits {
			best, bestHits = strings.TrimSpace(s), n
		}
	}
	if best == "" {
		best = strings.TrimSpace(sentences[0])
	}
	return truncate(best, snippetMax)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-3]) + "..."
}

func (h *highlighter) hit(term string) bool {
	_, ok := h.terms[term]
	return ok
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
