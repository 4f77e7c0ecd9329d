// Package parser turns boolean search expressions such as
// `bluetooth AND (headphone OR speaker) NOT wired` into an evaluable tree.
//
// Precedence, tightest first: NOT, AND, OR. Parentheses group. Two operands
// with no operator between them are joined with AND.
package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
)

// Set is a set of item ids.
type Set map[string]struct{}

// Node is one element of a parsed expression.
type Node interface {
	// Eval returns the ids of the items in idx matching the node.
	Eval(idx *index.Index) Set
	String() string
}

// Term matches items containing every token of one query word.
type Term struct {
	Word   string
	Tokens []string
}

// And matches items matching both sides.
type And struct{ Left, Right Node }

// Or matches items matching either side.
type Or struct{ Left, Right Node }

// Not matches every catalog item that does not match Operand.
type Not struct{ Operand Node }

func (t Term) Eval(idx *index.Index) Set {
	var out Set
	for _, tok := range t.Tokens {
		s := make(Set)
		for _, p := range idx.Lookup(tok) {
			s[p.ItemID] = struct{}{}
		}
		if out == nil {
			out = s
		} else {
			out = intersect(out, s)
		}
	}
	if out == nil {
		out = make(Set)
	}
	return out
}

func (n And) Eval(idx *index.Index) Set { return intersect(n.Left.Eval(idx), n.Right.Eval(idx)) }

func (n Or) Eval(idx *index.Index) Set {
	out := n.Left.Eval(idx)
	for id := range n.Right.Eval(idx) {
		out[id] = struct{}{}
	}
	return out
}

func (n Not) Eval(idx *index.Index) Set {
	excluded := n.Operand.Eval(idx)
	out := make(Set, idx.TotalItems())
	for _, it := range idx.Items() {
		if _, ok := excluded[it.ID]; !ok {
			out[it.ID] = struct{}{}
		}
	}
	return out
}

func (t Term) String() string { return t.Word }
func (n And) String() string  { return "(" + n.Left.String() + " AND " + n.Right.String() + ")" }
func (n Or) String() string   { return "(" + n.Left.String() + " OR " + n.Right.String() + ")" }
func (n Not) String() string  { return "NOT " + n.Operand.String() }

// PositiveTerms returns the sorted distinct tokens that appear outside any
// NOT. They are the terms worth ranking matches by.
func PositiveTerms(n Node) []string {
	terms := make(map[string]struct{})
	positive(n, terms)
	out := make([]string, 0, len(terms))
	for t := range terms {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func positive(n Node, terms map[string]struct{}) {
	switch v := n.(type) {
	case Term:
		for _, tok := range v.Tokens {
			terms[tok] = struct{}{}
		}
	case And:
		positive(v.Left, terms)
		positive(v.Right, terms)
	case Or:
		positive(v.Left, terms)
		positive(v.Right, terms)
	}
}

// Words returns the non-operator words of expr, for falling back to a
// plain search when Parse fails.
func Words(expr string) []string {
	var out []string
	for _, w := range lex(expr) {
		if !isOperator(w) {
			out = append(out, w)
		}
	}
	return out
}

// Parse parses expr. Errors wrap apperrors.ErrMalformedExpression.
func Parse(expr string, tok *tokenizer.Tokenizer) (Node, error) {
	p := &parser{tokens: lex(expr), tok: tok}
	if len(p.tokens) == 0 {
		return nil, fmt.Errorf("%w: empty expression", apperrors.ErrMalformedExpression)
	}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("%w: unexpected %q at position %d", apperrors.ErrMalformedExpression, p.tokens[p.pos], p.pos)
	}
	return n, nil
}

type parser struct {
	tokens []string
	pos    int
	tok    *tokenizer.Tokenizer
}

func (p *parser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == "OR" {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		switch next := p.peek(); {
		case next == "AND":
			p.pos++
		case next == "" || next == "OR" || next == ")":
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
}

func (p *parser) parseNot() (Node, error) {
	if p.peek() == "NOT" {
		p.pos++
		operand, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return Not{Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	if p.pos >= len(p.tokens) {
		return nil, fmt.Errorf("%w: unexpected end of expression", apperrors.ErrMalformedExpression)
	}
	word := p.tokens[p.pos]
	switch {
	case word == "(":
		p.pos++
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("%w: missing closing parenthesis", apperrors.ErrMalformedExpression)
		}
		p.pos++
		return n, nil
	case isOperator(word):
		return nil, fmt.Errorf("%w: unexpected %q at position %d", apperrors.ErrMalformedExpression, word, p.pos)
	}
	p.pos++
	tokens := p.tok.Terms(word)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: %q has no searchable characters", apperrors.ErrMalformedExpression, word)
	}
	return Term{Word: strings.ToLower(word), Tokens: tokens}, nil
}

func lex(expr string) []string {
	expr = strings.NewReplacer("(", " ( ", ")", " ) ").Replace(expr)
	fields := strings.Fields(expr)
	for i, f := range fields {
		if up := strings.ToUpper(f); isOperator(up) {
			fields[i] = up
		}
	}
	return fields
}

func isOperator(w string) bool {
	switch w {
	case "AND", "OR", "NOT", "(", ")":
		return true
	}
	return false
}

func intersect(a, b Set) Set {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(Set, len(a))
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}
