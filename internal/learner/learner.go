// Package learner derives matching expressions from labeled example strings.
//
// Each example is skeletonized into runs of digits, letters, whitespace, and
// literal punctuation. Structurally identical skeletons are unioned into a
// single quantified expression; structurally different skeletons are kept as
// ordered alternates instead of being merged into an overly permissive
// expression. The learner prefers precision over recall: it never emits an
// unanchored wildcard, and on degenerate input it falls back to escaping the
// literal example, so the original example always matches.
package learner

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/dataglass/pattern-sentry/internal/pattern"
)

// Learned is the result of deriving expressions from examples
type Learned struct {
	Expression   string   `json:"expression"`
	Alternatives []string `json:"alternative_expressions"`
}

type tokenKind int

const (
	kindDigit tokenKind = iota
	kindUpper
	kindLower
	kindSpace
	kindLiteral
)

// token is one run of same-class characters in an example
type token struct {
	kind     tokenKind
	min, max int
	literal  string
}

// skeleton is the token sequence of one example
type skeleton struct {
	tokens []token
	count  int // examples supporting this skeleton
	order  int // first-seen position, for deterministic output
}

// minimum example length before the learner trusts structural generalization
const minGeneralizeLen = 3

// Learn derives a matching expression and alternates from example strings.
// It returns pattern.ErrInvalidInput when no non-empty example is given and
// never fails on well-formed strings.
func Learn(examples []string) (Learned, error) {
	cleaned := make([]string, 0, len(examples))
	for _, ex := range examples {
		if strings.TrimSpace(ex) != "" {
			cleaned = append(cleaned, ex)
		}
	}
	if len(cleaned) == 0 {
		return Learned{}, fmt.Errorf("%w: example set is empty", pattern.ErrInvalidInput)
	}

	if len(cleaned) == 1 && len([]rune(cleaned[0])) < minGeneralizeLen {
		return Learned{Expression: literalExpression(cleaned[0])}, nil
	}

	skeletons := buildSkeletons(cleaned)

	expressions := make([]string, 0, len(skeletons))
	for _, sk := range skeletons {
		expr := renderSkeleton(sk.tokens)
		if _, err := regexp.Compile(expr); err != nil {
			// Should not happen for rendered skeletons, but degrade to a
			// literal match rather than returning a broken expression.
			expr = literalExpression(cleaned[0])
		}
		expressions = append(expressions, expr)
	}

	return Learned{
		Expression:   expressions[0],
		Alternatives: expressions[1:],
	}, nil
}

// buildSkeletons tokenizes every example and unions compatible skeletons.
// The returned slice is ordered best-supported first, first-seen on ties.
func buildSkeletons(examples []string) []*skeleton {
	var skeletons []*skeleton

	for _, ex := range examples {
		tokens := tokenize(ex)
		merged := false
		for _, sk := range skeletons {
			if compatible(sk.tokens, tokens) {
				union(sk.tokens, tokens)
				sk.count++
				merged = true
				break
			}
		}
		if !merged {
			skeletons = append(skeletons, &skeleton{
				tokens: tokens,
				count:  1,
				order:  len(skeletons),
			})
		}
	}

	// Best-supported skeleton becomes the primary expression
	for i := 1; i < len(skeletons); i++ {
		for j := i; j > 0; j-- {
			a, b := skeletons[j-1], skeletons[j]
			if b.count > a.count || (b.count == a.count && b.order < a.order) {
				skeletons[j-1], skeletons[j] = b, a
			}
		}
	}

	return skeletons
}

// tokenize classifies each rune of an example into the learner's alphabet
func tokenize(example string) []token {
	var tokens []token

	for _, r := range example {
		kind := classify(r)

		n := len(tokens)
		if n > 0 && tokens[n-1].kind == kind && kind != kindLiteral {
			tokens[n-1].min++
			tokens[n-1].max++
			continue
		}

		t := token{kind: kind, min: 1, max: 1}
		if kind == kindLiteral {
			t.literal = string(r)
		}
		tokens = append(tokens, t)
	}

	return tokens
}

func classify(r rune) tokenKind {
	switch {
	case unicode.IsDigit(r):
		return kindDigit
	case unicode.IsUpper(r):
		return kindUpper
	case unicode.IsLower(r):
		return kindLower
	case unicode.IsSpace(r):
		return kindSpace
	default:
		return kindLiteral
	}
}

// compatible reports whether two token sequences describe the same structure:
// same token kinds in the same order with identical punctuation literals.
// Run lengths may differ; union widens the quantifiers.
func compatible(a, b []token) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].kind != b[i].kind {
			return false
		}
		if a[i].kind == kindLiteral && a[i].literal != b[i].literal {
			return false
		}
	}
	return true
}

// union widens dst's quantifier bounds to cover src
func union(dst, src []token) {
	for i := range dst {
		if src[i].min < dst[i].min {
			dst[i].min = src[i].min
		}
		if src[i].max > dst[i].max {
			dst[i].max = src[i].max
		}
	}
}

// renderSkeleton turns a token sequence into a regular expression. Word
// boundaries are anchored at word-character edges so the expression does not
// match inside longer runs (precision over recall).
func renderSkeleton(tokens []token) string {
	var sb strings.Builder

	if len(tokens) > 0 && isWordKind(tokens[0].kind) {
		sb.WriteString(`\b`)
	}

	for _, t := range tokens {
		switch t.kind {
		case kindDigit:
			sb.WriteString(`\d`)
			sb.WriteString(quantifier(t.min, t.max))
		case kindUpper:
			sb.WriteString(`[A-Z]`)
			sb.WriteString(quantifier(t.min, t.max))
		case kindLower:
			sb.WriteString(`[a-z]`)
			sb.WriteString(quantifier(t.min, t.max))
		case kindSpace:
			sb.WriteString(`\s`)
			sb.WriteString(quantifier(t.min, t.max))
		case kindLiteral:
			sb.WriteString(regexp.QuoteMeta(t.literal))
		}
	}

	if len(tokens) > 0 && isWordKind(tokens[len(tokens)-1].kind) {
		sb.WriteString(`\b`)
	}

	return sb.String()
}

func isWordKind(k tokenKind) bool {
	return k == kindDigit || k == kindUpper || k == kindLower
}

func quantifier(min, max int) string {
	if min == max {
		if min == 1 {
			return ""
		}
		return fmt.Sprintf("{%d}", min)
	}
	return fmt.Sprintf("{%d,%d}", min, max)
}

// literalExpression escapes an example so it matches itself and nothing else
func literalExpression(example string) string {
	expr := regexp.QuoteMeta(example)

	runes := []rune(example)
	if len(runes) > 0 && isWordRune(runes[0]) {
		expr = `\b` + expr
	}
	if len(runes) > 0 && isWordRune(runes[len(runes)-1]) {
		expr = expr + `\b`
	}
	return expr
}

func isWordRune(r rune) bool {
	return unicode.IsDigit(r) || unicode.IsLetter(r) || r == '_'
}
