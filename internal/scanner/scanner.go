// Package scanner applies refined pattern views to document text.
package scanner

import (
	"regexp"
	"sort"

	"github.com/dataglass/pattern-sentry/internal/pattern"
	"go.uber.org/zap"
)

// Confidence assigned to occurrences found by the primary expression versus
// an alternate. Alternates cover secondary format variants, so a raised
// confidence threshold suppresses them first.
const (
	primaryConfidence   = 1.0
	alternateConfidence = 0.85
)

// Result is the outcome of scanning one document against a set of patterns.
// Warnings carry per-pattern compile failures; one broken expression never
// blocks detection by the remaining patterns.
type Result struct {
	Matches  []pattern.Match         `json:"matches"`
	Warnings []*pattern.CompileError `json:"warnings,omitempty"`
}

// Scanner finds pattern occurrences in text. It is stateless apart from the
// logger and safe for concurrent use across documents and patterns.
type Scanner struct {
	logger *zap.Logger
}

// New creates a scanner
func New(logger *zap.Logger) *Scanner {
	return &Scanner{logger: logger}
}

// Scan applies every view to text and returns all occurrences ordered by
// ascending start offset. Candidates whose literal text is on the view's
// exclusion list are dropped. Overlapping matches from different patterns are
// all emitted; exact duplicate (pattern, span) pairs are deduplicated.
func (s *Scanner) Scan(text string, views []pattern.View) Result {
	result := Result{Matches: []pattern.Match{}}
	if text == "" {
		return result
	}

	for i := range views {
		view := &views[i]
		matches, err := s.scanPattern(text, view)
		if err != nil {
			result.Warnings = append(result.Warnings, err)
			s.logger.Warn("Skipping pattern with invalid expression",
				zap.String("pattern_id", err.PatternID),
				zap.String("expression", err.Expression),
				zap.Error(err.Err),
			)
			continue
		}
		result.Matches = append(result.Matches, matches...)
	}

	sort.SliceStable(result.Matches, func(i, j int) bool {
		a, b := result.Matches[i], result.Matches[j]
		if a.StartOffset != b.StartOffset {
			return a.StartOffset < b.StartOffset
		}
		if a.EndOffset != b.EndOffset {
			return a.EndOffset < b.EndOffset
		}
		return a.PatternLabel < b.PatternLabel
	})

	return result
}

// scanPattern unions occurrences of the primary expression and every
// alternate for a single view. A compile failure of the primary expression
// fails the pattern; a broken alternate is skipped since the primary already
// carries the pattern's main format.
func (s *Scanner) scanPattern(text string, view *pattern.View) ([]pattern.Match, *pattern.CompileError) {
	primary, err := regexp.Compile(view.Expression)
	if err != nil {
		return nil, &pattern.CompileError{
			PatternID:  view.PatternID,
			Expression: view.Expression,
			Err:        err,
		}
	}

	type span struct{ start, end int }
	seen := make(map[span]bool)
	var matches []pattern.Match

	collect := func(re *regexp.Regexp, confidence float64) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			sp := span{loc[0], loc[1]}
			if seen[sp] {
				continue
			}
			seen[sp] = true

			candidate := text[sp.start:sp.end]
			if view.IsExcluded(candidate) {
				continue
			}
			if confidence < view.ConfidenceThreshold {
				continue
			}

			matches = append(matches, pattern.Match{
				PatternID:     view.PatternID,
				PatternLabel:  view.Label,
				MatchedText:   candidate,
				StartOffset:   sp.start,
				EndOffset:     sp.end,
				IsContextClue: view.IsContextClue,
				Category:      view.Category,
				Confidence:    confidence,
			})
		}
	}

	collect(primary, primaryConfidence)

	for _, alt := range view.AlternativeExpressions {
		re, err := regexp.Compile(alt)
		if err != nil {
			s.logger.Debug("Skipping invalid alternate expression",
				zap.String("pattern_id", view.PatternID),
				zap.String("expression", alt),
				zap.Error(err),
			)
			continue
		}
		collect(re, alternateConfidence)
	}

	return matches, nil
}
