package refine

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/dataglass/pattern-sentry/internal/learner"
	"github.com/dataglass/pattern-sentry/internal/pattern"
	"go.uber.org/zap"
)

// Suggestions is a human-reviewable refinement proposal. Nothing in it takes
// effect until Apply is called explicitly.
type Suggestions struct {
	PatternID string `json:"pattern_id"`
	// BaseExpression is the pattern expression the suggestions were computed
	// against, used for stale-state conflict detection on Apply
	BaseExpression       string   `json:"base_expression"`
	ExcludedExamples     []string `json:"excluded_examples"`
	ImprovedExpression   string   `json:"improved_expression,omitempty"`
	ImprovedAlternatives []string `json:"improved_alternatives,omitempty"`
	ValidationRules      []string `json:"validation_rules,omitempty"`
	Reasoning            string   `json:"reasoning"`
}

// Suggest builds a refinement proposal from the pattern's recent negative
// feedback and the positively-confirmed matched texts. Any text judged
// negative at least the pattern's auto-refine threshold times becomes a
// suggested exclusion, mirroring the automatic path so both agree.
func (r *Refiner) Suggest(p *pattern.Pattern, recentNegatives []*pattern.FeedbackRecord, confirmedPositives []string) *Suggestions {
	s := &Suggestions{
		PatternID:      p.ID,
		BaseExpression: p.Expression,
	}

	counts := make(map[string]int)
	for _, rec := range recentNegatives {
		counts[rec.MatchedText]++
	}

	for text, count := range counts {
		if count >= p.AutoRefineThreshold && !p.IsExcluded(text) {
			s.ExcludedExamples = append(s.ExcludedExamples, text)
		}
	}
	sort.Strings(s.ExcludedExamples)

	s.ValidationRules = deriveValidationRules(s.ExcludedExamples)

	// Re-learn from surviving examples plus confirmed positives. An improved
	// expression is only ever a suggestion, never applied automatically.
	retrain := trainingExamples(p, s.ExcludedExamples, confirmedPositives)
	if len(retrain) > 0 {
		learned, err := learner.Learn(retrain)
		if err == nil && learned.Expression != p.Expression {
			s.ImprovedExpression = learned.Expression
			s.ImprovedAlternatives = learned.Alternatives
		} else if err != nil {
			r.logger.Debug("Re-learning produced no improved expression",
				zap.String("pattern_id", p.ID), zap.Error(err))
		}
	}

	s.Reasoning = buildReasoning(p, len(recentNegatives), s)
	return s
}

// trainingExamples is examples minus the suggested and committed exclusions,
// unioned with confirmed positives
func trainingExamples(p *pattern.Pattern, suggestedExclusions, confirmedPositives []string) []string {
	dropped := make(map[string]bool, len(suggestedExclusions))
	for _, text := range suggestedExclusions {
		dropped[text] = true
	}

	seen := make(map[string]bool)
	var examples []string
	for _, ex := range p.Examples {
		if dropped[ex] || p.IsExcluded(ex) || seen[ex] {
			continue
		}
		seen[ex] = true
		examples = append(examples, ex)
	}
	for _, ex := range confirmedPositives {
		if dropped[ex] || p.IsExcluded(ex) || seen[ex] {
			continue
		}
		seen[ex] = true
		examples = append(examples, ex)
	}
	return examples
}

// deriveValidationRules proposes auxiliary predicates from structural
// commonalities across the confirmed false positives
func deriveValidationRules(falsePositives []string) []string {
	if len(falsePositives) == 0 {
		return nil
	}

	allRepeated := true
	allSequential := true
	for _, fp := range falsePositives {
		digits := digitsOf(fp)
		if len(digits) < 2 {
			allRepeated = false
			allSequential = false
			break
		}
		if !isRepeatedDigit(digits) {
			allRepeated = false
		}
		if !isSequentialDigits(digits) {
			allSequential = false
		}
	}

	var rules []string
	if allRepeated {
		rules = append(rules, "reject values whose digits are a single repeated digit")
	}
	if allSequential {
		rules = append(rules, "reject values whose digits form an ascending sequence")
	}
	return rules
}

func digitsOf(s string) []rune {
	var digits []rune
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	return digits
}

func isRepeatedDigit(digits []rune) bool {
	for _, d := range digits[1:] {
		if d != digits[0] {
			return false
		}
	}
	return true
}

func isSequentialDigits(digits []rune) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[i-1]+1 {
			return false
		}
	}
	return true
}

func buildReasoning(p *pattern.Pattern, negativesConsidered int, s *Suggestions) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reviewed %d recent negative feedback records for pattern %q.", negativesConsidered, p.Label)
	if len(s.ExcludedExamples) > 0 {
		fmt.Fprintf(&sb, " %d matched text(s) were judged false positive at least %d times and are proposed for exclusion.",
			len(s.ExcludedExamples), p.AutoRefineThreshold)
	} else {
		sb.WriteString(" No matched text crossed the exclusion threshold.")
	}
	if s.ImprovedExpression != "" {
		sb.WriteString(" Re-learning over the surviving examples produced a narrower expression.")
	}
	if len(s.ValidationRules) > 0 {
		fmt.Fprintf(&sb, " %d validation rule(s) were derived from the structure of the false positives.", len(s.ValidationRules))
	}
	return sb.String()
}
