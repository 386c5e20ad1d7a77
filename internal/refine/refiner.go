// Package refine adapts patterns from accumulated negative feedback: it
// auto-excludes confirmed false positives, raises confidence thresholds on
// low precision, and generates human-reviewable refinement suggestions.
package refine

import (
	"fmt"
	"time"

	"github.com/dataglass/pattern-sentry/internal/pattern"
	"go.uber.org/zap"
)

// Config controls refinement behavior
type Config struct {
	// ConfidenceStep is added to the threshold when precision drops
	ConfidenceStep float64 `yaml:"confidence_step" mapstructure:"confidence_step"`
	// MaxConfidenceThreshold caps threshold raises
	MaxConfidenceThreshold float64 `yaml:"max_confidence_threshold" mapstructure:"max_confidence_threshold"`
	// LowPrecision triggers a threshold raise when crossed downward
	LowPrecision float64 `yaml:"low_precision" mapstructure:"low_precision"`
	// SuggestionWindow is how many recent negative records Suggest considers
	SuggestionWindow int `yaml:"suggestion_window" mapstructure:"suggestion_window"`
}

// DefaultConfig returns the refinement defaults
func DefaultConfig() Config {
	return Config{
		ConfidenceStep:         0.1,
		MaxConfidenceThreshold: 0.95,
		LowPrecision:           0.5,
		SuggestionWindow:       50,
	}
}

// Refiner applies and proposes pattern refinements
type Refiner struct {
	config Config
	logger *zap.Logger
}

// New creates a refiner
func New(config Config, logger *zap.Logger) *Refiner {
	if config.ConfidenceStep <= 0 {
		config.ConfidenceStep = 0.1
	}
	if config.MaxConfidenceThreshold <= 0 {
		config.MaxConfidenceThreshold = 0.95
	}
	if config.LowPrecision <= 0 {
		config.LowPrecision = 0.5
	}
	if config.SuggestionWindow <= 0 {
		config.SuggestionWindow = 50
	}
	return &Refiner{config: config, logger: logger}
}

// SuggestionWindow returns how many recent negatives Suggest considers
func (r *Refiner) SuggestionWindow() int {
	return r.config.SuggestionWindow
}

// AutoExclude adds matchedText to the pattern's exclusions once its negative
// feedback count reaches the pattern's auto-refine threshold. The insert is
// idempotent. It returns true when the pattern changed.
func (r *Refiner) AutoExclude(p *pattern.Pattern, matchedText string, negativeCount int) bool {
	if negativeCount < p.AutoRefineThreshold {
		return false
	}
	if !p.AddExclusion(matchedText) {
		return false
	}

	now := time.Now().UTC()
	p.LastRefinedAt = &now

	r.logger.Info("Auto-excluded confirmed false positive",
		zap.String("pattern_id", p.ID),
		zap.String("matched_text", matchedText),
		zap.Int("negative_count", negativeCount),
		zap.Int("auto_refine_threshold", p.AutoRefineThreshold),
	)
	return true
}

// RaiseThreshold raises the pattern's confidence threshold by one step when
// precision has dropped below the low-precision mark. The threshold is
// monotonically non-decreasing and capped. It returns true when the pattern
// changed.
func (r *Refiner) RaiseThreshold(p *pattern.Pattern, precision float64) bool {
	if precision >= r.config.LowPrecision {
		return false
	}
	if p.ConfidenceThreshold >= r.config.MaxConfidenceThreshold {
		return false
	}

	raised := p.ConfidenceThreshold + r.config.ConfidenceStep
	if raised > r.config.MaxConfidenceThreshold {
		raised = r.config.MaxConfidenceThreshold
	}
	p.ConfidenceThreshold = raised

	now := time.Now().UTC()
	p.LastRefinedAt = &now

	r.logger.Info("Raised confidence threshold on low precision",
		zap.String("pattern_id", p.ID),
		zap.Float64("precision", precision),
		zap.Float64("confidence_threshold", p.ConfidenceThreshold),
	)
	return true
}

// Apply commits a reviewed suggestion set onto the pattern. It is idempotent:
// re-applying the same suggestions does not duplicate exclusions or lower the
// threshold. It returns pattern.ErrConflict when the suggestions were computed
// against an expression the pattern no longer carries; the caller must
// re-fetch and suggest again.
func (r *Refiner) Apply(p *pattern.Pattern, s *Suggestions) error {
	if s.PatternID != p.ID {
		return fmt.Errorf("%w: suggestions are for pattern %s", pattern.ErrInvalidInput, s.PatternID)
	}

	// A previously applied improved expression still counts as current state,
	// which keeps re-apply idempotent instead of conflicting.
	if p.Expression != s.BaseExpression && (s.ImprovedExpression == "" || p.Expression != s.ImprovedExpression) {
		return fmt.Errorf("%w: expected expression %q", pattern.ErrConflict, s.BaseExpression)
	}

	changed := false
	for _, text := range s.ExcludedExamples {
		if p.AddExclusion(text) {
			changed = true
		}
	}

	if s.ImprovedExpression != "" && p.Expression != s.ImprovedExpression {
		p.Expression = s.ImprovedExpression
		p.AlternativeExpressions = append([]string(nil), s.ImprovedAlternatives...)
		changed = true
	}

	if changed {
		now := time.Now().UTC()
		p.LastRefinedAt = &now
		r.logger.Info("Applied refinement suggestions",
			zap.String("pattern_id", p.ID),
			zap.Int("excluded_examples", len(s.ExcludedExamples)),
			zap.Bool("expression_updated", s.ImprovedExpression != ""),
		)
	}

	return nil
}
