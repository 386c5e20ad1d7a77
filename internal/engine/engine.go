// Package engine composes the learner, scanner, analyzer, and refiner into
// the pattern-detection engine consumed by route handlers.
package engine

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataglass/pattern-sentry/internal/accuracy"
	"github.com/dataglass/pattern-sentry/internal/cache"
	"github.com/dataglass/pattern-sentry/internal/events"
	"github.com/dataglass/pattern-sentry/internal/learner"
	"github.com/dataglass/pattern-sentry/internal/pattern"
	"github.com/dataglass/pattern-sentry/internal/refine"
	"github.com/dataglass/pattern-sentry/internal/scanner"
	"github.com/dataglass/pattern-sentry/internal/store"
)

// Config contains engine defaults applied to newly created patterns and to
// accuracy analysis.
type Config struct {
	// DefaultConfidenceThreshold seeds new patterns
	DefaultConfidenceThreshold float64 `yaml:"default_confidence_threshold" mapstructure:"default_confidence_threshold"`
	// AutoRefineThreshold is how many identical negative judgments confirm
	// a false positive. Shared by auto-exclusion and suggestion generation.
	AutoRefineThreshold int `yaml:"auto_refine_threshold" mapstructure:"auto_refine_threshold"`
	// AssumedRecall is the fixed recall proxy; no ground truth for missed
	// matches exists
	AssumedRecall float64 `yaml:"assumed_recall" mapstructure:"assumed_recall"`
	// MinSampleSize is the negative count floor before issues are flagged
	MinSampleSize int `yaml:"min_sample_size" mapstructure:"min_sample_size"`

	Refine refine.Config `yaml:"refine" mapstructure:"refine"`
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		DefaultConfidenceThreshold: 0.6,
		AutoRefineThreshold:        3,
		AssumedRecall:              0.8,
		MinSampleSize:              5,
		Refine:                     refine.DefaultConfig(),
	}
}

// Engine is the sensitive-pattern detection and adaptive refinement engine.
// The cache and hub are optional; a nil value disables that concern.
type Engine struct {
	store    store.Store
	scanner  *scanner.Scanner
	analyzer *accuracy.Analyzer
	refiner  *refine.Refiner
	cache    *cache.AccuracyCache
	hub      *events.Hub
	logger   *zap.Logger
	config   Config

	// per-pattern locks serialize the feedback read-increment-write path;
	// writes for different patterns proceed concurrently
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates an engine
func New(st store.Store, acCache *cache.AccuracyCache, hub *events.Hub, cfg Config, logger *zap.Logger) *Engine {
	if cfg.DefaultConfidenceThreshold <= 0 {
		cfg.DefaultConfidenceThreshold = 0.6
	}
	if cfg.AutoRefineThreshold <= 0 {
		cfg.AutoRefineThreshold = 3
	}
	if cfg.AssumedRecall <= 0 {
		cfg.AssumedRecall = 0.8
	}
	if cfg.MinSampleSize <= 0 {
		cfg.MinSampleSize = 5
	}

	return &Engine{
		store:    st,
		scanner:  scanner.New(logger.With(zap.String("component", "scanner"))),
		analyzer: accuracy.NewAnalyzer(cfg.AssumedRecall, cfg.MinSampleSize),
		refiner:  refine.New(cfg.Refine, logger.With(zap.String("component", "refine"))),
		cache:    acCache,
		hub:      hub,
		logger:   logger,
		config:   cfg,
	}
}

// CreatePatternInput describes a new detector. Expression is optional: when
// empty, the expression is learned from the examples.
type CreatePatternInput struct {
	Label                  string           `json:"label"`
	Category               pattern.Category `json:"category"`
	IsContextClue          bool             `json:"is_context_clue"`
	Examples               []string         `json:"examples"`
	Expression             string           `json:"expression,omitempty"`
	AlternativeExpressions []string         `json:"alternative_expressions,omitempty"`
	ConfidenceThreshold    float64          `json:"confidence_threshold,omitempty"`
	AutoRefineThreshold    int              `json:"auto_refine_threshold,omitempty"`
}

// CreatePattern creates a pattern, learning its expression from the examples
// unless an explicit expression is supplied.
func (e *Engine) CreatePattern(ctx context.Context, input CreatePatternInput) (*pattern.Pattern, error) {
	if input.Label == "" {
		return nil, fmt.Errorf("%w: label is required", pattern.ErrInvalidInput)
	}
	if input.Category == "" {
		input.Category = pattern.CategoryCustom
	}
	if !pattern.ValidCategory(input.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", pattern.ErrInvalidInput, input.Category)
	}

	expression := input.Expression
	alternatives := input.AlternativeExpressions
	if expression == "" {
		learned, err := learner.Learn(input.Examples)
		if err != nil {
			return nil, err
		}
		expression = learned.Expression
		alternatives = learned.Alternatives
	} else if _, err := regexp.Compile(expression); err != nil {
		return nil, fmt.Errorf("%w: expression does not compile: %v", pattern.ErrInvalidInput, err)
	}

	threshold := input.ConfidenceThreshold
	if threshold <= 0 {
		threshold = e.config.DefaultConfidenceThreshold
	}
	autoRefine := input.AutoRefineThreshold
	if autoRefine <= 0 {
		autoRefine = e.config.AutoRefineThreshold
	}

	now := time.Now().UTC()
	p := &pattern.Pattern{
		ID:                     uuid.NewString(),
		Label:                  input.Label,
		Category:               input.Category,
		IsContextClue:          input.IsContextClue,
		Examples:               append([]string(nil), input.Examples...),
		Expression:             expression,
		AlternativeExpressions: alternatives,
		ExcludedExamples:       []string{},
		ConfidenceThreshold:    threshold,
		AutoRefineThreshold:    autoRefine,
		Active:                 true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := e.store.CreatePattern(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create pattern: %w", err)
	}

	e.logger.Info("Pattern created",
		zap.String("pattern_id", p.ID),
		zap.String("label", p.Label),
		zap.String("category", string(p.Category)),
		zap.Bool("is_context_clue", p.IsContextClue),
		zap.Int("examples", len(p.Examples)),
		zap.Int("alternatives", len(p.AlternativeExpressions)),
	)
	return p, nil
}

// GetPattern returns a pattern by identifier
func (e *Engine) GetPattern(ctx context.Context, patternID string) (*pattern.Pattern, error) {
	return e.store.FindPattern(ctx, patternID)
}

// ListPatterns returns all patterns, optionally only active ones
func (e *Engine) ListPatterns(ctx context.Context, activeOnly bool) ([]*pattern.Pattern, error) {
	return e.store.ListPatterns(ctx, activeOnly)
}

// DeactivatePattern soft-deletes a pattern. Patterns referenced by feedback
// history are never physically removed.
func (e *Engine) DeactivatePattern(ctx context.Context, patternID string) (*pattern.Pattern, error) {
	unlock := e.lockPattern(patternID)
	defer unlock()

	p, err := e.store.FindPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}

	p.Active = false
	p.UpdatedAt = time.Now().UTC()
	if err := e.store.SavePattern(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to deactivate pattern: %w", err)
	}

	e.logger.Info("Pattern deactivated", zap.String("pattern_id", patternID))
	return p, nil
}

// Learn derives a matching expression from examples without creating a pattern
func (e *Engine) Learn(examples []string) (learner.Learned, error) {
	return learner.Learn(examples)
}

// Scan applies every active pattern to text and returns the ordered matches
// plus per-pattern compile warnings.
func (e *Engine) Scan(ctx context.Context, text string) (scanner.Result, error) {
	patterns, err := e.store.ListPatterns(ctx, true)
	if err != nil {
		return scanner.Result{}, fmt.Errorf("failed to load active patterns: %w", err)
	}

	views := make([]pattern.View, 0, len(patterns))
	for _, p := range patterns {
		views = append(views, pattern.NewView(p))
	}

	start := time.Now()
	result := e.scanner.Scan(text, views)

	if e.hub != nil {
		contextClues := 0
		for _, m := range result.Matches {
			if m.IsContextClue {
				contextClues++
			}
		}
		e.hub.Broadcast(events.Event{
			Type:      events.EventTypeScan,
			Timestamp: time.Now().UTC(),
			Data: events.ScanEvent{
				DocumentLength: len(text),
				PatternsTried:  len(views),
				TotalMatches:   len(result.Matches),
				ContextClues:   contextClues,
				Warnings:       len(result.Warnings),
				ProcessingMS:   float64(time.Since(start).Microseconds()) / 1000.0,
			},
		})
	}

	return result, nil
}

// Accuracy returns the pattern's metrics and issue codes. Reads go through
// the snapshot cache when one is configured.
func (e *Engine) Accuracy(ctx context.Context, patternID string) (pattern.AccuracyMetrics, []accuracy.IssueCode, error) {
	if e.cache != nil {
		if snapshot := e.cache.Get(ctx, patternID); snapshot != nil {
			issues := make([]accuracy.IssueCode, 0, len(snapshot.Issues))
			for _, code := range snapshot.Issues {
				issues = append(issues, accuracy.IssueCode(code))
			}
			return snapshot.Metrics, issues, nil
		}
	}

	p, err := e.store.FindPattern(ctx, patternID)
	if err != nil {
		return pattern.AccuracyMetrics{}, nil, err
	}

	metrics, issues, err := e.analyze(ctx, p)
	if err != nil {
		return pattern.AccuracyMetrics{}, nil, err
	}

	if e.cache != nil {
		e.cache.Set(ctx, patternID, snapshotOf(metrics, issues))
	}
	return metrics, issues, nil
}

// SuggestRefinements builds a human-reviewable refinement proposal from the
// pattern's recent feedback. Nothing is applied until ApplyRefinements.
func (e *Engine) SuggestRefinements(ctx context.Context, patternID string) (*refine.Suggestions, error) {
	p, err := e.store.FindPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}

	window := e.refiner.SuggestionWindow()
	negatives, err := e.store.FindFeedback(ctx, patternID, store.FeedbackFilter{
		Type:  pattern.FeedbackNegative,
		Limit: window,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load negative feedback: %w", err)
	}

	positives, err := e.store.FindFeedback(ctx, patternID, store.FeedbackFilter{
		Type:  pattern.FeedbackPositive,
		Limit: window,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load positive feedback: %w", err)
	}

	confirmed := make([]string, 0, len(positives))
	seen := make(map[string]bool)
	for _, rec := range positives {
		if !seen[rec.MatchedText] {
			seen[rec.MatchedText] = true
			confirmed = append(confirmed, rec.MatchedText)
		}
	}

	return e.refiner.Suggest(p, negatives, confirmed), nil
}

// ApplyRefinements commits a reviewed suggestion set onto the pattern. It is
// idempotent and fails with pattern.ErrConflict when the pattern has moved on
// since the suggestions were generated.
func (e *Engine) ApplyRefinements(ctx context.Context, patternID string, suggestions *refine.Suggestions) (*pattern.Pattern, error) {
	if suggestions == nil {
		return nil, fmt.Errorf("%w: suggestions are required", pattern.ErrInvalidInput)
	}

	unlock := e.lockPattern(patternID)
	defer unlock()

	p, err := e.store.FindPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}

	if err := e.refiner.Apply(p, suggestions); err != nil {
		return nil, err
	}

	p.UpdatedAt = time.Now().UTC()
	if err := e.store.SavePattern(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save refined pattern: %w", err)
	}

	if e.cache != nil {
		e.cache.Invalidate(ctx, patternID)
	}
	if e.hub != nil {
		e.hub.Broadcast(events.Event{
			Type:      events.EventTypeRefinement,
			Timestamp: time.Now().UTC(),
			Data: events.RefinementEvent{
				PatternID:           p.ID,
				PatternLabel:        p.Label,
				Trigger:             "applied",
				ExcludedCount:       len(p.ExcludedExamples),
				ConfidenceThreshold: p.ConfidenceThreshold,
			},
		})
	}

	return p, nil
}

// analyze recomputes metrics from the pattern counters and its negative
// feedback history
func (e *Engine) analyze(ctx context.Context, p *pattern.Pattern) (pattern.AccuracyMetrics, []accuracy.IssueCode, error) {
	negatives, err := e.store.FindFeedback(ctx, p.ID, store.FeedbackFilter{Type: pattern.FeedbackNegative})
	if err != nil {
		return pattern.AccuracyMetrics{}, nil, fmt.Errorf("failed to load negative feedback: %w", err)
	}

	metrics, issues := e.analyzer.Analyze(p, negatives)
	return metrics, issues, nil
}

// lockPattern acquires the per-pattern mutex and returns its unlock func
func (e *Engine) lockPattern(patternID string) func() {
	e.locksMu.Lock()
	if e.locks == nil {
		e.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := e.locks[patternID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[patternID] = lock
	}
	e.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func snapshotOf(metrics pattern.AccuracyMetrics, issues []accuracy.IssueCode) *cache.Snapshot {
	codes := make([]string, 0, len(issues))
	for _, issue := range issues {
		codes = append(codes, string(issue))
	}
	return &cache.Snapshot{Metrics: metrics, Issues: codes}
}
