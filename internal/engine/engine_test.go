package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/dataglass/pattern-sentry/internal/accuracy"
	"github.com/dataglass/pattern-sentry/internal/pattern"
	"github.com/dataglass/pattern-sentry/internal/store"
)

func newTestEngine() *Engine {
	return New(store.NewMemoryStore(), nil, nil, DefaultConfig(), zap.NewNop())
}

func createSSNPattern(t *testing.T, e *Engine) *pattern.Pattern {
	t.Helper()
	p, err := e.CreatePattern(context.Background(), CreatePatternInput{
		Label:    "ssn",
		Category: pattern.CategoryPII,
		Examples: []string{"123-45-6789", "987-65-4321"},
	})
	if err != nil {
		t.Fatalf("CreatePattern failed: %v", err)
	}
	return p
}

func TestCreatePattern(t *testing.T) {
	e := newTestEngine()

	t.Run("learns expression from examples", func(t *testing.T) {
		p := createSSNPattern(t, e)
		if p.Expression == "" {
			t.Fatal("Pattern should carry a learned expression")
		}
		if p.ConfidenceThreshold != 0.6 {
			t.Errorf("New patterns should receive the default threshold, got %g", p.ConfidenceThreshold)
		}
		if p.AutoRefineThreshold != 3 {
			t.Errorf("New patterns should receive the default auto-refine threshold, got %d", p.AutoRefineThreshold)
		}
		if !p.Active {
			t.Error("New patterns should be active")
		}
	})

	t.Run("accepts an explicit expression", func(t *testing.T) {
		p, err := e.CreatePattern(context.Background(), CreatePatternInput{
			Label:      "iban",
			Category:   pattern.CategoryFinancial,
			Expression: `\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`,
		})
		if err != nil {
			t.Fatalf("CreatePattern failed: %v", err)
		}
		if p.Expression != `\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b` {
			t.Errorf("Explicit expression should be stored verbatim, got %q", p.Expression)
		}
	})

	t.Run("rejects a broken explicit expression", func(t *testing.T) {
		_, err := e.CreatePattern(context.Background(), CreatePatternInput{
			Label:      "broken",
			Expression: `([0-9`,
		})
		if !errors.Is(err, pattern.ErrInvalidInput) {
			t.Errorf("Expected invalid input, got %v", err)
		}
	})

	t.Run("rejects a missing label", func(t *testing.T) {
		_, err := e.CreatePattern(context.Background(), CreatePatternInput{
			Examples: []string{"123-45-6789"},
		})
		if !errors.Is(err, pattern.ErrInvalidInput) {
			t.Errorf("Expected invalid input, got %v", err)
		}
	})

	t.Run("rejects an unknown category", func(t *testing.T) {
		_, err := e.CreatePattern(context.Background(), CreatePatternInput{
			Label:    "odd",
			Category: pattern.Category("made_up"),
			Examples: []string{"123-45-6789"},
		})
		if !errors.Is(err, pattern.ErrInvalidInput) {
			t.Errorf("Expected invalid input, got %v", err)
		}
	})
}

func TestScanUsesActivePatterns(t *testing.T) {
	e := newTestEngine()
	p := createSSNPattern(t, e)

	result, err := e.Scan(context.Background(), "file for 123-45-6789 today")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("Expected one match, got %d", len(result.Matches))
	}
	if result.Matches[0].PatternID != p.ID {
		t.Errorf("Match should reference the created pattern")
	}

	if _, err := e.DeactivatePattern(context.Background(), p.ID); err != nil {
		t.Fatalf("DeactivatePattern failed: %v", err)
	}

	result, err = e.Scan(context.Background(), "file for 123-45-6789 today")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Errorf("Deactivated patterns must not match, got %d matches", len(result.Matches))
	}
}

func TestRecordFeedbackCounters(t *testing.T) {
	e := newTestEngine()
	p := createSSNPattern(t, e)
	ctx := context.Background()

	submit := func(text string, ft pattern.FeedbackType) {
		t.Helper()
		_, err := e.RecordFeedback(ctx, FeedbackInput{
			PatternID:   p.ID,
			MatchedText: text,
			Type:        ft,
			UserID:      "analyst-1",
		})
		if err != nil {
			t.Fatalf("RecordFeedback failed: %v", err)
		}
	}

	submit("123-45-6789", pattern.FeedbackPositive)
	submit("123-45-6789", pattern.FeedbackPositive)
	submit("000-00-0000", pattern.FeedbackNegative)

	got, err := e.GetPattern(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}

	if got.FeedbackCount != 3 || got.PositiveCount != 2 || got.NegativeCount != 1 {
		t.Errorf("Counters out of sync: total=%d positive=%d negative=%d",
			got.FeedbackCount, got.PositiveCount, got.NegativeCount)
	}
	if got.PositiveCount+got.NegativeCount != got.FeedbackCount {
		t.Errorf("Counter invariant violated: %d + %d != %d",
			got.PositiveCount, got.NegativeCount, got.FeedbackCount)
	}
	if got.AccuracyMetrics == nil {
		t.Fatal("Feedback should refresh the accuracy snapshot")
	}
	if got.AccuracyMetrics.TotalFeedback != 3 {
		t.Errorf("Snapshot should reflect all feedback, got %d", got.AccuracyMetrics.TotalFeedback)
	}
}

func TestRecordFeedbackValidation(t *testing.T) {
	e := newTestEngine()
	p := createSSNPattern(t, e)
	ctx := context.Background()

	cases := []FeedbackInput{
		{MatchedText: "123-45-6789", Type: pattern.FeedbackPositive},
		{PatternID: p.ID, Type: pattern.FeedbackPositive},
		{PatternID: p.ID, MatchedText: "123-45-6789", Type: pattern.FeedbackType("maybe")},
	}
	for _, input := range cases {
		if _, err := e.RecordFeedback(ctx, input); !errors.Is(err, pattern.ErrInvalidInput) {
			t.Errorf("RecordFeedback(%+v) should fail with invalid input, got %v", input, err)
		}
	}

	_, err := e.RecordFeedback(ctx, FeedbackInput{
		PatternID:   "no-such-pattern",
		MatchedText: "123-45-6789",
		Type:        pattern.FeedbackPositive,
	})
	if !errors.Is(err, pattern.ErrNotFound) {
		t.Errorf("Feedback for an unknown pattern should fail with not found, got %v", err)
	}
}

func TestAutoExclusionAfterRepeatedNegatives(t *testing.T) {
	e := newTestEngine()
	p := createSSNPattern(t, e)
	ctx := context.Background()

	negative := func() {
		t.Helper()
		_, err := e.RecordFeedback(ctx, FeedbackInput{
			PatternID:   p.ID,
			MatchedText: "000-00-0000",
			Type:        pattern.FeedbackNegative,
		})
		if err != nil {
			t.Fatalf("RecordFeedback failed: %v", err)
		}
	}

	negative()
	negative()

	got, err := e.GetPattern(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}
	if got.IsExcluded("000-00-0000") {
		t.Fatal("Two negatives must not auto-exclude at threshold three")
	}

	negative()

	got, err = e.GetPattern(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}
	if !got.IsExcluded("000-00-0000") {
		t.Fatal("The third negative should auto-exclude the text")
	}
	if got.LastRefinedAt == nil {
		t.Error("Auto-exclusion should stamp the refinement time")
	}

	// The excluded text no longer matches
	result, err := e.Scan(ctx, "000-00-0000 and 123-45-6789")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(result.Matches) != 1 || result.Matches[0].MatchedText != "123-45-6789" {
		t.Errorf("Excluded text should be suppressed on scan, got %+v", result.Matches)
	}
}

func TestConcurrentFeedback(t *testing.T) {
	e := newTestEngine()
	p := createSSNPattern(t, e)
	ctx := context.Background()

	const workers = 8
	const perWorker = 5

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ft := pattern.FeedbackPositive
				if w%2 == 0 {
					ft = pattern.FeedbackNegative
				}
				_, err := e.RecordFeedback(ctx, FeedbackInput{
					PatternID:   p.ID,
					MatchedText: "123-45-6789",
					Type:        ft,
				})
				if err != nil {
					t.Errorf("RecordFeedback failed: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	got, err := e.GetPattern(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}

	want := workers * perWorker
	if got.FeedbackCount != want {
		t.Errorf("Expected %d feedback records counted, got %d", want, got.FeedbackCount)
	}
	if got.PositiveCount+got.NegativeCount != got.FeedbackCount {
		t.Errorf("Counter invariant violated: %d + %d != %d",
			got.PositiveCount, got.NegativeCount, got.FeedbackCount)
	}
}

func TestAccuracyIssues(t *testing.T) {
	e := newTestEngine()
	p := createSSNPattern(t, e)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := e.RecordFeedback(ctx, FeedbackInput{
			PatternID:   p.ID,
			MatchedText: "111-22-3333",
			Type:        pattern.FeedbackNegative,
		})
		if err != nil {
			t.Fatalf("RecordFeedback failed: %v", err)
		}
	}

	metrics, issues, err := e.Accuracy(ctx, p.ID)
	if err != nil {
		t.Fatalf("Accuracy failed: %v", err)
	}
	if metrics.Precision != 0 {
		t.Errorf("All-negative feedback should give precision 0, got %g", metrics.Precision)
	}
	if len(issues) != 1 || issues[0] != accuracy.IssueOverMatching {
		t.Errorf("Five negatives at precision 0 should flag over-matching, got %v", issues)
	}
	if len(metrics.CommonFalsePositives) != 1 || metrics.CommonFalsePositives[0].Count != 5 {
		t.Errorf("False positives should be ranked, got %+v", metrics.CommonFalsePositives)
	}
}

func TestSuggestAndApplyRefinements(t *testing.T) {
	e := newTestEngine()
	p := createSSNPattern(t, e)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.RecordFeedback(ctx, FeedbackInput{
			PatternID:   p.ID,
			MatchedText: "555-55-5555",
			Type:        pattern.FeedbackNegative,
		})
		if err != nil {
			t.Fatalf("RecordFeedback failed: %v", err)
		}
	}

	got, err := e.GetPattern(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}
	if !got.IsExcluded("555-55-5555") {
		// The automatic path already excluded it; Suggest must then skip it
		t.Fatal("Expected the automatic exclusion to fire first")
	}

	s, err := e.SuggestRefinements(ctx, p.ID)
	if err != nil {
		t.Fatalf("SuggestRefinements failed: %v", err)
	}
	if len(s.ExcludedExamples) != 0 {
		t.Errorf("Suggest must not re-propose committed exclusions, got %v", s.ExcludedExamples)
	}

	applied, err := e.ApplyRefinements(ctx, p.ID, s)
	if err != nil {
		t.Fatalf("ApplyRefinements failed: %v", err)
	}
	if applied.Expression != got.Expression {
		t.Errorf("An empty suggestion set must not change the expression")
	}

	t.Run("stale suggestions conflict", func(t *testing.T) {
		stale := *s
		stale.BaseExpression = `\b\d{5}\b`
		stale.ImprovedExpression = ""
		_, err := e.ApplyRefinements(ctx, p.ID, &stale)
		if !errors.Is(err, pattern.ErrConflict) {
			t.Errorf("Expected a conflict for stale suggestions, got %v", err)
		}
	})
}

func TestGetPatternNotFound(t *testing.T) {
	e := newTestEngine()

	_, err := e.GetPattern(context.Background(), "missing")
	if !errors.Is(err, pattern.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}

	_, _, err = e.Accuracy(context.Background(), "missing")
	if !errors.Is(err, pattern.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}
