package scanner

import (
	"testing"

	"go.uber.org/zap"

	"github.com/dataglass/pattern-sentry/internal/pattern"
)

func ssnView() pattern.View {
	return pattern.View{
		PatternID:           "pat-ssn",
		Label:               "ssn",
		Category:            pattern.CategoryPII,
		Expression:          `\b\d{3}-\d{2}-\d{4}\b`,
		ConfidenceThreshold: 0.6,
	}
}

func TestScanSingleMatch(t *testing.T) {
	s := New(zap.NewNop())

	result := s.Scan("SSN: 123-45-6789", []pattern.View{ssnView()})

	if len(result.Warnings) != 0 {
		t.Fatalf("Unexpected warnings: %v", result.Warnings)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("Expected exactly one match, got %d", len(result.Matches))
	}

	m := result.Matches[0]
	if m.MatchedText != "123-45-6789" {
		t.Errorf("Expected matched text 123-45-6789, got %q", m.MatchedText)
	}
	if m.StartOffset != 5 || m.EndOffset != 16 {
		t.Errorf("Expected span [5,16), got [%d,%d)", m.StartOffset, m.EndOffset)
	}
	if m.PatternID != "pat-ssn" || m.PatternLabel != "ssn" {
		t.Errorf("Match should carry pattern identity, got %+v", m)
	}
	if m.Confidence != 1.0 {
		t.Errorf("Primary expression matches carry confidence 1.0, got %g", m.Confidence)
	}
}

func TestScanEmptyText(t *testing.T) {
	s := New(zap.NewNop())

	result := s.Scan("", []pattern.View{ssnView()})
	if len(result.Matches) != 0 || len(result.Warnings) != 0 {
		t.Errorf("Empty text should produce no matches and no warnings, got %+v", result)
	}
}

func TestScanExclusions(t *testing.T) {
	s := New(zap.NewNop())

	view := ssnView()
	view.ExcludedExamples = []string{"000-00-0000"}

	result := s.Scan("placeholder 000-00-0000 real 123-45-6789", []pattern.View{view})

	if len(result.Matches) != 1 {
		t.Fatalf("Expected the excluded occurrence to be dropped, got %d matches", len(result.Matches))
	}
	if result.Matches[0].MatchedText != "123-45-6789" {
		t.Errorf("Wrong occurrence survived: %q", result.Matches[0].MatchedText)
	}
}

func TestScanOrdering(t *testing.T) {
	s := New(zap.NewNop())

	views := []pattern.View{
		{
			PatternID:  "pat-phone",
			Label:      "phone",
			Category:   pattern.CategoryPII,
			Expression: `\b\d{3}-\d{3}-\d{4}\b`,
		},
		ssnView(),
	}

	result := s.Scan("call 555-123-4567 or file 123-45-6789", views)

	if len(result.Matches) != 2 {
		t.Fatalf("Expected two matches, got %d", len(result.Matches))
	}
	if result.Matches[0].PatternLabel != "phone" || result.Matches[1].PatternLabel != "ssn" {
		t.Errorf("Matches should be ordered by start offset regardless of view order, got %s then %s",
			result.Matches[0].PatternLabel, result.Matches[1].PatternLabel)
	}
	if result.Matches[0].StartOffset >= result.Matches[1].StartOffset {
		t.Errorf("Offsets out of order: %d then %d",
			result.Matches[0].StartOffset, result.Matches[1].StartOffset)
	}
}

func TestScanAlternates(t *testing.T) {
	s := New(zap.NewNop())

	view := ssnView()
	view.AlternativeExpressions = []string{`\b\d{9}\b`}

	result := s.Scan("primary 123-45-6789 alternate 123456789", []pattern.View{view})

	if len(result.Matches) != 2 {
		t.Fatalf("Expected matches from primary and alternate, got %d", len(result.Matches))
	}
	if result.Matches[0].Confidence != 1.0 {
		t.Errorf("Primary occurrence should carry confidence 1.0, got %g", result.Matches[0].Confidence)
	}
	if result.Matches[1].Confidence != 0.85 {
		t.Errorf("Alternate occurrence should carry reduced confidence, got %g", result.Matches[1].Confidence)
	}
}

func TestScanConfidenceThresholdFiltersAlternates(t *testing.T) {
	s := New(zap.NewNop())

	view := ssnView()
	view.AlternativeExpressions = []string{`\b\d{9}\b`}
	view.ConfidenceThreshold = 0.9

	result := s.Scan("primary 123-45-6789 alternate 123456789", []pattern.View{view})

	if len(result.Matches) != 1 {
		t.Fatalf("Raised threshold should suppress alternate matches, got %d", len(result.Matches))
	}
	if result.Matches[0].MatchedText != "123-45-6789" {
		t.Errorf("Only the primary occurrence should survive, got %q", result.Matches[0].MatchedText)
	}
}

func TestScanDeduplicatesSpans(t *testing.T) {
	s := New(zap.NewNop())

	view := ssnView()
	// Alternate that finds the exact same span as the primary
	view.AlternativeExpressions = []string{`\b\d{3}-\d{2}-\d{4}\b`}

	result := s.Scan("SSN: 123-45-6789", []pattern.View{view})

	if len(result.Matches) != 1 {
		t.Errorf("Identical spans from the same pattern must be deduplicated, got %d matches", len(result.Matches))
	}
}

func TestScanContextClue(t *testing.T) {
	s := New(zap.NewNop())

	view := pattern.View{
		PatternID:     "pat-clue",
		Label:         "ssn_context",
		Category:      pattern.CategoryPII,
		Expression:    `(?i)\bsocial security\b`,
		IsContextClue: true,
	}

	result := s.Scan("Social Security number follows", []pattern.View{view})

	if len(result.Matches) != 1 {
		t.Fatalf("Expected one context clue match, got %d", len(result.Matches))
	}
	if !result.Matches[0].IsContextClue {
		t.Errorf("Context clue patterns must flag their matches")
	}
}

func TestScanInvalidExpression(t *testing.T) {
	s := New(zap.NewNop())

	broken := pattern.View{
		PatternID:  "pat-broken",
		Label:      "broken",
		Expression: `([0-9`,
	}

	result := s.Scan("SSN: 123-45-6789", []pattern.View{broken, ssnView()})

	if len(result.Warnings) != 1 {
		t.Fatalf("Expected one compile warning, got %d", len(result.Warnings))
	}
	if result.Warnings[0].PatternID != "pat-broken" {
		t.Errorf("Warning should identify the broken pattern, got %q", result.Warnings[0].PatternID)
	}
	if len(result.Matches) != 1 {
		t.Errorf("A broken pattern must not block the others, got %d matches", len(result.Matches))
	}
}

func TestScanBrokenAlternateIsSkipped(t *testing.T) {
	s := New(zap.NewNop())

	view := ssnView()
	view.AlternativeExpressions = []string{`([0-9`}

	result := s.Scan("SSN: 123-45-6789", []pattern.View{view})

	if len(result.Warnings) != 0 {
		t.Errorf("A broken alternate should be skipped silently, got warnings %v", result.Warnings)
	}
	if len(result.Matches) != 1 {
		t.Errorf("Primary expression should still match, got %d matches", len(result.Matches))
	}
}
