package accuracy

import (
	"fmt"
	"math"
	"testing"

	"github.com/dataglass/pattern-sentry/internal/pattern"
)

func negativeRecords(texts ...string) []*pattern.FeedbackRecord {
	records := make([]*pattern.FeedbackRecord, 0, len(texts))
	for _, text := range texts {
		records = append(records, &pattern.FeedbackRecord{
			Type:        pattern.FeedbackNegative,
			MatchedText: text,
		})
	}
	return records
}

func TestAnalyzePrecision(t *testing.T) {
	a := NewAnalyzer(0.8, 5)

	p := &pattern.Pattern{
		FeedbackCount: 5,
		PositiveCount: 2,
		NegativeCount: 3,
	}
	negatives := negativeRecords("000-00-0000", "000-00-0000", "111-11-1111")

	metrics, issues := a.Analyze(p, negatives)

	if metrics.TotalFeedback != 5 || metrics.PositiveFeedback != 2 || metrics.NegativeFeedback != 3 {
		t.Errorf("Counters should pass through unchanged, got %+v", metrics)
	}
	if math.Abs(metrics.Precision-0.4) > 1e-9 {
		t.Errorf("Expected precision 0.4, got %g", metrics.Precision)
	}
	if metrics.Recall != 0.8 {
		t.Errorf("Recall should hold the assumed baseline, got %g", metrics.Recall)
	}

	wantF1 := 2 * 0.4 * 0.8 / (0.4 + 0.8)
	if math.Abs(metrics.F1Score-wantF1) > 1e-9 {
		t.Errorf("Expected F1 %g, got %g", wantF1, metrics.F1Score)
	}

	if len(issues) != 0 {
		t.Errorf("Three negatives are below the sample floor, got issues %v", issues)
	}
}

func TestAnalyzeZeroFeedback(t *testing.T) {
	a := NewAnalyzer(0.8, 5)

	metrics, issues := a.Analyze(&pattern.Pattern{}, nil)

	if metrics.Precision != 0 {
		t.Errorf("Zero feedback should give precision 0, got %g", metrics.Precision)
	}
	if metrics.F1Score != 0 || math.IsNaN(metrics.F1Score) {
		t.Errorf("Zero feedback should give F1 0, got %g", metrics.F1Score)
	}
	if len(issues) != 0 {
		t.Errorf("Zero feedback should not raise issues, got %v", issues)
	}
}

func TestAnalyzeOverMatching(t *testing.T) {
	a := NewAnalyzer(0.8, 5)

	t.Run("flagged at the sample floor", func(t *testing.T) {
		p := &pattern.Pattern{
			FeedbackCount: 6,
			PositiveCount: 1,
			NegativeCount: 5,
		}
		_, issues := a.Analyze(p, nil)
		if len(issues) != 1 || issues[0] != IssueOverMatching {
			t.Errorf("Expected over_matching, got %v", issues)
		}
	})

	t.Run("not flagged below the sample floor", func(t *testing.T) {
		p := &pattern.Pattern{
			FeedbackCount: 4,
			PositiveCount: 0,
			NegativeCount: 4,
		}
		_, issues := a.Analyze(p, nil)
		if len(issues) != 0 {
			t.Errorf("Four negatives are below the floor of five, got %v", issues)
		}
	})

	t.Run("not flagged at healthy precision", func(t *testing.T) {
		p := &pattern.Pattern{
			FeedbackCount: 20,
			PositiveCount: 15,
			NegativeCount: 5,
		}
		_, issues := a.Analyze(p, nil)
		if len(issues) != 0 {
			t.Errorf("Precision 0.75 is above the over-matching cutoff, got %v", issues)
		}
	})
}

func TestRankFalsePositives(t *testing.T) {
	a := NewAnalyzer(0.8, 5)

	negatives := negativeRecords(
		"alpha", "alpha", "alpha",
		"beta", "beta",
		"gamma", "gamma",
		"delta",
	)
	// Six distinct texts so one falls off the top-five list
	for i := 0; i < 4; i++ {
		negatives = append(negatives, negativeRecords(fmt.Sprintf("bulk-%d", i))...)
	}

	p := &pattern.Pattern{FeedbackCount: 12, NegativeCount: 12}
	metrics, _ := a.Analyze(p, negatives)

	if len(metrics.CommonFalsePositives) != 5 {
		t.Fatalf("Expected the top five false positives, got %d", len(metrics.CommonFalsePositives))
	}

	top := metrics.CommonFalsePositives
	if top[0].Text != "alpha" || top[0].Count != 3 {
		t.Errorf("Most frequent text should rank first, got %+v", top[0])
	}
	if top[1].Text != "beta" || top[2].Text != "gamma" {
		t.Errorf("Ties should break alphabetically, got %q then %q", top[1].Text, top[2].Text)
	}
	for i := 1; i < len(top); i++ {
		if top[i].Count > top[i-1].Count {
			t.Errorf("Ranking must be non-increasing, got %+v", top)
		}
	}
}
