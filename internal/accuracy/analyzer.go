// Package accuracy computes detection-quality metrics from feedback history.
package accuracy

import (
	"sort"
	"time"

	"github.com/dataglass/pattern-sentry/internal/pattern"
)

// IssueCode classifies a detected quality problem
type IssueCode string

const (
	// IssueOverMatching means the pattern produces too many false positives
	IssueOverMatching IssueCode = "over_matching"
	// IssueUnderMatching is reserved for a future scan-coverage signal.
	// The engine has no ground truth for missed matches yet.
	IssueUnderMatching IssueCode = "under_matching"
)

const (
	// precision below this flags over-matching
	overMatchingPrecision = 0.7
	topFalsePositives     = 5
)

// Analyzer derives accuracy metrics for a pattern. Recall cannot be measured
// without ground truth for missed matches, so it is held at a fixed assumed
// baseline rather than computed.
type Analyzer struct {
	// AssumedRecall is the recall proxy used in F1
	AssumedRecall float64
	// MinSampleSize is the minimum negative count before over-matching is
	// flagged, so tiny samples do not trigger issues
	MinSampleSize int
}

// NewAnalyzer creates an analyzer with the given recall proxy and sample floor
func NewAnalyzer(assumedRecall float64, minSampleSize int) *Analyzer {
	return &Analyzer{
		AssumedRecall: assumedRecall,
		MinSampleSize: minSampleSize,
	}
}

// Analyze computes metrics from the pattern's counters and its negative
// feedback records. Zero feedback yields zero-valued metrics, not an error.
func (a *Analyzer) Analyze(p *pattern.Pattern, negatives []*pattern.FeedbackRecord) (pattern.AccuracyMetrics, []IssueCode) {
	metrics := pattern.AccuracyMetrics{
		TotalFeedback:    p.FeedbackCount,
		PositiveFeedback: p.PositiveCount,
		NegativeFeedback: p.NegativeCount,
		Recall:           a.AssumedRecall,
		LastUpdated:      time.Now().UTC(),
	}

	if p.FeedbackCount > 0 {
		metrics.Precision = float64(p.PositiveCount) / float64(p.FeedbackCount)
	}

	if metrics.Precision > 0 && metrics.Recall > 0 {
		metrics.F1Score = 2 * metrics.Precision * metrics.Recall / (metrics.Precision + metrics.Recall)
	}

	metrics.CommonFalsePositives = rankFalsePositives(negatives, topFalsePositives)

	var issues []IssueCode
	if metrics.Precision < overMatchingPrecision && p.NegativeCount >= a.MinSampleSize {
		issues = append(issues, IssueOverMatching)
	}

	return metrics, issues
}

// rankFalsePositives groups negatively-judged texts by frequency and returns
// the top n, most frequent first. Ties break alphabetically for determinism.
func rankFalsePositives(negatives []*pattern.FeedbackRecord, n int) []pattern.FalsePositive {
	if len(negatives) == 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, rec := range negatives {
		counts[rec.MatchedText]++
	}

	ranked := make([]pattern.FalsePositive, 0, len(counts))
	for text, count := range counts {
		ranked = append(ranked, pattern.FalsePositive{Text: text, Count: count})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Text < ranked[j].Text
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
