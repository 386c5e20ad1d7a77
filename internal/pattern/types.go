package pattern

import "time"

// Category classifies what kind of sensitive data a pattern detects
type Category string

const (
	CategoryPII         Category = "PII"
	CategoryFinancial   Category = "FINANCIAL"
	CategoryMedical     Category = "MEDICAL"
	CategoryCredentials Category = "CREDENTIALS"
	CategoryCustom      Category = "CUSTOM"
)

// ValidCategory reports whether c is one of the known categories
func ValidCategory(c Category) bool {
	switch c {
	case CategoryPII, CategoryFinancial, CategoryMedical, CategoryCredentials, CategoryCustom:
		return true
	}
	return false
}

// FeedbackType represents a human judgment on an observed match
type FeedbackType string

const (
	FeedbackPositive FeedbackType = "positive"
	FeedbackNegative FeedbackType = "negative"
)

// Pattern is a named, example-derived detector for sensitive or contextual text
type Pattern struct {
	ID         string   `db:"id" json:"id"`
	Label      string   `db:"label" json:"label"`
	Category   Category `db:"category" json:"category"`
	IsContextClue bool  `db:"is_context_clue" json:"is_context_clue"`

	Examples               []string `db:"examples" json:"examples"`
	Expression             string   `db:"expression" json:"expression"`
	AlternativeExpressions []string `db:"alternative_expressions" json:"alternative_expressions"`
	ExcludedExamples       []string `db:"excluded_examples" json:"excluded_examples"`

	ConfidenceThreshold float64 `db:"confidence_threshold" json:"confidence_threshold"`
	AutoRefineThreshold int     `db:"auto_refine_threshold" json:"auto_refine_threshold"`

	FeedbackCount int `db:"feedback_count" json:"feedback_count"`
	PositiveCount int `db:"positive_count" json:"positive_count"`
	NegativeCount int `db:"negative_count" json:"negative_count"`

	AccuracyMetrics *AccuracyMetrics `db:"-" json:"accuracy_metrics,omitempty"`

	Active        bool       `db:"active" json:"active"`
	LastRefinedAt *time.Time `db:"last_refined_at" json:"last_refined_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// IsExcluded reports whether text is a confirmed false positive.
// Comparison is exact and case-sensitive.
func (p *Pattern) IsExcluded(text string) bool {
	for _, excluded := range p.ExcludedExamples {
		if excluded == text {
			return true
		}
	}
	return false
}

// AddExclusion adds text to the excluded examples as a set-insert.
// It returns true if the set changed.
func (p *Pattern) AddExclusion(text string) bool {
	if p.IsExcluded(text) {
		return false
	}
	p.ExcludedExamples = append(p.ExcludedExamples, text)
	return true
}

// FeedbackContext carries structured metadata about where a match was judged
type FeedbackContext struct {
	FieldName       string `json:"field_name,omitempty"`
	RecordIndex     int    `json:"record_index,omitempty"`
	DetectionMethod string `json:"detection_method,omitempty"`
}

// FeedbackRecord is one human judgment on one observed match. Append-only.
type FeedbackRecord struct {
	ID          string          `db:"id" json:"id"`
	PatternID   string          `db:"pattern_id" json:"pattern_id"`
	MatchedText string          `db:"matched_text" json:"matched_text"`
	Type        FeedbackType    `db:"feedback_type" json:"feedback_type"`
	UserID      string          `db:"user_id" json:"user_id"`
	SessionID   string          `db:"session_id" json:"session_id"`
	Context     FeedbackContext `db:"-" json:"context,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// FalsePositive is a repeated negatively-judged match, ranked by frequency
type FalsePositive struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// AccuracyMetrics is the derived quality snapshot for a pattern
type AccuracyMetrics struct {
	Precision            float64         `json:"precision"`
	Recall               float64         `json:"recall"`
	F1Score              float64         `json:"f1_score"`
	TotalFeedback        int             `json:"total_feedback"`
	PositiveFeedback     int             `json:"positive_feedback"`
	NegativeFeedback     int             `json:"negative_feedback"`
	CommonFalsePositives []FalsePositive `json:"common_false_positives,omitempty"`
	LastUpdated          time.Time       `json:"last_updated"`
}

// Match is a single occurrence found during a scan. Transient, never persisted.
type Match struct {
	PatternID     string   `json:"pattern_id"`
	PatternLabel  string   `json:"pattern_label"`
	MatchedText   string   `json:"matched_text"`
	StartOffset   int      `json:"start_offset"`
	EndOffset     int      `json:"end_offset"`
	IsContextClue bool     `json:"is_context_clue"`
	Category      Category `json:"category"`
	Confidence    float64  `json:"confidence"`
}
