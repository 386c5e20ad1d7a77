package importer

import (
	"strings"
	"time"
)

// DataRecord is a single labeled judgment from an input dataset: one matched
// text for one pattern label, judged positive (1) or negative (0).
type DataRecord struct {
	PatternLabel string `csv:"pattern_label" parquet:"pattern_label" json:"pattern_label"`
	Category     string `csv:"category" parquet:"category" json:"category"`
	Text         string `csv:"text" parquet:"text" json:"text"`
	Label        int    `csv:"label" parquet:"label" json:"label"`
}

// Positive reports whether the record is a positive judgment
func (r *DataRecord) Positive() bool {
	return r.Label == 1
}

// ProcessingResult represents the result of importing a dataset
type ProcessingResult struct {
	TotalRecords     int64         `json:"total_records"`
	PatternsCreated  int64         `json:"patterns_created"`
	FeedbackRecorded int64         `json:"feedback_recorded"`
	ProcessedFailed  int64         `json:"processed_failed"`
	Duration         time.Duration `json:"duration"`
	Errors           []string      `json:"errors,omitempty"`
}

// Config contains import pipeline configuration
type Config struct {
	BatchSize      int  `yaml:"batch_size" mapstructure:"batch_size"`           // 500
	WorkerCount    int  `yaml:"worker_count" mapstructure:"worker_count"`       // 4
	ValidateData   bool `yaml:"validate_data" mapstructure:"validate_data"`     // true
	ProgressReport int  `yaml:"progress_report" mapstructure:"progress_report"` // 1000
	DryRun         bool `yaml:"dry_run" mapstructure:"dry_run"`                 // false
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
	FormatUnknown FileFormat = "unknown"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return FormatCSV
	case strings.HasSuffix(lower, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(lower, ".json"), strings.HasSuffix(lower, ".jsonl"):
		return FormatJSON
	default:
		return FormatUnknown
	}
}
