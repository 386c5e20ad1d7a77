// Package importer replays labeled detection datasets into the engine:
// positive examples seed new patterns, and every record becomes a feedback
// submission so imported patterns start with real accuracy history.
package importer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/dataglass/pattern-sentry/internal/engine"
	"github.com/dataglass/pattern-sentry/internal/pattern"
)

// Pipeline imports labeled datasets through the engine
type Pipeline struct {
	engine *engine.Engine
	config *Config
	logger *zap.Logger

	// patternIDs maps dataset labels to created/known pattern identifiers
	patternIDs map[string]string
}

// NewPipeline creates an import pipeline
func NewPipeline(eng *engine.Engine, config *Config, logger *zap.Logger) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.ProgressReport <= 0 {
		config.ProgressReport = 1000
	}
	return &Pipeline{
		engine:     eng,
		config:     config,
		logger:     logger,
		patternIDs: make(map[string]string),
	}
}

// ProcessFile imports a dataset file (CSV, Parquet, or JSON lines)
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string) (*ProcessingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	p.logger.Info("Starting dataset import",
		zap.String("file", filePath),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Bool("dry_run", p.config.DryRun))

	start := time.Now()
	result := &ProcessingResult{}

	format := DetectFileFormat(filePath)
	p.logger.Info("Detected file format", zap.String("format", string(format)))

	// Existing patterns are matched by label so re-imports extend history
	// instead of duplicating detectors
	if err := p.loadExistingPatterns(ctx); err != nil {
		return result, err
	}

	var err error
	switch format {
	case FormatCSV:
		err = p.processCSV(ctx, filePath, result)
	case FormatParquet:
		err = p.processParquet(ctx, filePath, result)
	case FormatJSON:
		err = p.processJSON(ctx, filePath, result)
	default:
		return result, fmt.Errorf("unsupported file format for %s", filePath)
	}
	if err != nil {
		return result, fmt.Errorf("%s processing failed: %w", format, err)
	}

	result.Duration = time.Since(start)

	p.logger.Info("Dataset import completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("patterns_created", result.PatternsCreated),
		zap.Int64("feedback_recorded", result.FeedbackRecorded),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (p *Pipeline) loadExistingPatterns(ctx context.Context) error {
	patterns, err := p.engine.ListPatterns(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to list existing patterns: %w", err)
	}
	for _, existing := range patterns {
		p.patternIDs[existing.Label] = existing.ID
	}
	return nil
}

// processCSV imports CSV files with a pattern_label,category,text,label header
func (p *Pipeline) processCSV(ctx context.Context, filePath string, result *ProcessingResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 4

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	p.logger.Info("CSV header detected", zap.Strings("columns", header))

	return p.processBatches(ctx, func() ([]*DataRecord, error) {
		var batch []*DataRecord

		for len(batch) < p.config.BatchSize {
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read CSV record", zap.Error(err))
				continue
			}
			if len(record) != 4 {
				p.logger.Warn("Invalid CSV record length", zap.Int("length", len(record)))
				continue
			}

			label := 0
			if record[3] == "1" || strings.EqualFold(record[3], "true") {
				label = 1
			}

			dataRecord := &DataRecord{
				PatternLabel: strings.TrimSpace(record[0]),
				Category:     strings.TrimSpace(record[1]),
				Text:         strings.TrimSpace(record[2]),
				Label:        label,
			}

			if p.validateRecord(dataRecord) {
				batch = append(batch, dataRecord)
			}
		}

		return batch, nil
	}, result)
}

// processParquet imports Parquet files
func (p *Pipeline) processParquet(ctx context.Context, filePath string, result *ProcessingResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	return p.processBatches(ctx, func() ([]*DataRecord, error) {
		var batch []*DataRecord

		for len(batch) < p.config.BatchSize {
			var record DataRecord
			err := reader.Read(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read Parquet record", zap.Error(err))
				continue
			}

			if p.validateRecord(&record) {
				batch = append(batch, &record)
			}
		}

		return batch, nil
	}, result)
}

// processJSON imports JSON files (one JSON object per line)
func (p *Pipeline) processJSON(ctx context.Context, filePath string, result *ProcessingResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	return p.processBatches(ctx, func() ([]*DataRecord, error) {
		var batch []*DataRecord

		for len(batch) < p.config.BatchSize {
			var record DataRecord
			err := decoder.Decode(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read JSON record", zap.Error(err))
				continue
			}

			if p.validateRecord(&record) {
				batch = append(batch, &record)
			}
		}

		return batch, nil
	}, result)
}

// processBatches drains the reader function batch by batch
func (p *Pipeline) processBatches(ctx context.Context, readBatch func() ([]*DataRecord, error), result *ProcessingResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		if err := p.processBatch(ctx, batch, result); err != nil {
			p.logger.Error("Batch processing failed", zap.Error(err))
			result.ProcessedFailed += int64(len(batch))
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		result.TotalRecords += int64(len(batch))

		if result.TotalRecords%int64(p.config.ProgressReport) == 0 {
			p.logger.Info("Import progress",
				zap.Int64("total_records", result.TotalRecords),
				zap.Int64("patterns_created", result.PatternsCreated),
				zap.Int64("feedback_recorded", result.FeedbackRecorded))
		}
	}

	return nil
}

// processBatch creates patterns for unseen labels from the batch's positive
// examples, then replays every record as feedback
func (p *Pipeline) processBatch(ctx context.Context, batch []*DataRecord, result *ProcessingResult) error {
	if p.config.DryRun {
		return nil
	}

	// Group positive texts by unseen label; they become the pattern examples
	examplesByLabel := make(map[string][]string)
	categoryByLabel := make(map[string]string)
	for _, record := range batch {
		if _, known := p.patternIDs[record.PatternLabel]; known {
			continue
		}
		if record.Positive() {
			examplesByLabel[record.PatternLabel] = append(examplesByLabel[record.PatternLabel], record.Text)
			categoryByLabel[record.PatternLabel] = record.Category
		}
	}

	for label, examples := range examplesByLabel {
		category := pattern.Category(categoryByLabel[label])
		if !pattern.ValidCategory(category) {
			category = pattern.CategoryCustom
		}

		created, err := p.engine.CreatePattern(ctx, engine.CreatePatternInput{
			Label:    label,
			Category: category,
			Examples: examples,
		})
		if err != nil {
			p.logger.Warn("Failed to create pattern from dataset",
				zap.String("label", label), zap.Error(err))
			continue
		}

		p.patternIDs[label] = created.ID
		result.PatternsCreated++
	}

	for _, record := range batch {
		patternID, known := p.patternIDs[record.PatternLabel]
		if !known {
			// Only negative judgments seen so far; there is no example to
			// derive an expression from yet
			result.ProcessedFailed++
			continue
		}

		feedbackType := pattern.FeedbackNegative
		if record.Positive() {
			feedbackType = pattern.FeedbackPositive
		}

		_, err := p.engine.RecordFeedback(ctx, engine.FeedbackInput{
			PatternID:   patternID,
			MatchedText: record.Text,
			Type:        feedbackType,
			UserID:      "importer",
			SessionID:   "dataset-import",
			Context: pattern.FeedbackContext{
				DetectionMethod: "dataset_import",
			},
		})
		if err != nil {
			p.logger.Warn("Failed to record imported feedback",
				zap.String("pattern_label", record.PatternLabel), zap.Error(err))
			result.ProcessedFailed++
			continue
		}
		result.FeedbackRecorded++
	}

	return nil
}

// validateRecord checks a record is usable before it enters a batch
func (p *Pipeline) validateRecord(record *DataRecord) bool {
	if !p.config.ValidateData {
		return true
	}
	if record.PatternLabel == "" || record.Text == "" {
		return false
	}
	if record.Label != 0 && record.Label != 1 {
		return false
	}
	return true
}
