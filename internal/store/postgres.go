package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/dataglass/pattern-sentry/internal/pattern"
)

// PostgresStore persists patterns and feedback in PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// patternRow maps the patterns table. Array columns use pq array types.
type patternRow struct {
	ID                     string         `db:"id"`
	Label                  string         `db:"label"`
	Category               string         `db:"category"`
	IsContextClue          bool           `db:"is_context_clue"`
	Examples               pq.StringArray `db:"examples"`
	Expression             string         `db:"expression"`
	AlternativeExpressions pq.StringArray `db:"alternative_expressions"`
	ExcludedExamples       pq.StringArray `db:"excluded_examples"`
	ConfidenceThreshold    float64        `db:"confidence_threshold"`
	AutoRefineThreshold    int            `db:"auto_refine_threshold"`
	FeedbackCount          int            `db:"feedback_count"`
	PositiveCount          int            `db:"positive_count"`
	NegativeCount          int            `db:"negative_count"`
	Active                 bool           `db:"active"`
	LastRefinedAt          *time.Time     `db:"last_refined_at"`
	CreatedAt              time.Time      `db:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at"`
}

// NewPostgresStore connects to PostgreSQL and verifies the schema is reachable
func NewPostgresStore(config *Config, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &PostgresStore{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Pattern store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// initialize checks database connection and ensures the schema exists
func (s *PostgresStore) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS patterns (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			category TEXT NOT NULL,
			is_context_clue BOOLEAN NOT NULL DEFAULT FALSE,
			examples TEXT[] NOT NULL DEFAULT '{}',
			expression TEXT NOT NULL,
			alternative_expressions TEXT[] NOT NULL DEFAULT '{}',
			excluded_examples TEXT[] NOT NULL DEFAULT '{}',
			confidence_threshold DOUBLE PRECISION NOT NULL,
			auto_refine_threshold INTEGER NOT NULL,
			feedback_count INTEGER NOT NULL DEFAULT 0,
			positive_count INTEGER NOT NULL DEFAULT 0,
			negative_count INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			last_refined_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS feedback_records (
			id TEXT PRIMARY KEY,
			pattern_id TEXT NOT NULL REFERENCES patterns(id),
			matched_text TEXT NOT NULL,
			feedback_type TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_pattern_text
			ON feedback_records (pattern_id, matched_text, feedback_type)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema setup failed: %w", err)
		}
	}

	return nil
}

// CreatePattern inserts a new pattern
func (s *PostgresStore) CreatePattern(ctx context.Context, p *pattern.Pattern) error {
	query := `
		INSERT INTO patterns (
			id, label, category, is_context_clue, examples, expression,
			alternative_expressions, excluded_examples, confidence_threshold,
			auto_refine_threshold, feedback_count, positive_count,
			negative_count, active, last_refined_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Label, string(p.Category), p.IsContextClue,
		pq.StringArray(p.Examples), p.Expression,
		pq.StringArray(p.AlternativeExpressions), pq.StringArray(p.ExcludedExamples),
		p.ConfidenceThreshold, p.AutoRefineThreshold,
		p.FeedbackCount, p.PositiveCount, p.NegativeCount,
		p.Active, p.LastRefinedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("Failed to insert pattern",
			zap.Error(err),
			zap.String("pattern_id", p.ID),
			zap.String("label", p.Label))
		return fmt.Errorf("failed to insert pattern: %w", err)
	}

	s.logger.Debug("Pattern inserted", zap.String("pattern_id", p.ID))
	return nil
}

// FindPattern returns the pattern with the given identifier
func (s *PostgresStore) FindPattern(ctx context.Context, id string) (*pattern.Pattern, error) {
	var row patternRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM patterns WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", pattern.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pattern: %w", err)
	}
	return rowToPattern(&row), nil
}

// SavePattern persists the mutable fields of an existing pattern
func (s *PostgresStore) SavePattern(ctx context.Context, p *pattern.Pattern) error {
	query := `
		UPDATE patterns SET
			label = $2, category = $3, is_context_clue = $4, examples = $5,
			expression = $6, alternative_expressions = $7,
			excluded_examples = $8, confidence_threshold = $9,
			auto_refine_threshold = $10, feedback_count = $11,
			positive_count = $12, negative_count = $13, active = $14,
			last_refined_at = $15, updated_at = $16
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		p.ID, p.Label, string(p.Category), p.IsContextClue,
		pq.StringArray(p.Examples), p.Expression,
		pq.StringArray(p.AlternativeExpressions), pq.StringArray(p.ExcludedExamples),
		p.ConfidenceThreshold, p.AutoRefineThreshold,
		p.FeedbackCount, p.PositiveCount, p.NegativeCount,
		p.Active, p.LastRefinedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save pattern: %w", err)
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", pattern.ErrNotFound, p.ID)
	}
	return nil
}

// ListPatterns returns patterns ordered by creation time
func (s *PostgresStore) ListPatterns(ctx context.Context, activeOnly bool) ([]*pattern.Pattern, error) {
	query := `SELECT * FROM patterns ORDER BY created_at, id`
	if activeOnly {
		query = `SELECT * FROM patterns WHERE active ORDER BY created_at, id`
	}

	var rows []patternRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}

	patterns := make([]*pattern.Pattern, 0, len(rows))
	for i := range rows {
		patterns = append(patterns, rowToPattern(&rows[i]))
	}
	return patterns, nil
}

// SaveFeedback appends one feedback record
func (s *PostgresStore) SaveFeedback(ctx context.Context, rec *pattern.FeedbackRecord) error {
	query := `
		INSERT INTO feedback_records (
			id, pattern_id, matched_text, feedback_type, user_id, session_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.PatternID, rec.MatchedText, string(rec.Type),
		rec.UserID, rec.SessionID, rec.CreatedAt,
	)
	if err != nil {
		s.logger.Error("Failed to insert feedback record",
			zap.Error(err),
			zap.String("pattern_id", rec.PatternID))
		return fmt.Errorf("failed to insert feedback record: %w", err)
	}
	return nil
}

// FindFeedback returns feedback records for a pattern, most recent first
func (s *PostgresStore) FindFeedback(ctx context.Context, patternID string, filter FeedbackFilter) ([]*pattern.FeedbackRecord, error) {
	query := `
		SELECT id, pattern_id, matched_text, feedback_type, user_id, session_id, created_at
		FROM feedback_records
		WHERE pattern_id = $1`
	args := []interface{}{patternID}
	argIndex := 2

	if filter.Type != "" {
		query += fmt.Sprintf(" AND feedback_type = $%d", argIndex)
		args = append(args, string(filter.Type))
		argIndex++
	}
	if filter.MatchedText != "" {
		query += fmt.Sprintf(" AND matched_text = $%d", argIndex)
		args = append(args, filter.MatchedText)
		argIndex++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var records []*pattern.FeedbackRecord
	for rows.Next() {
		var rec pattern.FeedbackRecord
		var feedbackType string
		if err := rows.Scan(&rec.ID, &rec.PatternID, &rec.MatchedText,
			&feedbackType, &rec.UserID, &rec.SessionID, &rec.CreatedAt); err != nil {
			s.logger.Error("Failed to scan feedback record", zap.Error(err))
			continue
		}
		rec.Type = pattern.FeedbackType(feedbackType)
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// CountFeedback returns the number of records matching the filter
func (s *PostgresStore) CountFeedback(ctx context.Context, patternID string, filter FeedbackFilter) (int, error) {
	query := `SELECT COUNT(*) FROM feedback_records WHERE pattern_id = $1`
	args := []interface{}{patternID}
	argIndex := 2

	if filter.Type != "" {
		query += fmt.Sprintf(" AND feedback_type = $%d", argIndex)
		args = append(args, string(filter.Type))
		argIndex++
	}
	if filter.MatchedText != "" {
		query += fmt.Sprintf(" AND matched_text = $%d", argIndex)
		args = append(args, filter.MatchedText)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func rowToPattern(row *patternRow) *pattern.Pattern {
	return &pattern.Pattern{
		ID:                     row.ID,
		Label:                  row.Label,
		Category:               pattern.Category(row.Category),
		IsContextClue:          row.IsContextClue,
		Examples:               []string(row.Examples),
		Expression:             row.Expression,
		AlternativeExpressions: []string(row.AlternativeExpressions),
		ExcludedExamples:       []string(row.ExcludedExamples),
		ConfidenceThreshold:    row.ConfidenceThreshold,
		AutoRefineThreshold:    row.AutoRefineThreshold,
		FeedbackCount:          row.FeedbackCount,
		PositiveCount:          row.PositiveCount,
		NegativeCount:          row.NegativeCount,
		Active:                 row.Active,
		LastRefinedAt:          row.LastRefinedAt,
		CreatedAt:              row.CreatedAt,
		UpdatedAt:              row.UpdatedAt,
	}
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
