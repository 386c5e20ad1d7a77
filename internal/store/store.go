// Package store persists patterns and their append-only feedback history.
package store

import (
	"context"

	"github.com/dataglass/pattern-sentry/internal/pattern"
)

// FeedbackFilter narrows feedback queries. A zero filter returns everything.
type FeedbackFilter struct {
	// Type restricts records to one feedback type when non-empty
	Type pattern.FeedbackType
	// MatchedText restricts records to one judged text when non-empty
	MatchedText string
	// Limit caps the number of returned records, most recent first, when > 0
	Limit int
}

// Store is the persistence collaborator consumed by the engine. All
// implementations provide per-pattern read-your-writes consistency: a
// successful SavePattern or SaveFeedback is visible to the next read.
type Store interface {
	// CreatePattern inserts a new pattern
	CreatePattern(ctx context.Context, p *pattern.Pattern) error

	// FindPattern returns the pattern with the given identifier, or
	// pattern.ErrNotFound
	FindPattern(ctx context.Context, id string) (*pattern.Pattern, error)

	// SavePattern persists the mutable fields of an existing pattern
	SavePattern(ctx context.Context, p *pattern.Pattern) error

	// ListPatterns returns patterns, optionally only active ones,
	// ordered by creation time
	ListPatterns(ctx context.Context, activeOnly bool) ([]*pattern.Pattern, error)

	// SaveFeedback appends one feedback record. Records are never mutated
	// or deleted.
	SaveFeedback(ctx context.Context, rec *pattern.FeedbackRecord) error

	// FindFeedback returns feedback records for a pattern, most recent
	// first, narrowed by the filter
	FindFeedback(ctx context.Context, patternID string, filter FeedbackFilter) ([]*pattern.FeedbackRecord, error)

	// CountFeedback returns the number of records matching the filter
	// for a pattern
	CountFeedback(ctx context.Context, patternID string, filter FeedbackFilter) (int, error)

	// Close releases the store's resources
	Close() error
}
