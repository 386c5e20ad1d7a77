package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dataglass/pattern-sentry/internal/pattern"
)

// MemoryStore is an in-memory Store used for tests and single-node
// deployments without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	patterns map[string]*pattern.Pattern
	feedback map[string][]*pattern.FeedbackRecord // keyed by pattern ID, append order
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patterns: make(map[string]*pattern.Pattern),
		feedback: make(map[string][]*pattern.FeedbackRecord),
	}
}

// CreatePattern inserts a new pattern
func (m *MemoryStore) CreatePattern(ctx context.Context, p *pattern.Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.patterns[p.ID]; exists {
		return fmt.Errorf("pattern %s already exists", p.ID)
	}
	m.patterns[p.ID] = clonePattern(p)
	return nil
}

// FindPattern returns the pattern with the given identifier
func (m *MemoryStore) FindPattern(ctx context.Context, id string) (*pattern.Pattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.patterns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pattern.ErrNotFound, id)
	}
	return clonePattern(p), nil
}

// SavePattern persists the mutable fields of an existing pattern
func (m *MemoryStore) SavePattern(ctx context.Context, p *pattern.Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.patterns[p.ID]; !ok {
		return fmt.Errorf("%w: %s", pattern.ErrNotFound, p.ID)
	}
	m.patterns[p.ID] = clonePattern(p)
	return nil
}

// ListPatterns returns patterns ordered by creation time
func (m *MemoryStore) ListPatterns(ctx context.Context, activeOnly bool) ([]*pattern.Pattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	patterns := make([]*pattern.Pattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		if activeOnly && !p.Active {
			continue
		}
		patterns = append(patterns, clonePattern(p))
	}

	sort.Slice(patterns, func(i, j int) bool {
		if !patterns[i].CreatedAt.Equal(patterns[j].CreatedAt) {
			return patterns[i].CreatedAt.Before(patterns[j].CreatedAt)
		}
		return patterns[i].ID < patterns[j].ID
	})

	return patterns, nil
}

// SaveFeedback appends one feedback record
func (m *MemoryStore) SaveFeedback(ctx context.Context, rec *pattern.FeedbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.patterns[rec.PatternID]; !ok {
		return fmt.Errorf("%w: %s", pattern.ErrNotFound, rec.PatternID)
	}

	cloned := *rec
	m.feedback[rec.PatternID] = append(m.feedback[rec.PatternID], &cloned)
	return nil
}

// FindFeedback returns feedback records for a pattern, most recent first
func (m *MemoryStore) FindFeedback(ctx context.Context, patternID string, filter FeedbackFilter) ([]*pattern.FeedbackRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.feedback[patternID]
	matched := make([]*pattern.FeedbackRecord, 0, len(records))

	// Records are stored in append order; walk backwards for recency
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if !filterMatches(rec, filter) {
			continue
		}
		cloned := *rec
		matched = append(matched, &cloned)
		if filter.Limit > 0 && len(matched) >= filter.Limit {
			break
		}
	}

	return matched, nil
}

// CountFeedback returns the number of records matching the filter
func (m *MemoryStore) CountFeedback(ctx context.Context, patternID string, filter FeedbackFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, rec := range m.feedback[patternID] {
		if filterMatches(rec, filter) {
			count++
		}
	}
	return count, nil
}

// Close is a no-op for the in-memory store
func (m *MemoryStore) Close() error {
	return nil
}

func filterMatches(rec *pattern.FeedbackRecord, filter FeedbackFilter) bool {
	if filter.Type != "" && rec.Type != filter.Type {
		return false
	}
	if filter.MatchedText != "" && rec.MatchedText != filter.MatchedText {
		return false
	}
	return true
}

func clonePattern(p *pattern.Pattern) *pattern.Pattern {
	cloned := *p
	cloned.Examples = append([]string(nil), p.Examples...)
	cloned.AlternativeExpressions = append([]string(nil), p.AlternativeExpressions...)
	cloned.ExcludedExamples = append([]string(nil), p.ExcludedExamples...)
	if p.AccuracyMetrics != nil {
		metrics := *p.AccuracyMetrics
		metrics.CommonFalsePositives = append([]pattern.FalsePositive(nil), p.AccuracyMetrics.CommonFalsePositives...)
		cloned.AccuracyMetrics = &metrics
	}
	return &cloned
}
