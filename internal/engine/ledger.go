package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataglass/pattern-sentry/internal/events"
	"github.com/dataglass/pattern-sentry/internal/pattern"
	"github.com/dataglass/pattern-sentry/internal/store"
)

// FeedbackInput is one human judgment on one observed match
type FeedbackInput struct {
	PatternID   string                  `json:"pattern_id"`
	MatchedText string                  `json:"matched_text"`
	Type        pattern.FeedbackType    `json:"feedback_type"`
	UserID      string                  `json:"user_id"`
	SessionID   string                  `json:"session_id"`
	Context     pattern.FeedbackContext `json:"context,omitempty"`
}

// RecordFeedback appends a feedback record and, within the same per-pattern
// critical section: increments the pattern counters, recomputes the accuracy
// snapshot, and on negative feedback runs the auto-refinement check against
// the post-increment count. A caller observing a successful submission is
// guaranteed to see updated metrics on the next read.
func (e *Engine) RecordFeedback(ctx context.Context, input FeedbackInput) (*pattern.FeedbackRecord, error) {
	if input.PatternID == "" {
		return nil, fmt.Errorf("%w: pattern id is required", pattern.ErrInvalidInput)
	}
	if input.MatchedText == "" {
		return nil, fmt.Errorf("%w: matched text is required", pattern.ErrInvalidInput)
	}
	if input.Type != pattern.FeedbackPositive && input.Type != pattern.FeedbackNegative {
		return nil, fmt.Errorf("%w: feedback type must be positive or negative", pattern.ErrInvalidInput)
	}

	unlock := e.lockPattern(input.PatternID)
	defer unlock()

	p, err := e.store.FindPattern(ctx, input.PatternID)
	if err != nil {
		return nil, err
	}

	rec := &pattern.FeedbackRecord{
		ID:          uuid.NewString(),
		PatternID:   input.PatternID,
		MatchedText: input.MatchedText,
		Type:        input.Type,
		UserID:      input.UserID,
		SessionID:   input.SessionID,
		Context:     input.Context,
		CreatedAt:   time.Now().UTC(),
	}

	if err := e.store.SaveFeedback(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to append feedback record: %w", err)
	}

	p.FeedbackCount++
	if input.Type == pattern.FeedbackPositive {
		p.PositiveCount++
	} else {
		p.NegativeCount++
	}

	metrics, issues, err := e.analyze(ctx, p)
	if err != nil {
		return nil, err
	}
	p.AccuracyMetrics = &metrics

	refined := false
	excludedText := ""
	if input.Type == pattern.FeedbackNegative {
		negativeCount, err := e.store.CountFeedback(ctx, p.ID, store.FeedbackFilter{
			Type:        pattern.FeedbackNegative,
			MatchedText: input.MatchedText,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to count negative feedback: %w", err)
		}

		if e.refiner.AutoExclude(p, input.MatchedText, negativeCount) {
			refined = true
			excludedText = input.MatchedText
		}
		if e.refiner.RaiseThreshold(p, metrics.Precision) {
			refined = true
		}
	}

	p.UpdatedAt = time.Now().UTC()
	if err := e.store.SavePattern(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save pattern counters: %w", err)
	}

	if e.cache != nil {
		e.cache.Invalidate(ctx, p.ID)
		e.cache.Set(ctx, p.ID, snapshotOf(metrics, issues))
	}

	e.logger.Debug("Feedback recorded",
		zap.String("pattern_id", p.ID),
		zap.String("feedback_type", string(input.Type)),
		zap.Int("feedback_count", p.FeedbackCount),
		zap.Float64("precision", metrics.Precision),
		zap.Bool("refined", refined),
	)

	if e.hub != nil {
		e.hub.Broadcast(events.Event{
			Type:      events.EventTypeFeedback,
			Timestamp: time.Now().UTC(),
			Data: events.FeedbackEvent{
				PatternID:     p.ID,
				PatternLabel:  p.Label,
				FeedbackType:  input.Type,
				MatchedText:   input.MatchedText,
				FeedbackCount: p.FeedbackCount,
				Precision:     metrics.Precision,
			},
		})
		if refined {
			e.hub.Broadcast(events.Event{
				Type:      events.EventTypeRefinement,
				Timestamp: time.Now().UTC(),
				Data: events.RefinementEvent{
					PatternID:           p.ID,
					PatternLabel:        p.Label,
					Trigger:             "auto",
					ExcludedText:        excludedText,
					ExcludedCount:       len(p.ExcludedExamples),
					ConfidenceThreshold: p.ConfidenceThreshold,
				},
			})
		}
	}

	return rec, nil
}
