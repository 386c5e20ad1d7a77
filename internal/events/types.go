package events

import (
	"time"

	"github.com/dataglass/pattern-sentry/internal/pattern"
)

// EventType represents the type of a broadcast event
type EventType string

const (
	// EventTypeScan is emitted after a document scan completes
	EventTypeScan EventType = "scan_completed"
	// EventTypeFeedback is emitted after a feedback record is committed
	EventTypeFeedback EventType = "feedback_recorded"
	// EventTypeRefinement is emitted when a pattern is refined, automatically
	// or via an applied suggestion set
	EventTypeRefinement EventType = "pattern_refined"
	// EventTypeConnection represents client connect/disconnect events
	EventTypeConnection EventType = "connection"
)

// Event is a single broadcast payload sent to dashboard clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// ScanEvent summarizes a completed document scan
type ScanEvent struct {
	DocumentLength int    `json:"document_length"`
	PatternsTried  int    `json:"patterns_tried"`
	TotalMatches   int    `json:"total_matches"`
	ContextClues   int    `json:"context_clues"`
	Warnings       int    `json:"warnings"`
	ProcessingMS   float64 `json:"processing_ms"`
}

// FeedbackEvent reports a committed feedback record and the updated counters
type FeedbackEvent struct {
	PatternID     string               `json:"pattern_id"`
	PatternLabel  string               `json:"pattern_label"`
	FeedbackType  pattern.FeedbackType `json:"feedback_type"`
	MatchedText   string               `json:"matched_text"`
	FeedbackCount int                  `json:"feedback_count"`
	Precision     float64              `json:"precision"`
}

// RefinementEvent reports a pattern refinement
type RefinementEvent struct {
	PatternID           string  `json:"pattern_id"`
	PatternLabel        string  `json:"pattern_label"`
	Trigger             string  `json:"trigger"` // "auto" or "applied"
	ExcludedText        string  `json:"excluded_text,omitempty"`
	ExcludedCount       int     `json:"excluded_count"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// ConnectionEvent represents client connect/disconnect events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
}
