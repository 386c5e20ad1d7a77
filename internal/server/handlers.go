package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dataglass/pattern-sentry/internal/engine"
	"github.com/dataglass/pattern-sentry/internal/pattern"
	"github.com/dataglass/pattern-sentry/internal/refine"
)

type learnRequest struct {
	Examples []string `json:"examples"`
}

type scanRequest struct {
	Text string `json:"text"`
}

type applyRequest struct {
	Suggestions *refine.Suggestions `json:"suggestions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleLearn derives a matching expression from examples without persisting
func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	var req learnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	learned, err := s.engine.Learn(req.Examples)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, learned)
}

// handleScan scans a document against every active pattern
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.engine.Scan(r.Context(), req.Text)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleCreatePattern creates a pattern from examples or an explicit expression
func (s *Server) handleCreatePattern(w http.ResponseWriter, r *http.Request) {
	var input engine.CreatePatternInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := s.engine.CreatePattern(r.Context(), input)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

// handleListPatterns lists patterns; ?active=true restricts to active ones
func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	patterns, err := s.engine.ListPatterns(r.Context(), activeOnly)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, patterns)
}

// handleGetPattern returns one pattern by identifier
func (s *Server) handleGetPattern(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.GetPattern(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleDeactivatePattern soft-deletes a pattern
func (s *Server) handleDeactivatePattern(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.DeactivatePattern(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleRecordFeedback records one human judgment on one observed match
func (s *Server) handleRecordFeedback(w http.ResponseWriter, r *http.Request) {
	var input engine.FeedbackInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	input.PatternID = mux.Vars(r)["id"]

	rec, err := s.engine.RecordFeedback(r.Context(), input)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rec)
}

// handleAccuracy returns the pattern's accuracy metrics and issue codes
func (s *Server) handleAccuracy(w http.ResponseWriter, r *http.Request) {
	metrics, issues, err := s.engine.Accuracy(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics": metrics,
		"issues":  issues,
	})
}

// handleSuggestRefinements generates a reviewable refinement proposal
func (s *Server) handleSuggestRefinements(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.engine.SuggestRefinements(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, suggestions)
}

// handleApplyRefinements commits a reviewed suggestion set
func (s *Server) handleApplyRefinements(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := s.engine.ApplyRefinements(r.Context(), mux.Vars(r)["id"], req.Suggestions)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// writeEngineError maps the engine's error taxonomy onto HTTP status codes
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pattern.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, pattern.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, pattern.ErrConflict):
		s.writeError(w, http.StatusConflict, err)
	default:
		s.logger.Error("Request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
