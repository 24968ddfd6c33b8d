package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/metrics"
	"github.com/leadfunnel/leadfunnel/internal/store"
	"github.com/leadfunnel/leadfunnel/internal/tracking"
)

// Tracking endpoints answer 204 for anything well-formed. Unknown funnels,
// steps and sessions are logged and dropped so the visitor is never blocked.

type EnterRequest struct {
	FunnelID  string `json:"funnelId"`
	StepID    string `json:"stepId"`
	VariantID string `json:"variantId,omitempty"`
	Source    string `json:"source,omitempty"`
}

type LeaveRequest struct {
	StepID   string         `json:"stepId"`
	Answered bool           `json:"answered"`
	Answer   *funnel.Answer `json:"answer,omitempty"`
	Score    int            `json:"score"`
}

type CompleteRequest struct {
	Score int `json:"score"`
}

func (s *Server) handleEnter(w http.ResponseWriter, r *http.Request) {
	var req EnterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.FunnelID == "" || req.StepID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	sid := r.PathValue("sid")
	defer w.WriteHeader(http.StatusNoContent)

	tr, err := s.loadTracker(ctx, sid)
	switch {
	case errors.Is(err, store.ErrNotFound):
		source := req.Source
		if source == "" {
			source = tracking.ClassifySource(r.URL.Query())
		}
		tr = tracking.New(req.FunnelID, sid, tracking.Meta{
			UserAgent: r.UserAgent(),
			IPAddress: clientIP(r),
			Source:    source,
		}, s.store, tracking.WithLogger(s.logger))
	case err != nil:
		return
	}

	funnelID := req.FunnelID
	if sess := tr.Session(); sess != nil {
		funnelID = sess.FunnelID
	}
	rec, err := s.store.GetPublishedFunnel(ctx, funnelID)
	if err != nil {
		s.logger.Debug("step enter for unavailable funnel",
			zap.String("session", sid), zap.String("funnel", funnelID), zap.Error(err))
		return
	}
	step, ok := rec.Definition.Step(req.StepID)
	if !ok {
		s.logger.Debug("step enter for unknown step",
			zap.String("session", sid), zap.String("step", req.StepID))
		return
	}

	variantID := req.VariantID
	if !hasVariant(step, variantID) {
		variantID = ""
	}
	tr.StepEnter(ctx, step, variantID)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.StepID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	defer w.WriteHeader(http.StatusNoContent)
	tr, err := s.loadTracker(r.Context(), r.PathValue("sid"))
	if err != nil {
		return
	}
	tr.StepLeave(r.Context(), tracking.Leave{
		StepID:   req.StepID,
		Answered: req.Answered,
		Answer:   req.Answer,
		Score:    req.Score,
	})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	defer w.WriteHeader(http.StatusNoContent)
	tr, err := s.loadTracker(r.Context(), r.PathValue("sid"))
	if err != nil {
		return
	}
	tr.Complete(r.Context(), req.Score)
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	var sub store.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if sub.FunnelID == "" || sub.SessionID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	sub.ID = ""

	if err := s.store.RecordSubmission(r.Context(), &sub); err != nil {
		metrics.WriteFailures.WithLabelValues("submission").Inc()
		s.logger.Warn("failed to record submission",
			zap.String("funnel", sub.FunnelID),
			zap.String("session", sub.SessionID),
			zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadTracker resumes the stored session sid. Read failures other than
// store.ErrNotFound are logged here.
func (s *Server) loadTracker(ctx context.Context, sid string) (*tracking.Tracker, error) {
	sess, err := s.store.GetSession(ctx, sid)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to load session", zap.String("session", sid), zap.Error(err))
		}
		return nil, err
	}
	return tracking.Resume(sess, s.store, tracking.WithLogger(s.logger)), nil
}

func hasVariant(step funnel.Step, id string) bool {
	for _, v := range step.Base().Variants {
		if v.ID == id {
			return true
		}
	}
	return false
}
