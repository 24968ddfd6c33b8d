package server

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/metrics"
	"github.com/leadfunnel/leadfunnel/internal/store"
)

type HealthResponse struct {
	Status        string `json:"status"`
	FunnelsCount  int    `json:"funnels_count"`
	DBSizeBytes   int64  `json:"db_size_bytes"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	funnels, err := s.store.ListFunnels(ctx)
	if err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRowContext(ctx, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	if err := row.Scan(&dbSize); err != nil {
		s.logger.Debug("failed to read database size", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		FunnelsCount:  len(funnels),
		DBSizeBytes:   dbSize,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

// publishedFunnel loads the published funnel named by the {id} path value.
// It writes the error response itself and reports false on failure.
func (s *Server) publishedFunnel(w http.ResponseWriter, r *http.Request) (*funnel.Funnel, bool) {
	rec, err := s.store.GetPublishedFunnel(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Funnel not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to load funnel", zap.String("funnel", r.PathValue("id")), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return rec.Definition, true
}

func (s *Server) handleGetFunnel(w http.ResponseWriter, r *http.Request) {
	f, ok := s.publishedFunnel(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type NextRequest struct {
	CurrentStepID string         `json:"currentStepId"`
	Answer        *funnel.Answer `json:"answer,omitempty"`
	Score         int            `json:"score"`
}

type NextResponse struct {
	funnel.Transition
	Progress float64 `json:"progress"`
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	var req NextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.CurrentStepID == "" {
		http.Error(w, "currentStepId is required", http.StatusBadRequest)
		return
	}

	f, ok := s.publishedFunnel(w, r)
	if !ok {
		return
	}

	tr := funnel.NextStep(f, req.CurrentStepID, req.Answer, req.Score)
	metrics.Transitions.WithLabelValues(f.ID, string(tr.Rule)).Inc()

	progress := 100.0
	if !tr.Complete {
		progress = funnel.CalculateProgress(f.IndexOf(tr.NextStepID), len(f.Steps))
	}
	writeJSON(w, http.StatusOK, NextResponse{Transition: tr, Progress: progress})
}

type VariantResponse struct {
	StepID      string `json:"stepId"`
	VariantID   string `json:"variantId"`
	VariantName string `json:"variantName,omitempty"`
	Testing     bool   `json:"testing"`
	funnel.Content
}

// globalRand draws from the concurrency-safe math/rand/v2 top-level source.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }

func (s *Server) handleVariant(w http.ResponseWriter, r *http.Request) {
	f, ok := s.publishedFunnel(w, r)
	if !ok {
		return
	}
	step, ok := f.Step(r.PathValue("stepId"))
	if !ok {
		http.Error(w, "Step not found", http.StatusNotFound)
		return
	}

	previous := ""
	if sid := r.URL.Query().Get("session"); sid != "" && s.sticky {
		sess, err := s.store.GetSession(r.Context(), sid)
		switch {
		case err == nil && sess.FunnelID == f.ID:
			previous = sess.Variants[step.Base().ID]
		case err != nil && !errors.Is(err, store.ErrNotFound):
			s.logger.Warn("failed to load session for variant assignment", zap.String("session", sid), zap.Error(err))
		}
	}

	v := funnel.Assign(step, previous, globalRand{})
	writeJSON(w, http.StatusOK, VariantResponse{
		StepID:      step.Base().ID,
		VariantID:   v.ID,
		VariantName: v.Name,
		Testing:     funnel.IsTesting(step),
		Content:     funnel.EffectiveContent(step, v),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
