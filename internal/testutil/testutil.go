// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/store"
)

// SetupTestStore opens a store in a per-test temp dir that is closed on cleanup.
func SetupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// QuizFunnel is a four-step funnel: an A/B tested welcome, two scored
// questions and a lead capture. Scores 0-3 route low, 4-7 route high.
func QuizFunnel() *funnel.Funnel {
	return &funnel.Funnel{
		ID:   "quiz",
		Name: "Readiness quiz",
		Steps: []funnel.Step{
			&funnel.WelcomeStep{StepBase: funnel.StepBase{
				ID:            "welcome",
				Title:         "Welcome",
				ButtonText:    "Start",
				ABTestEnabled: true,
				Variants: []funnel.StepVariant{
					{ID: "A", Name: "Control", Weight: 50},
					{ID: "B", Name: "Friendly", Title: "Hey there", Weight: 50},
				},
			}},
			&funnel.QuestionStep{
				StepBase: funnel.StepBase{ID: "q1", Title: "Team size?"},
				Options: []funnel.Option{
					{ID: "q1-small", Text: "Just me", Score: 0},
					{ID: "q1-big", Text: "10+", Score: 3},
				},
			},
			&funnel.QuestionStep{
				StepBase: funnel.StepBase{ID: "q2", Title: "Budget?"},
				Options: []funnel.Option{
					{ID: "q2-low", Text: "None yet", Score: 0},
					{ID: "q2-high", Text: "Approved", Score: 4},
				},
			},
			&funnel.LeadCaptureStep{
				StepBase: funnel.StepBase{ID: "lead", Title: "Where should we send results?"},
				Fields:   []string{"name", "email"},
			},
		},
		Scoring: &funnel.ScoringConfig{
			Enabled: true,
			Segments: []funnel.ScoreSegment{
				{ID: "low", Name: "Low", MinScore: 0, MaxScore: 3},
				{ID: "high", Name: "High", MinScore: 4, MaxScore: 7},
			},
		},
	}
}

// SeedPublished saves f and publishes it.
func SeedPublished(t *testing.T, s *store.SQLiteStore, f *funnel.Funnel) {
	t.Helper()

	ctx := context.Background()
	if _, err := s.SaveFunnel(ctx, f); err != nil {
		t.Fatalf("failed to save funnel: %v", err)
	}
	if err := s.SetFunnelState(ctx, f.ID, store.StatePublished); err != nil {
		t.Fatalf("failed to publish funnel: %v", err)
	}
}
