package player_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/player"
	"github.com/leadfunnel/leadfunnel/internal/store"
	"github.com/leadfunnel/leadfunnel/internal/testutil"
	"github.com/leadfunnel/leadfunnel/internal/tracking"
)

func quiz() *funnel.Funnel {
	return &funnel.Funnel{
		ID: "quiz",
		Steps: []funnel.Step{
			&funnel.WelcomeStep{StepBase: funnel.StepBase{
				ID:            "welcome",
				Title:         "Welcome",
				ABTestEnabled: true,
				Variants: []funnel.StepVariant{
					{ID: "A", Weight: 50},
					{ID: "B", Title: "Hey there", Weight: 50},
				},
			}},
			&funnel.QuestionStep{
				StepBase: funnel.StepBase{ID: "q1"},
				Options:  []funnel.Option{{ID: "q1a", Score: 3}},
			},
			&funnel.QuestionStep{
				StepBase: funnel.StepBase{ID: "q2"},
				Options:  []funnel.Option{{ID: "q2a", Score: 4}},
			},
			&funnel.LeadCaptureStep{StepBase: funnel.StepBase{ID: "lead"}, Fields: []string{"name", "email"}},
		},
	}
}

func TestPlayer_LinearRun(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	tr := tracking.New("quiz", "", tracking.Meta{}, s, tracking.WithClock(now))
	p := player.New(quiz(), tr, s, player.WithRand(rand.New(rand.NewPCG(1, 2))), player.WithClock(now))
	require.NoError(t, p.Start(ctx))

	screen, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "welcome", screen.Step.Base().ID)
	assert.Contains(t, []string{"A", "B"}, screen.Variant.ID)
	assert.Equal(t, 0.0, screen.Progress)
	assert.Equal(t, 0.0, p.Progress())

	var visited []string
	answers := map[string]*funnel.Answer{
		"q1":   {OptionID: "q1a", Score: 3},
		"q2":   {OptionID: "q2a", Score: 4},
		"lead": {Name: "Ada", Email: "ada@example.com"},
	}
	for !p.Done() {
		screen, ok := p.Current()
		require.True(t, ok)
		visited = append(visited, screen.Step.Base().ID)
		clock = clock.Add(10 * time.Second)
		p.Answer(ctx, answers[screen.Step.Base().ID])
	}

	assert.Equal(t, []string{"welcome", "q1", "q2", "lead"}, visited)
	assert.Equal(t, 7, p.Score())
	assert.True(t, p.Last().Complete)
	assert.Equal(t, 100.0, p.Progress())
	_, ok = p.Current()
	assert.False(t, ok)

	sess, err := s.GetSession(ctx, tr.SessionID())
	require.NoError(t, err)
	assert.True(t, sess.Completed)
	assert.Equal(t, 7, sess.Score)
	require.Len(t, sess.Steps, 4)
	for _, v := range sess.Steps {
		assert.Equal(t, int64(10000), v.TimeSpent)
	}

	subs, err := s.ListSubmissions(ctx, "quiz")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "ada@example.com", subs[0].Contact.Email)
	assert.Equal(t, 7, subs[0].Score)
	assert.Equal(t, int64(40), subs[0].CompletionTimeSeconds)
	assert.Equal(t, tr.SessionID(), subs[0].SessionID)

	variantStats, err := s.GetVariantStats(ctx, "quiz", "welcome")
	require.NoError(t, err)
	require.Len(t, variantStats, 1)
	assert.Equal(t, 1, variantStats[0].Views)
	assert.Equal(t, 1, variantStats[0].Conversions)
}

func TestPlayer_OptionOverrideSkipsAhead(t *testing.T) {
	f := quiz()
	f.Steps[1].(*funnel.QuestionStep).Options[0].NextStepID = "lead"

	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	p := player.New(f, tracking.New("quiz", "", tracking.Meta{}, s), s)
	require.NoError(t, p.Start(ctx))

	p.Answer(ctx, nil)
	tr := p.Answer(ctx, &funnel.Answer{OptionID: "q1a", Score: 3})
	assert.Equal(t, "lead", tr.NextStepID)
	assert.Equal(t, funnel.RuleOption, tr.Rule)

	screen, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "lead", screen.Step.Base().ID)
	assert.Equal(t, 75.0, screen.Progress)
}

type loopRand struct{ draws []float64 }

func (r *loopRand) Float64() float64 {
	v := r.draws[0]
	r.draws = r.draws[1:]
	return v
}

func (r *loopRand) IntN(int) int { return 0 }

func TestPlayer_StickyVariantOnRevisit(t *testing.T) {
	f := quiz()
	// q1 loops back to welcome once.
	f.Steps[1].(*funnel.QuestionStep).Options = append(f.Steps[1].(*funnel.QuestionStep).Options,
		funnel.Option{ID: "again", NextStepID: "welcome"})

	for _, sticky := range []bool{true, false} {
		s := testutil.SetupTestStore(t)
		ctx := context.Background()
		rng := &loopRand{draws: []float64{0.9, 0.1}} // B first, then A
		p := player.New(f, tracking.New("quiz", "", tracking.Meta{}, s), s,
			player.WithRand(rng), player.WithSticky(sticky))
		require.NoError(t, p.Start(ctx))

		first, _ := p.Current()
		require.Equal(t, "B", first.Variant.ID)
		assert.Equal(t, "Hey there", first.Content.Title)

		p.Answer(ctx, nil)
		p.Answer(ctx, &funnel.Answer{OptionID: "again"})

		again, ok := p.Current()
		require.True(t, ok)
		require.Equal(t, "welcome", again.Step.Base().ID)
		if sticky {
			assert.Equal(t, "B", again.Variant.ID)
		} else {
			assert.Equal(t, "A", again.Variant.ID)
		}
	}
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) RecordSubmission(context.Context, *store.Submission) error {
	f.calls++
	return errors.New("connection refused")
}

func TestPlayer_SubmissionFailureDoesNotBlock(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	rec := &failingRecorder{}

	p := player.New(quiz(), tracking.New("quiz", "", tracking.Meta{}, s), rec)
	require.NoError(t, p.Start(ctx))
	for !p.Done() {
		p.Answer(ctx, &funnel.Answer{Email: "x@example.com"})
	}
	assert.Equal(t, 1, rec.calls)

	// Answering after completion is a no-op.
	tr := p.Answer(ctx, nil)
	assert.True(t, tr.Complete)
	assert.Equal(t, 1, rec.calls)
}

func TestPlayer_EmptyFunnel(t *testing.T) {
	p := player.New(&funnel.Funnel{ID: "empty"}, tracking.New("empty", "", tracking.Meta{}, testutil.SetupTestStore(t)), nil)
	require.ErrorIs(t, p.Start(context.Background()), player.ErrEmptyFunnel)
}
