package funnel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
)

func linearFunnel() *funnel.Funnel {
	return &funnel.Funnel{
		ID: "linear",
		Steps: []funnel.Step{
			&funnel.WelcomeStep{StepBase: funnel.StepBase{ID: "welcome"}},
			&funnel.QuestionStep{
				StepBase: funnel.StepBase{ID: "q1"},
				Options:  []funnel.Option{{ID: "q1a", Score: 3}, {ID: "q1b", Score: 1}},
			},
			&funnel.QuestionStep{
				StepBase: funnel.StepBase{ID: "q2"},
				Options:  []funnel.Option{{ID: "q2a", Score: 4}},
			},
			&funnel.LeadCaptureStep{StepBase: funnel.StepBase{ID: "lead"}, Fields: []string{"email"}},
		},
	}
}

// branchingFunnel is [Welcome, Q1(optA score 10 -> M), Q2(optB score 5), M, LeadCapture]
// with segments 0-9 (no route) and 10-15 (-> lead).
func branchingFunnel() *funnel.Funnel {
	return &funnel.Funnel{
		ID: "branching",
		Steps: []funnel.Step{
			&funnel.WelcomeStep{StepBase: funnel.StepBase{ID: "welcome"}},
			&funnel.QuestionStep{
				StepBase: funnel.StepBase{ID: "q1", NextStepID: "q2"},
				Options: []funnel.Option{
					{ID: "optA", Score: 10, NextStepID: "M"},
					{ID: "optC", Score: 0},
				},
			},
			&funnel.QuestionStep{
				StepBase: funnel.StepBase{ID: "q2"},
				Options:  []funnel.Option{{ID: "optB", Score: 5}},
			},
			&funnel.MessageStep{StepBase: funnel.StepBase{ID: "M"}},
			&funnel.LeadCaptureStep{StepBase: funnel.StepBase{ID: "lead"}},
		},
		Scoring: &funnel.ScoringConfig{Enabled: true, Segments: []funnel.ScoreSegment{
			{ID: "cold", MinScore: 0, MaxScore: 9},
			{ID: "hot", MinScore: 10, MaxScore: 15, NextStepID: "lead"},
		}},
	}
}

func TestNextStep_SequentialWithoutOverrides(t *testing.T) {
	f := linearFunnel()
	for i := 0; i < len(f.Steps)-1; i++ {
		tr := funnel.NextStep(f, f.Steps[i].Base().ID, nil, 0)
		assert.False(t, tr.Complete)
		assert.Equal(t, f.Steps[i+1].Base().ID, tr.NextStepID)
		assert.Equal(t, funnel.RuleSequential, tr.Rule)
	}

	tr := funnel.NextStep(f, "lead", &funnel.Answer{Email: "a@b.co"}, 0)
	assert.True(t, tr.Complete)
	assert.Empty(t, tr.NextStepID)
	assert.Equal(t, funnel.RuleComplete, tr.Rule)
}

func TestNextStep_LinearScenarioAccumulatesScore(t *testing.T) {
	f := linearFunnel()

	score := 0
	current := f.FirstStepID()
	var visited []string
	answers := map[string]*funnel.Answer{
		"q1":   {OptionID: "q1a", Score: 3},
		"q2":   {OptionID: "q2a", Score: 4},
		"lead": {Name: "Ada", Email: "ada@example.com"},
	}

	for {
		visited = append(visited, current)
		tr := funnel.NextStep(f, current, answers[current], score)
		score = tr.Score
		if tr.Complete {
			break
		}
		assert.Equal(t, funnel.RuleSequential, tr.Rule)
		current = tr.NextStepID
	}

	assert.Equal(t, []string{"welcome", "q1", "q2", "lead"}, visited)
	assert.Equal(t, 7, score)
}

func TestNextStep_OptionOverrideBeatsSegmentAndStep(t *testing.T) {
	f := branchingFunnel()

	tr := funnel.NextStep(f, "q1", &funnel.Answer{OptionID: "optA", Score: 10}, 0)
	assert.Equal(t, "M", tr.NextStepID)
	assert.Equal(t, funnel.RuleOption, tr.Rule)
	assert.Equal(t, 10, tr.Score)
}

func TestNextStep_SegmentOverrideOnRunningScore(t *testing.T) {
	f := branchingFunnel()

	// M has no option override; the running score 10 lands in "hot".
	tr := funnel.NextStep(f, "M", nil, 10)
	assert.Equal(t, "lead", tr.NextStepID)
	assert.Equal(t, funnel.RuleSegment, tr.Rule)
	require.NotNil(t, tr.Segment)
	assert.Equal(t, "hot", tr.Segment.ID)
}

func TestNextStep_ScoreAddedBeforeSegmentCheck(t *testing.T) {
	f := branchingFunnel()

	tr := funnel.NextStep(f, "q2", &funnel.Answer{OptionID: "optB", Score: 5}, 5)
	assert.Equal(t, 10, tr.Score)
	assert.Equal(t, "lead", tr.NextStepID)
	assert.Equal(t, funnel.RuleSegment, tr.Rule)
}

func TestNextStep_StepOverrideWhenNoSegmentRoute(t *testing.T) {
	f := branchingFunnel()

	tr := funnel.NextStep(f, "q1", &funnel.Answer{OptionID: "optC"}, 0)
	assert.Equal(t, "q2", tr.NextStepID)
	assert.Equal(t, funnel.RuleStep, tr.Rule)
}

func TestNextStep_ScoreIgnoredOutsideQuestions(t *testing.T) {
	f := branchingFunnel()

	tr := funnel.NextStep(f, "welcome", &funnel.Answer{Score: 50}, 2)
	assert.Equal(t, 2, tr.Score)
	assert.Equal(t, "q1", tr.NextStepID)
}

func TestNextStep_DisabledScoringSkipsSegments(t *testing.T) {
	f := branchingFunnel()
	f.Scoring.Enabled = false

	tr := funnel.NextStep(f, "M", nil, 10)
	assert.Equal(t, "lead", tr.NextStepID)
	assert.Equal(t, funnel.RuleSequential, tr.Rule)
}

func TestNextStep_PartitionedSegmentsRouteEveryScore(t *testing.T) {
	f := branchingFunnel()
	f.Scoring.Segments = funnel.GenerateDefaultSegments(15)
	targets := []string{"q2", "M", "lead"}
	for i := range f.Scoring.Segments {
		f.Scoring.Segments[i].NextStepID = targets[i]
	}

	for score := 0; score <= 15; score++ {
		matches := 0
		for _, s := range f.Scoring.Segments {
			if s.Contains(score) {
				matches++
			}
		}
		require.Equal(t, 1, matches, "score=%d", score)

		tr := funnel.NextStep(f, "welcome", nil, score)
		seg, _ := funnel.SegmentFor(f.Scoring, score)
		assert.Equal(t, seg.NextStepID, tr.NextStepID, "score=%d", score)
		assert.Equal(t, funnel.RuleSegment, tr.Rule)
	}
}

func TestNextStep_OverlappingSegmentsFirstListedWins(t *testing.T) {
	f := branchingFunnel()
	f.Scoring.Segments = []funnel.ScoreSegment{
		{ID: "first", MinScore: 0, MaxScore: 10, NextStepID: "q2"},
		{ID: "second", MinScore: 5, MaxScore: 15, NextStepID: "lead"},
	}

	tr := funnel.NextStep(f, "welcome", nil, 7)
	assert.Equal(t, "q2", tr.NextStepID)
}

func TestNextStep_SegmentRoutesOnlyMoveForward(t *testing.T) {
	f := branchingFunnel()
	f.Scoring.Segments = []funnel.ScoreSegment{
		{ID: "loop", MinScore: 0, MaxScore: 5, NextStepID: "welcome"},
		{ID: "hot", MinScore: 10, MaxScore: 15, NextStepID: "lead"},
	}

	tr := funnel.NextStep(f, "M", nil, 3)
	assert.Equal(t, "lead", tr.NextStepID)
	assert.Equal(t, funnel.RuleSequential, tr.Rule)

	// Leaving the target itself with a matching score must not re-enter it.
	tr = funnel.NextStep(f, "lead", nil, 12)
	assert.True(t, tr.Complete)
	assert.Equal(t, funnel.RuleComplete, tr.Rule)

	// Walking the whole funnel always terminates.
	for score := 0; score <= 15; score++ {
		current, visited := "welcome", 0
		for {
			tr := funnel.NextStep(f, current, nil, score)
			if tr.Complete {
				break
			}
			current = tr.NextStepID
			visited++
			require.Less(t, visited, len(f.Steps), "score=%d loops", score)
		}
	}
}

func TestNextStep_DanglingTargetsFallThrough(t *testing.T) {
	f := branchingFunnel()
	q1 := f.Steps[1].(*funnel.QuestionStep)
	q1.Options[0].NextStepID = "deleted"
	f.Scoring.Segments[1].NextStepID = "also-deleted"
	q1.NextStepID = "gone"

	tr := funnel.NextStep(f, "q1", &funnel.Answer{OptionID: "optA", Score: 10}, 0)
	assert.Equal(t, "q2", tr.NextStepID)
	assert.Equal(t, funnel.RuleSequential, tr.Rule)
}

func TestNextStep_UnknownStepFailsClosed(t *testing.T) {
	f := linearFunnel()
	tr := funnel.NextStep(f, "does-not-exist", &funnel.Answer{Score: 3}, 4)
	assert.True(t, tr.Complete)
	assert.Equal(t, 4, tr.Score)
	assert.Equal(t, funnel.RuleUnknown, tr.Rule)

	empty := &funnel.Funnel{}
	assert.True(t, funnel.NextStep(empty, "x", nil, 0).Complete)
}

func TestNextStep_CompletionReportsSegment(t *testing.T) {
	f := branchingFunnel()
	tr := funnel.NextStep(f, "lead", nil, 3)
	require.True(t, tr.Complete)
	require.NotNil(t, tr.Segment)
	assert.Equal(t, "cold", tr.Segment.ID)
}

func TestCalculateProgress(t *testing.T) {
	assert.Equal(t, 0.0, funnel.CalculateProgress(0, 4))
	assert.Equal(t, 50.0, funnel.CalculateProgress(2, 4))
	assert.Equal(t, 100.0, funnel.CalculateProgress(4, 4))
	assert.Equal(t, 100.0, funnel.CalculateProgress(9, 4))
	assert.Equal(t, 0.0, funnel.CalculateProgress(3, 0))
	assert.Equal(t, 0.0, funnel.CalculateProgress(-1, 4))
}
