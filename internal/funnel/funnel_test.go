package funnel_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
)

const quizJSON = `{
  "id": "quiz",
  "name": "Readiness Quiz",
  "steps": [
    {"id": "welcome", "type": "welcome", "title": "Hi", "buttonText": "Start"},
    {"id": "q1", "type": "question", "title": "Team size?", "options": [
      {"id": "small", "text": "1-5", "score": 3},
      {"id": "big", "text": "50+", "score": 10, "nextStepId": "lead"}
    ]},
    {"id": "msg", "type": "message", "title": "Almost there"},
    {"id": "lead", "type": "leadCapture", "fields": ["name", "email"]},
    {"id": "cal", "type": "calendarEmbed", "embedUrl": "https://cal.example.com/x"}
  ],
  "scoring": {"enabled": true, "segments": [
    {"id": "low", "name": "low", "label": "Low", "minScore": 0, "maxScore": 4},
    {"id": "high", "name": "high", "label": "High", "minScore": 5, "maxScore": 10, "nextStepId": "cal"}
  ]}
}`

func TestParse_DecodesStepKinds(t *testing.T) {
	f, err := funnel.Parse([]byte(quizJSON))
	require.NoError(t, err)
	require.Len(t, f.Steps, 5)

	kinds := make([]funnel.Kind, len(f.Steps))
	for i, s := range f.Steps {
		kinds[i] = s.Kind()
	}
	assert.Equal(t, []funnel.Kind{
		funnel.KindWelcome, funnel.KindQuestion, funnel.KindMessage,
		funnel.KindLeadCapture, funnel.KindCalendar,
	}, kinds)

	q, ok := f.Steps[1].(*funnel.QuestionStep)
	require.True(t, ok)
	opt, ok := q.Option("big")
	require.True(t, ok)
	assert.Equal(t, 10, opt.Score)
	assert.Equal(t, "lead", opt.NextStepID)

	lead := f.Steps[3].(*funnel.LeadCaptureStep)
	assert.Equal(t, []string{"name", "email"}, lead.Fields)

	cal := f.Steps[4].(*funnel.CalendarStep)
	assert.Equal(t, "https://cal.example.com/x", cal.EmbedURL)

	require.True(t, f.ScoringEnabled())
	assert.Len(t, f.Scoring.Segments, 2)
}

func TestParse_RoundTripKeepsTypes(t *testing.T) {
	f, err := funnel.Parse([]byte(quizJSON))
	require.NoError(t, err)

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"lead-capture"`)

	again, err := funnel.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, f, again)
}

func TestMarshalStep_WritesTypeDiscriminator(t *testing.T) {
	data, err := funnel.MarshalStep(&funnel.CalendarStep{StepBase: funnel.StepBase{ID: "cal"}})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "calendar", fields["type"])
	assert.Equal(t, "cal", fields["id"])
}

func TestParse_RejectsUnknownType(t *testing.T) {
	_, err := funnel.Parse([]byte(`{"id":"f","steps":[{"id":"a","type":"video"}]}`))
	require.ErrorIs(t, err, funnel.ErrUnknownStepType)
}

func TestParse_RejectsDuplicateIDs(t *testing.T) {
	_, err := funnel.Parse([]byte(`{"id":"f","steps":[{"id":"a","type":"welcome"},{"id":"a","type":"message"}]}`))
	require.ErrorIs(t, err, funnel.ErrDuplicateStep)
}

func TestParse_RejectsMissingID(t *testing.T) {
	_, err := funnel.Parse([]byte(`{"id":"f","steps":[{"type":"welcome"}]}`))
	require.ErrorIs(t, err, funnel.ErrMissingStepID)
}

func TestValidate_ReportsConfigurationProblems(t *testing.T) {
	f := &funnel.Funnel{
		ID: "broken",
		Steps: []funnel.Step{
			&funnel.QuestionStep{
				StepBase: funnel.StepBase{ID: "q1", NextStepID: "ghost"},
				Options:  []funnel.Option{{ID: "a", Score: 10, NextStepID: "nowhere"}},
			},
			&funnel.MessageStep{StepBase: funnel.StepBase{
				ID:            "m",
				ABTestEnabled: true,
				Variants:      []funnel.StepVariant{{ID: "x"}, {ID: "y"}},
			}},
		},
		Scoring: &funnel.ScoringConfig{Enabled: true, Segments: []funnel.ScoreSegment{
			{ID: "a", MinScore: 0, MaxScore: 5},
			{ID: "b", MinScore: 4, MaxScore: 6},
		}},
	}

	var messages []string
	for _, issue := range funnel.Validate(f) {
		messages = append(messages, issue.String())
	}

	assert.Contains(t, messages, `q1: nextStepId "ghost" does not exist`)
	assert.Contains(t, messages, `q1: option "a" routes to missing step "nowhere"`)
	assert.Contains(t, messages, "m: all variant weights are zero; traffic is split evenly")
	assert.Contains(t, messages, `segments "a" and "b" overlap; "a" wins`)
	assert.Contains(t, messages, "scores 7-10 match no segment")
}

func TestValidate_FlagsBackwardRoutes(t *testing.T) {
	f := &funnel.Funnel{
		ID: "loops",
		Steps: []funnel.Step{
			&funnel.WelcomeStep{StepBase: funnel.StepBase{ID: "welcome"}},
			&funnel.QuestionStep{
				StepBase: funnel.StepBase{ID: "q1"},
				Options:  []funnel.Option{{ID: "a", Score: 5}},
			},
			&funnel.MessageStep{StepBase: funnel.StepBase{ID: "m", NextStepID: "q1"}},
		},
		Scoring: &funnel.ScoringConfig{Enabled: true, Segments: []funnel.ScoreSegment{
			{ID: "all", MinScore: 0, MaxScore: 5, NextStepID: "welcome"},
		}},
	}

	var messages []string
	for _, issue := range funnel.Validate(f) {
		messages = append(messages, issue.String())
	}

	assert.Contains(t, messages, `m: nextStepId "q1" routes back to an earlier step`)
	assert.Contains(t, messages, `segment "all" routes to the first step "welcome"; segment routes only move forward so it never applies`)
}

func TestValidate_CleanFunnel(t *testing.T) {
	f, err := funnel.Parse([]byte(quizJSON))
	require.NoError(t, err)
	assert.Empty(t, funnel.Validate(f))
}
