package funnel

// Rule names the routing rule that produced a transition.
type Rule string

const (
	RuleOption     Rule = "option"
	RuleSegment    Rule = "segment"
	RuleStep       Rule = "step"
	RuleSequential Rule = "sequential"
	RuleComplete   Rule = "complete"
	RuleUnknown    Rule = "unknown-step"
)

// Transition is the outcome of leaving a step.
type Transition struct {
	NextStepID string        `json:"nextStepId,omitempty"`
	Complete   bool          `json:"complete"`
	Score      int           `json:"score"`
	Rule       Rule          `json:"rule"`
	Segment    *ScoreSegment `json:"segment,omitempty"`
}

// NextStep decides where a visitor goes after answering currentStepID.
//
// The answer's score is added to runningScore first (question steps only).
// Then the first matching rule wins: option override, score segment override,
// step override, the following step in sequence, and finally completion.
// A rule pointing at a step that does not exist is skipped, and so is a
// segment target at or before the current step, since the score that
// matched it would keep matching. An unknown current step completes the
// funnel rather than leaving the visitor stuck.
func NextStep(f *Funnel, currentStepID string, answer *Answer, runningScore int) Transition {
	idx := f.IndexOf(currentStepID)
	if idx < 0 {
		return Transition{Complete: true, Score: runningScore, Rule: RuleUnknown}
	}
	current := f.Steps[idx]

	score := runningScore
	q, isQuestion := current.(*QuestionStep)
	if isQuestion && answer != nil {
		score += answer.Score
	}

	route := func(target string, rule Rule) Transition {
		return Transition{NextStepID: target, Score: score, Rule: rule}
	}

	if isQuestion && answer != nil && answer.OptionID != "" {
		if opt, ok := q.Option(answer.OptionID); ok && f.has(opt.NextStepID) {
			return route(opt.NextStepID, RuleOption)
		}
	}

	if f.ScoringEnabled() {
		if seg, ok := SegmentFor(f.Scoring, score); ok && f.IndexOf(seg.NextStepID) > idx {
			t := route(seg.NextStepID, RuleSegment)
			t.Segment = seg
			return t
		}
	}

	if next := current.Base().NextStepID; f.has(next) {
		return route(next, RuleStep)
	}

	if idx+1 < len(f.Steps) {
		return route(f.Steps[idx+1].Base().ID, RuleSequential)
	}

	t := Transition{Complete: true, Score: score, Rule: RuleComplete}
	if f.ScoringEnabled() {
		t.Segment, _ = SegmentFor(f.Scoring, score)
	}
	return t
}

func (f *Funnel) has(stepID string) bool {
	return stepID != "" && f.IndexOf(stepID) >= 0
}

// CalculateProgress is a coarse, index-based progress percentage. Branching
// can skip or revisit steps, so it is not a distance to completion.
func CalculateProgress(currentIndex, totalSteps int) float64 {
	if totalSteps <= 0 {
		return 0
	}
	p := float64(currentIndex) / float64(totalSteps) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
