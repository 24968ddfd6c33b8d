package funnel

import (
	"fmt"
	"sort"
)

// Issue is a configuration problem the engine tolerates at runtime but an
// author should fix.
type Issue struct {
	StepID  string `json:"stepId,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.StepID == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.StepID, i.Message)
}

// Validate lists dangling step references, segment overlaps and gaps, and
// degenerate variant sets.
func Validate(f *Funnel) []Issue {
	var issues []Issue
	add := func(stepID, format string, args ...any) {
		issues = append(issues, Issue{StepID: stepID, Message: fmt.Sprintf(format, args...)})
	}

	if len(f.Steps) == 0 {
		add("", "funnel has no steps")
	}

	for i, s := range f.Steps {
		b := s.Base()
		if b.NextStepID != "" && !f.has(b.NextStepID) {
			add(b.ID, "nextStepId %q does not exist", b.NextStepID)
		}
		switch target := f.IndexOf(b.NextStepID); {
		case b.NextStepID == b.ID && b.ID != "":
			add(b.ID, "step routes to itself")
		case target >= 0 && target < i:
			add(b.ID, "nextStepId %q routes back to an earlier step", b.NextStepID)
		}

		switch st := s.(type) {
		case *QuestionStep:
			if len(st.Options) == 0 {
				add(b.ID, "question has no options")
			}
			for _, o := range st.Options {
				if o.NextStepID != "" && !f.has(o.NextStepID) {
					add(b.ID, "option %q routes to missing step %q", o.ID, o.NextStepID)
				}
			}
		case *LeadCaptureStep:
			if len(st.Fields) == 0 {
				add(b.ID, "lead capture requests no fields")
			}
		}

		if b.ABTestEnabled {
			if len(b.Variants) < 2 {
				add(b.ID, "A/B test enabled with fewer than 2 variants")
			}
			total := 0.0
			for _, v := range b.Variants {
				total += effectiveWeight(v)
			}
			if len(b.Variants) >= 2 && total <= 0 {
				add(b.ID, "all variant weights are zero; traffic is split evenly")
			}
		}
	}

	if f.ScoringEnabled() {
		issues = append(issues, validateSegments(f)...)
	}
	return issues
}

func validateSegments(f *Funnel) []Issue {
	var issues []Issue
	segs := append([]ScoreSegment(nil), f.Scoring.Segments...)
	for _, s := range segs {
		if s.MinScore > s.MaxScore {
			issues = append(issues, Issue{Message: fmt.Sprintf("segment %q has min %d > max %d", s.ID, s.MinScore, s.MaxScore)})
		}
		switch target := f.IndexOf(s.NextStepID); {
		case s.NextStepID != "" && target < 0:
			issues = append(issues, Issue{Message: fmt.Sprintf("segment %q routes to missing step %q", s.ID, s.NextStepID)})
		case target == 0:
			issues = append(issues, Issue{Message: fmt.Sprintf("segment %q routes to the first step %q; segment routes only move forward so it never applies", s.ID, s.NextStepID)})
		}
	}
	if len(segs) == 0 {
		return issues
	}

	sort.SliceStable(segs, func(i, j int) bool { return segs[i].MinScore < segs[j].MinScore })
	maxScore := CalculateMaxScore(f)

	if segs[0].MinScore > 0 {
		issues = append(issues, Issue{Message: fmt.Sprintf("scores 0-%d match no segment", segs[0].MinScore-1)})
	}
	covered := segs[0]
	for _, cur := range segs[1:] {
		switch {
		case cur.MinScore <= covered.MaxScore:
			issues = append(issues, Issue{Message: fmt.Sprintf("segments %q and %q overlap; %q wins", covered.ID, cur.ID, firstListed(f.Scoring.Segments, covered.ID, cur.ID))})
		case cur.MinScore > covered.MaxScore+1:
			issues = append(issues, Issue{Message: fmt.Sprintf("scores %d-%d match no segment", covered.MaxScore+1, cur.MinScore-1)})
		}
		if cur.MaxScore > covered.MaxScore {
			covered = cur
		}
	}
	if covered.MaxScore < maxScore {
		issues = append(issues, Issue{Message: fmt.Sprintf("scores %d-%d match no segment", covered.MaxScore+1, maxScore)})
	}
	return issues
}

func firstListed(segs []ScoreSegment, a, b string) string {
	for _, s := range segs {
		if s.ID == a || s.ID == b {
			return s.ID
		}
	}
	return a
}
