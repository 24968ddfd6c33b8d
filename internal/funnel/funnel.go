// Package funnel holds the funnel definition model and the execution rules
// that run against it: scoring, A/B variant selection and step routing.
// Everything here is pure; persistence and tracking live elsewhere.
package funnel

// Kind identifies one of the five step kinds.
type Kind string

const (
	KindWelcome     Kind = "welcome"
	KindQuestion    Kind = "question"
	KindMessage     Kind = "message"
	KindLeadCapture Kind = "lead-capture"
	KindCalendar    Kind = "calendar"
)

// Funnel is an authored, ordered sequence of steps.
type Funnel struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Steps   []Step         `json:"steps"`
	Scoring *ScoringConfig `json:"scoring,omitempty"`
}

// Step is a closed sum type over the step kinds. Use a type switch on
// *WelcomeStep, *QuestionStep, *MessageStep, *LeadCaptureStep and
// *CalendarStep to reach kind-specific fields.
type Step interface {
	Kind() Kind
	Base() *StepBase
	sealed()
}

// StepBase carries the fields every step kind shares.
type StepBase struct {
	ID            string        `json:"id"`
	Title         string        `json:"title,omitempty"`
	Description   string        `json:"description,omitempty"`
	ButtonText    string        `json:"buttonText,omitempty"`
	NextStepID    string        `json:"nextStepId,omitempty"`
	Variants      []StepVariant `json:"variants,omitempty"`
	ABTestEnabled bool          `json:"abTestEnabled,omitempty"`
}

func (b *StepBase) Base() *StepBase { return b }
func (*StepBase) sealed()           {}

// WelcomeStep is the landing screen of a funnel.
type WelcomeStep struct {
	StepBase
}

func (*WelcomeStep) Kind() Kind { return KindWelcome }

// QuestionStep offers options; each option adds its score when chosen.
type QuestionStep struct {
	StepBase
	Options []Option `json:"options,omitempty"`
}

func (*QuestionStep) Kind() Kind { return KindQuestion }

// Option returns the option with the given id.
func (q *QuestionStep) Option(id string) (*Option, bool) {
	for i := range q.Options {
		if q.Options[i].ID == id {
			return &q.Options[i], true
		}
	}
	return nil, false
}

// MessageStep shows information and moves on without an answer.
type MessageStep struct {
	StepBase
}

func (*MessageStep) Kind() Kind { return KindMessage }

// LeadCaptureStep collects contact fields. Answering it records the submission.
type LeadCaptureStep struct {
	StepBase
	Fields []string `json:"fields,omitempty"` // e.g. "name", "email", "phone"
}

func (*LeadCaptureStep) Kind() Kind { return KindLeadCapture }

// CalendarStep embeds a booking calendar.
type CalendarStep struct {
	StepBase
	EmbedURL string `json:"embedUrl,omitempty"`
}

func (*CalendarStep) Kind() Kind { return KindCalendar }

// Option is one selectable answer of a question step.
type Option struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Score      int    `json:"score,omitempty"`
	NextStepID string `json:"nextStepId,omitempty"`
}

// StepVariant is an A/B alternative rendering of a step. Weight is a relative
// share. Views and Conversions are kept for document compatibility only;
// counts are aggregated from the variant event log.
type StepVariant struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	ButtonText  string  `json:"buttonText,omitempty"`
	Weight      float64 `json:"weight"`
	Views       int     `json:"views,omitempty"`
	Conversions int     `json:"conversions,omitempty"`
}

// ScoringConfig enables score accumulation and segment routing.
type ScoringConfig struct {
	Enabled           bool           `json:"enabled"`
	Threshold         int            `json:"threshold,omitempty"` // legacy, superseded by Segments
	ShowSegmentResult bool           `json:"showSegmentResult,omitempty"`
	Segments          []ScoreSegment `json:"segments,omitempty"`
}

// ScoreSegment is an inclusive score band. NextStepID, when set, routes
// visitors whose running score falls in the band.
type ScoreSegment struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Label         string `json:"label"`
	MinScore      int    `json:"minScore"`
	MaxScore      int    `json:"maxScore"`
	Color         string `json:"color,omitempty"`
	NextStepID    string `json:"nextStepId,omitempty"`
	CustomMessage string `json:"customMessage,omitempty"`
	RedirectType  string `json:"redirectType,omitempty"`
	RedirectURL   string `json:"redirectUrl,omitempty"`
}

// Contains reports whether score falls in the inclusive range.
func (s ScoreSegment) Contains(score int) bool {
	return score >= s.MinScore && score <= s.MaxScore
}

// Answer is the payload a visitor submits on leaving a step. Question steps
// fill OptionID/Text/Score, lead capture steps the contact fields.
type Answer struct {
	OptionID   string `json:"optionId,omitempty"`
	Text       string `json:"text,omitempty"`
	Score      int    `json:"score,omitempty"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Subscribed bool   `json:"subscribed,omitempty"`
}

// IndexOf returns the position of the step with the given id, or -1.
func (f *Funnel) IndexOf(stepID string) int {
	for i, s := range f.Steps {
		if s.Base().ID == stepID {
			return i
		}
	}
	return -1
}

// Step returns the step with the given id.
func (f *Funnel) Step(stepID string) (Step, bool) {
	if i := f.IndexOf(stepID); i >= 0 {
		return f.Steps[i], true
	}
	return nil, false
}

// FirstStepID returns the id of the entry step, or "" for an empty funnel.
func (f *Funnel) FirstStepID() string {
	if len(f.Steps) == 0 {
		return ""
	}
	return f.Steps[0].Base().ID
}

// ScoringEnabled reports whether a scoring config is present and enabled.
func (f *Funnel) ScoringEnabled() bool {
	return f.Scoring != nil && f.Scoring.Enabled
}
