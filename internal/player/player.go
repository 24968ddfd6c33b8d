// Package player walks one visitor through a funnel: it resolves transitions,
// picks variants, feeds the session tracker and hands completed leads to the
// submission recorder.
package player

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/metrics"
	"github.com/leadfunnel/leadfunnel/internal/store"
	"github.com/leadfunnel/leadfunnel/internal/tracking"
)

var ErrEmptyFunnel = errors.New("funnel has no steps")

// SubmissionRecorder stores completed lead captures.
type SubmissionRecorder interface {
	RecordSubmission(ctx context.Context, sub *store.Submission) error
}

// Screen is what the player shows for the current step.
type Screen struct {
	Step     funnel.Step
	Variant  funnel.StepVariant
	Content  funnel.Content
	Index    int
	Progress float64
}

type Player struct {
	funnel    *funnel.Funnel
	tracker   *tracking.Tracker
	recorder  SubmissionRecorder
	rng       funnel.Rand
	sticky    bool
	logger    *zap.Logger
	now       func() time.Time
	startedAt time.Time

	current   string
	variant   funnel.StepVariant
	score     int
	answers   map[string]*funnel.Answer
	submitted bool
	done      bool
	last      funnel.Transition
}

type Option func(*Player)

func WithRand(r funnel.Rand) Option {
	return func(p *Player) { p.rng = r }
}

// WithSticky controls whether repeat views of a step reuse the variant
// already shown in this session.
func WithSticky(sticky bool) Option {
	return func(p *Player) { p.sticky = sticky }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Player) { p.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(p *Player) { p.now = now }
}

// New prepares a player. recorder may be nil when submissions are not stored.
func New(f *funnel.Funnel, tracker *tracking.Tracker, recorder SubmissionRecorder, opts ...Option) *Player {
	p := &Player{
		funnel:   f,
		tracker:  tracker,
		recorder: recorder,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sticky:   true,
		logger:   zap.NewNop(),
		now:      time.Now,
		answers:  make(map[string]*funnel.Answer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start enters the first step.
func (p *Player) Start(ctx context.Context) error {
	first := p.funnel.FirstStepID()
	if first == "" {
		return ErrEmptyFunnel
	}
	p.startedAt = p.now()
	p.enter(ctx, first)
	return nil
}

// Current returns the screen for the current step. ok is false once the
// funnel is complete or before Start.
func (p *Player) Current() (Screen, bool) {
	if p.done || p.current == "" {
		return Screen{}, false
	}
	step, ok := p.funnel.Step(p.current)
	if !ok {
		return Screen{}, false
	}
	idx := p.funnel.IndexOf(p.current)
	return Screen{
		Step:     step,
		Variant:  p.variant,
		Content:  funnel.EffectiveContent(step, p.variant),
		Index:    idx,
		Progress: funnel.CalculateProgress(idx, len(p.funnel.Steps)),
	}, true
}

// Answer leaves the current step with answer (nil for a plain "next") and
// moves on. It returns the transition that was taken.
func (p *Player) Answer(ctx context.Context, answer *funnel.Answer) funnel.Transition {
	if p.done {
		return p.last
	}

	stepID := p.current
	tr := funnel.NextStep(p.funnel, stepID, answer, p.score)
	metrics.Transitions.WithLabelValues(p.funnel.ID, string(tr.Rule)).Inc()

	p.score = tr.Score
	if answer != nil {
		p.answers[stepID] = answer
	}
	p.tracker.StepLeave(ctx, tracking.Leave{
		StepID:   stepID,
		Answered: true,
		Answer:   answer,
		Score:    p.score,
	})

	if step, ok := p.funnel.Step(stepID); ok && step.Kind() == funnel.KindLeadCapture {
		p.submit(ctx, answer)
	}

	p.last = tr
	if tr.Complete {
		p.done = true
		p.current = ""
		p.tracker.Complete(ctx, p.score)
		return tr
	}

	p.enter(ctx, tr.NextStepID)
	return tr
}

func (p *Player) enter(ctx context.Context, stepID string) {
	step, ok := p.funnel.Step(stepID)
	if !ok {
		p.done = true
		p.tracker.Complete(ctx, p.score)
		return
	}

	previous := ""
	if p.sticky {
		previous = p.tracker.AssignedVariant(stepID)
	}
	p.current = stepID
	p.variant = funnel.Assign(step, previous, p.rng)
	p.tracker.StepEnter(ctx, step, p.variant.ID)
}

func (p *Player) submit(ctx context.Context, answer *funnel.Answer) {
	if p.recorder == nil || p.submitted {
		return
	}
	p.submitted = true

	sub := &store.Submission{
		FunnelID:              p.funnel.ID,
		SessionID:             p.tracker.SessionID(),
		Answers:               p.answers,
		Score:                 p.score,
		CompletionTimeSeconds: int64(p.now().Sub(p.startedAt).Seconds()),
	}
	if answer != nil {
		sub.Contact = store.Contact{
			Name:       answer.Name,
			Email:      answer.Email,
			Phone:      answer.Phone,
			Subscribed: answer.Subscribed,
		}
	}

	if err := p.recorder.RecordSubmission(ctx, sub); err != nil {
		metrics.WriteFailures.WithLabelValues("submission").Inc()
		p.logger.Warn("failed to record submission",
			zap.String("funnel", p.funnel.ID),
			zap.String("session", p.tracker.SessionID()),
			zap.Error(err))
	}
}

func (p *Player) Score() int { return p.score }

func (p *Player) Done() bool { return p.done }

// Progress is the completion percentage of the current step, 100 once done.
func (p *Player) Progress() float64 {
	if p.done {
		return 100
	}
	return funnel.CalculateProgress(p.funnel.IndexOf(p.current), len(p.funnel.Steps))
}

// Last returns the most recent transition, which carries the result segment
// once the funnel is complete.
func (p *Player) Last() funnel.Transition { return p.last }

func (p *Player) Answers() map[string]*funnel.Answer { return p.answers }
