// Package tracking records an anonymous visitor's path through a funnel.
//
// A session is created lazily on the first step entry, so visitors who bounce
// before interacting never count as a view. Every transition is persisted
// right away; persistence failures are logged and dropped so tracking can
// never hold up the visitor.
package tracking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/metrics"
	"github.com/leadfunnel/leadfunnel/internal/store"
)

// Persister is the slice of the store the tracker writes to.
type Persister interface {
	UpsertSession(ctx context.Context, sess *store.Session) error
	RecordVariantEvent(ctx context.Context, ev store.VariantEvent) error
}

// State is the tracker's position in the session lifecycle.
type State int

const (
	Unstarted State = iota
	Active
	Completed
	Abandoned
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Abandoned:
		return "abandoned"
	default:
		return "unstarted"
	}
}

// Meta describes where a visitor came from. Device is derived from UserAgent
// when left empty.
type Meta struct {
	UserAgent string
	IPAddress string
	Source    string
	Device    string
}

// Leave describes a visitor leaving a step.
type Leave struct {
	StepID   string
	Answered bool
	Answer   *funnel.Answer
	Score    int // running score after this step
}

// Tracker records one visitor session. It is not safe for concurrent use;
// a session has a single writer.
type Tracker struct {
	persister Persister
	logger    *zap.Logger
	now       func() time.Time

	funnelID  string
	sessionID string
	meta      Meta
	session   *store.Session
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for dropped writes. The default is a no-op.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New returns an unstarted tracker. An empty sessionID gets a random one.
func New(funnelID, sessionID string, meta Meta, p Persister, opts ...Option) *Tracker {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	t := &Tracker{
		persister: p,
		logger:    zap.NewNop(),
		now:       time.Now,
		funnelID:  funnelID,
		sessionID: sessionID,
		meta:      meta,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Resume continues tracking a stored session.
func Resume(sess *store.Session, p Persister, opts ...Option) *Tracker {
	t := New(sess.FunnelID, sess.ID, Meta{
		UserAgent: sess.UserAgent,
		IPAddress: sess.IPAddress,
		Source:    sess.Source,
		Device:    sess.Device,
	}, p, opts...)
	t.session = sess
	return t
}

// SessionID returns the id the session is (or will be) stored under.
func (t *Tracker) SessionID() string { return t.sessionID }

// Session returns the tracked session, or nil before the first step entry.
// Callers must not modify it.
func (t *Tracker) Session() *store.Session { return t.session }

// State derives the lifecycle state from the stored session.
func (t *Tracker) State() State {
	if t.session == nil {
		return Unstarted
	}
	switch t.session.Status {
	case store.SessionCompleted:
		return Completed
	case store.SessionAbandoned:
		return Abandoned
	default:
		return Active
	}
}

// AssignedVariant returns the variant this session was shown for stepID.
func (t *Tracker) AssignedVariant(stepID string) string {
	if t.session == nil {
		return ""
	}
	return t.session.Variants[stepID]
}

// StepEnter opens a visit to step, creating the session on first use.
// variantID is the variant being rendered; empty or the original variant
// records no A/B view.
func (t *Tracker) StepEnter(ctx context.Context, step funnel.Step, variantID string) {
	if t.State() == Completed {
		t.logger.Debug("ignoring step enter on completed session",
			zap.String("session", t.sessionID), zap.String("step", step.Base().ID))
		return
	}

	now := t.now()
	if t.session == nil {
		t.session = t.newSession(now)
		metrics.SessionEvents.WithLabelValues("started").Inc()
	}

	stepID := step.Base().ID
	visit := store.StepVisit{
		StepID:    stepID,
		StepType:  step.Kind(),
		EnteredAt: now,
	}
	if isTestVariant(variantID) {
		visit.VariantID = variantID
		if t.session.Variants == nil {
			t.session.Variants = make(map[string]string)
		}
		t.session.Variants[stepID] = variantID
	}

	t.session.Steps = append(t.session.Steps, visit)
	t.touch(now)
	t.persist(ctx, "enter")
	metrics.SessionEvents.WithLabelValues("enter").Inc()

	if visit.VariantID != "" {
		t.recordVariant(ctx, stepID, visit.VariantID, store.EventView, now)
	}
}

// StepLeave closes the most recent open visit of the step. Leaving a step
// that was never entered is a no-op.
func (t *Tracker) StepLeave(ctx context.Context, l Leave) {
	if t.session == nil {
		return
	}

	idx := -1
	for i := len(t.session.Steps) - 1; i >= 0; i-- {
		if v := t.session.Steps[i]; v.StepID == l.StepID && v.Open() {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.logger.Debug("step leave without open visit",
			zap.String("session", t.sessionID), zap.String("step", l.StepID))
		return
	}

	now := t.now()
	visit := &t.session.Steps[idx]
	left := now
	visit.LeftAt = &left
	visit.TimeSpent = now.Sub(visit.EnteredAt).Milliseconds()
	if visit.TimeSpent < 0 {
		visit.TimeSpent = 0
	}
	visit.Answered = l.Answered
	visit.Answer = l.Answer

	if t.State() != Completed {
		t.session.Score = l.Score
	}
	t.touch(now)
	t.persist(ctx, "leave")
	metrics.SessionEvents.WithLabelValues("leave").Inc()

	if l.Answered && visit.VariantID != "" {
		t.recordVariant(ctx, l.StepID, visit.VariantID, store.EventConvert, now)
	}
}

// Complete finalizes the session with its final score. Repeated calls and
// calls before any step entry are no-ops.
func (t *Tracker) Complete(ctx context.Context, score int) {
	if t.session == nil || t.State() == Completed {
		return
	}

	now := t.now()
	t.session.Completed = true
	t.session.CompletedAt = &now
	t.session.Score = score
	t.session.Status = store.SessionCompleted
	t.session.LastActivityAt = now
	t.persist(ctx, "complete")

	metrics.SessionEvents.WithLabelValues("completed").Inc()
}

func (t *Tracker) newSession(now time.Time) *store.Session {
	device := t.meta.Device
	if device == "" {
		device = ClassifyDevice(t.meta.UserAgent)
	}
	source := t.meta.Source
	if source == "" {
		source = DefaultSource
	}
	return &store.Session{
		ID:             t.sessionID,
		FunnelID:       t.funnelID,
		StartedAt:      now,
		LastActivityAt: now,
		Status:         store.SessionActive,
		Device:         device,
		Source:         source,
		UserAgent:      t.meta.UserAgent,
		IPAddress:      t.meta.IPAddress,
	}
}

// touch records activity; an abandoned session that comes back is active again.
func (t *Tracker) touch(now time.Time) {
	t.session.LastActivityAt = now
	if t.session.Status == store.SessionAbandoned {
		t.session.Status = store.SessionActive
	}
}

func (t *Tracker) persist(ctx context.Context, op string) {
	if err := t.persister.UpsertSession(ctx, t.session); err != nil {
		metrics.WriteFailures.WithLabelValues(op).Inc()
		t.logger.Warn("failed to persist session",
			zap.String("op", op),
			zap.String("session", t.sessionID),
			zap.Error(err))
	}
}

func (t *Tracker) recordVariant(ctx context.Context, stepID, variantID string, ev store.EventType, at time.Time) {
	err := t.persister.RecordVariantEvent(ctx, store.VariantEvent{
		FunnelID:  t.funnelID,
		StepID:    stepID,
		VariantID: variantID,
		EventType: ev,
		SessionID: t.sessionID,
		CreatedAt: at,
	})
	if err != nil {
		metrics.WriteFailures.WithLabelValues("variant_" + string(ev)).Inc()
		t.logger.Warn("failed to record variant event",
			zap.String("session", t.sessionID),
			zap.String("step", stepID),
			zap.String("variant", variantID),
			zap.Error(err))
	}
}

func isTestVariant(id string) bool {
	return id != "" && id != funnel.OriginalVariantID
}
