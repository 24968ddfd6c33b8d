package store

import (
	"time"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
)

type FunnelState string

const (
	StateDraft     FunnelState = "draft"
	StatePublished FunnelState = "published"
)

// FunnelRecord is a stored funnel definition.
type FunnelRecord struct {
	ID         string
	Name       string
	State      FunnelState
	Definition *funnel.Funnel
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// StepVisit is one entry into a step. LeftAt is nil while the visit is open.
type StepVisit struct {
	StepID    string         `json:"stepId"`
	StepType  funnel.Kind    `json:"stepType"`
	VariantID string         `json:"variantId,omitempty"`
	EnteredAt time.Time      `json:"enteredAt"`
	LeftAt    *time.Time     `json:"leftAt,omitempty"`
	TimeSpent int64          `json:"timeSpent"` // milliseconds
	Answered  bool           `json:"answered"`
	Answer    *funnel.Answer `json:"answer,omitempty"`
}

// Open reports whether the visit has been entered but not yet left.
func (v StepVisit) Open() bool {
	return v.LeftAt == nil
}

// Session is one anonymous visitor's traversal of a funnel.
type Session struct {
	ID             string            `json:"id"`
	FunnelID       string            `json:"funnelId"`
	StartedAt      time.Time         `json:"startedAt"`
	LastActivityAt time.Time         `json:"lastActivityAt"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
	Completed      bool              `json:"completed"`
	Status         SessionStatus     `json:"status"`
	Steps          []StepVisit       `json:"steps"`
	Score          int               `json:"score"`
	Variants       map[string]string `json:"variants,omitempty"` // stepId -> variantId
	Device         string            `json:"device"`
	Source         string            `json:"source"`
	UserAgent      string            `json:"userAgent,omitempty"`
	IPAddress      string            `json:"ipAddress,omitempty"`
}

type Contact struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Subscribed bool   `json:"subscribed,omitempty"`
}

// Submission is the lead record produced when a visitor completes a funnel.
type Submission struct {
	ID                    string                    `json:"id"`
	FunnelID              string                    `json:"funnelId"`
	SessionID             string                    `json:"sessionId"`
	Answers               map[string]*funnel.Answer `json:"answers"`
	Contact               Contact                   `json:"contact"`
	Score                 int                       `json:"score"`
	CompletionTimeSeconds int64                     `json:"completionTimeSeconds"`
	CreatedAt             time.Time                 `json:"createdAt"`
}

type EventType string

const (
	EventView    EventType = "view"
	EventConvert EventType = "convert"
)

// VariantEvent is one row of the append-only variant log.
type VariantEvent struct {
	ID        int64
	FunnelID  string
	StepID    string
	VariantID string
	EventType EventType
	SessionID string
	CreatedAt time.Time
}

// VariantStats aggregates the event log for one variant of a step.
type VariantStats struct {
	VariantID   string
	Views       int
	Conversions int
}

// FunnelStats summarises sessions of a funnel.
type FunnelStats struct {
	Sessions    int
	Active      int
	Completed   int
	Abandoned   int
	Submissions int
	AvgScore    float64
}
