package store

import (
	"context"
	"time"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
)

// Store defines the persistence operations the engine relies on.
type Store interface {
	// Funnel operations
	SaveFunnel(ctx context.Context, f *funnel.Funnel) (*FunnelRecord, error)
	GetFunnel(ctx context.Context, id string) (*FunnelRecord, error)
	GetPublishedFunnel(ctx context.Context, id string) (*FunnelRecord, error)
	ListFunnels(ctx context.Context) ([]*FunnelRecord, error)
	SetFunnelState(ctx context.Context, id string, state FunnelState) error
	DeleteFunnel(ctx context.Context, id string) error

	// Session operations
	UpsertSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, funnelID string) ([]*Session, error)
	MarkAbandoned(ctx context.Context, idleSince time.Time) (int64, error)

	// Submissions and variant events
	RecordSubmission(ctx context.Context, sub *Submission) error
	ListSubmissions(ctx context.Context, funnelID string) ([]*Submission, error)
	RecordVariantEvent(ctx context.Context, ev VariantEvent) error
	GetVariantStats(ctx context.Context, funnelID, stepID string) ([]VariantStats, error)
	GetFunnelStats(ctx context.Context, funnelID string) (*FunnelStats, error)

	// Lifecycle
	Close() error
}
