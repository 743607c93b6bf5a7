package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who performed a recorded action.
type ActorRef struct {
	ID    uuid.UUID
	Email string
	Role  UserRole
}

// ActivityEvent captures audit-friendly information about a privileged
// action.
type ActivityEvent struct {
	Action     ActivityAction
	Actor      ActorRef
	Target     string
	Details    map[string]any
	IPAddress  string
	UserAgent  string
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing purposes. Recording is
// best-effort: callers log sink failures and move on, the audited action
// never rolls back.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// storeActivitySink persists events through the ActivityLogs repository.
type storeActivitySink struct {
	logs ActivityLogs
	now  func() time.Time
}

// NewStoreActivitySink returns a sink backed by the activity log table.
func NewStoreActivitySink(logs ActivityLogs) ActivitySink {
	return &storeActivitySink{
		logs: logs,
		now:  time.Now,
	}
}

func (s *storeActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	entry := &ActivityLogEntry{
		ActorID:   event.Actor.ID,
		Action:    event.Action,
		Target:    event.Target,
		Details:   event.Details,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		CreatedAt: &occurredAt,
	}

	return s.logs.Append(ctx, entry)
}
