package session

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventTransition       ActivityEventType = "session.transition"
	ActivityEventSignedIn         ActivityEventType = "session.signed_in"
	ActivityEventSignedOut        ActivityEventType = "session.signed_out"
	ActivityEventRefreshSucceeded ActivityEventType = "session.refresh.succeeded"
	ActivityEventRefreshFailed    ActivityEventType = "session.refresh.failed"
	ActivityEventRejected         ActivityEventType = "session.event.rejected"
)

// ActivityEvent describes something the machine did.
type ActivityEvent struct {
	EventType  ActivityEventType
	SessionID  string
	Event      string
	FromState  State
	ToState    State
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
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
