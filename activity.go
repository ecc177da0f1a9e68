package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventUserRegistered     ActivityEventType = "user.registered"
	ActivityEventUserStatusChanged  ActivityEventType = "user.status.changed"
	ActivityEventEmailVerified      ActivityEventType = "user.email.verified"
	ActivityEventLoginSuccess       ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure       ActivityEventType = "auth.login.failure"
	ActivityEventMFAChallenge       ActivityEventType = "auth.mfa.challenge"
	ActivityEventMFASuccess         ActivityEventType = "auth.mfa.success"
	ActivityEventMFAFailure         ActivityEventType = "auth.mfa.failure"
	ActivityEventTokenRefresh       ActivityEventType = "auth.token.refresh"
	ActivityEventLogout             ActivityEventType = "auth.logout"
	ActivityEventPasswordResetStart ActivityEventType = "auth.password.reset.requested"
	ActivityEventPasswordResetDone  ActivityEventType = "auth.password.reset"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	FromStatus UserStatus
	ToStatus   UserStatus
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
