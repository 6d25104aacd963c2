package lifecycle

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventStatusChanged         ActivityEventType = "session.status.changed"
	ActivityEventSessionExpired        ActivityEventType = "session.expired"
	ActivityEventLoginSuccess          ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure          ActivityEventType = "auth.login.failure"
	ActivityEventLogout                ActivityEventType = "auth.logout"
	ActivityEventRegistrationStarted   ActivityEventType = "auth.registration.started"
	ActivityEventRegistrationFailure   ActivityEventType = "auth.registration.failure"
	ActivityEventEmailVerified         ActivityEventType = "auth.email.verified"
	ActivityEventVerificationFailure   ActivityEventType = "auth.email.verification_failure"
	ActivityEventVerificationResent    ActivityEventType = "auth.email.verification_resent"
	ActivityEventPasswordResetRequest  ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordResetSuccess  ActivityEventType = "auth.password.reset"
	ActivityEventPasswordResetFailure  ActivityEventType = "auth.password.reset_failure"
	ActivityEventPasswordChanged       ActivityEventType = "auth.password.changed"
	ActivityEventPasswordChangeFailure ActivityEventType = "auth.password.change_failure"
	ActivityEventDeletionRequested     ActivityEventType = "account.deletion.requested"
	ActivityEventAccountDeleted        ActivityEventType = "account.deleted"
	ActivityEventDeletionFailure       ActivityEventType = "account.deletion.failure"
	ActivityEventSessionRestored       ActivityEventType = "session.restored"
	ActivityEventWorkflowAbandoned     ActivityEventType = "workflow.abandoned"
	ActivityEventOperationRejected     ActivityEventType = "operation.rejected"
)

// ActivityEvent captures audit-friendly information about a lifecycle action.
type ActivityEvent struct {
	EventType   ActivityEventType
	Actor       ActorRef
	OperationID string
	Operation   string
	UserID      string
	FromStatus  Status
	ToStatus    Status
	ErrorKind   Kind
	Metadata    map[string]any
	OccurredAt  time.Time
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

// MultiActivitySink fans each event out to every sink in order. All sinks
// receive the event; the first error is returned.
func MultiActivitySink(sinks ...ActivitySink) ActivitySink {
	var active []ActivitySink
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
		var first error
		for _, s := range active {
			if err := s.Record(ctx, event); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
