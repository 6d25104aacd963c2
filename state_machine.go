package lifecycle

import (
	"context"
	"time"
)

// ActorRef identifies who or what triggered a transition.
type ActorRef struct {
	ID   string
	Type string
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// sessionStateMachine owns the status transition graph. It never touches
// storage or the backend; the Manager decides when to call it.
type sessionStateMachine struct {
	transitions  map[Status]map[Status]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

func newSessionStateMachine(now func() time.Time, sink ActivitySink, logger Logger) *sessionStateMachine {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = defLogger{}
	}
	return &sessionStateMachine{
		transitions: map[Status]map[Status]struct{}{
			StatusAnonymous: {
				StatusPendingVerification: {},
				StatusAuthenticated:       {},
				StatusAuthenticatedAdmin:  {},
			},
			StatusPendingVerification: {
				StatusAnonymous:     {},
				StatusAuthenticated: {},
			},
			StatusAuthenticated: {
				StatusAnonymous: {},
			},
			StatusAuthenticatedAdmin: {
				StatusAnonymous: {},
			},
		},
		now:          now,
		activitySink: normalizeActivitySink(sink),
		logger:       logger,
	}
}

func (sm *sessionStateMachine) canTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// check returns ErrInvalidTransition when operation would move the session
// along an edge that is not part of the graph.
func (sm *sessionStateMachine) check(from, to Status, operation string) error {
	if !sm.canTransition(from, to) {
		return transitionError(from, to, operation)
	}
	return nil
}

// transition moves st to target and queues the status event. Identity and
// credential fields are adjusted by the caller before the invariant check.
func (sm *sessionStateMachine) transition(st *state, cs *changeSet, target Status, operation string, meta TransitionMetadata) error {
	from := st.status
	if err := sm.check(from, target, operation); err != nil {
		return err
	}
	if from == target {
		return nil
	}

	st.status = target
	cs.changed = true

	event := ActivityEvent{
		EventType:  ActivityEventStatusChanged,
		Operation:  operation,
		FromStatus: from,
		ToStatus:   target,
		Metadata:   transitionMetadata(meta),
	}
	if st.identity != nil {
		event.UserID = st.identity.ID
	}
	cs.record(event)
	return nil
}

func (sm *sessionStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "client"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error: %v", err)
	}
}

func transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
