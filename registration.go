package lifecycle

import (
	"context"
	"strings"
)

// Register validates draft locally, asks the backend to create the account
// and dispatch a verification code, and moves the session to
// pending_verification.
func (m *Manager) Register(ctx context.Context, draft RegistrationDraft) (Result, error) {
	req, err := draft.request(m.config.Password, m.config.PhoneRegion)
	if err != nil {
		return m.current(), err
	}

	op, err := m.begin(ctx, "register")
	if err != nil {
		return m.current(), err
	}
	defer m.end(op)

	if cur := m.snapshot(); cur.status.IsAuthenticated() {
		return m.current(), transitionError(cur.status, StatusPendingVerification, op.name)
	}

	pending, err := m.backend.Register(ctx, req)
	if err == nil && pending.PendingID == "" {
		err = newError(ErrInternal, "identity service returned no pending registration id", nil)
	}
	if err != nil {
		err = normalizeBackendError(err)
		return m.failed(ctx, op, err, "Registration failed", ActivityEvent{
			EventType: ActivityEventRegistrationFailure,
			Metadata:  map[string]any{"email": req.Email},
		}, nil)
	}

	return m.apply(ctx, op, func(st *state, cs *changeSet) error {
		if err := m.discard(st, cs, op.name); err != nil {
			return err
		}

		if err := m.machine.transition(st, cs, StatusPendingVerification, op.name, TransitionMetadata{
			Metadata: map[string]any{"email": req.Email},
		}); err != nil {
			return err
		}

		st.pendingEmail = req.Email
		st.pendingID = pending.PendingID
		st.workflow = WorkflowState{
			Kind:              WorkflowEmailVerification,
			Step:              StepAwaitingCode,
			AttemptsRemaining: m.config.Verification.MaxAttempts,
			ExpiresAt:         m.expiry(pending.ExpiresAt, m.config.Verification.TTL),
		}

		cs.notify(success("Check your inbox", "We sent a verification code to "+req.Email))
		cs.record(ActivityEvent{
			EventType: ActivityEventRegistrationStarted,
			Operation: op.name,
			Metadata:  map[string]any{"email": req.Email, "pending_id": pending.PendingID},
		})
		cs.effect(Navigate(cleanRoute(m.config.Routes.VerifyEmail)))
		return nil
	})
}

// VerifyEmail submits the emailed code. Expired or exhausted workflows fail
// locally without asking the backend.
func (m *Manager) VerifyEmail(ctx context.Context, code string) (Result, error) {
	if err := validateCode("code", code); err != nil {
		return m.current(), err
	}

	op, err := m.begin(ctx, "verify_email")
	if err != nil {
		return m.current(), err
	}
	defer m.end(op)

	cur := m.snapshot()
	if cur.status != StatusPendingVerification || cur.workflow.Kind != WorkflowEmailVerification {
		return m.current(), transitionError(cur.status, StatusAuthenticated, op.name)
	}

	if err := m.checkAttempts(ctx, op, cur.workflow, ActivityEventVerificationFailure); err != nil {
		return m.current(), err
	}

	if err := m.beginAttempt(ctx, op); err != nil {
		return m.current(), err
	}

	grant, err := m.backend.VerifyEmail(ctx, cur.pendingID, strings.TrimSpace(code))
	if err == nil {
		err = grant.validate()
	}
	if err != nil {
		err = normalizeBackendError(err)
		return m.failed(ctx, op, err, "Verification failed", ActivityEvent{
			EventType: ActivityEventVerificationFailure,
		}, func(st *state) {
			if st.workflow.Kind != WorkflowEmailVerification {
				return
			}
			st.fail(err)
			switch KindOf(err) {
			case KindInvalidCode:
				st.consumeAttempt()
			case KindExpired:
				st.workflow.Step = StepExpired
			case KindAttemptsExhausted:
				st.workflow.AttemptsRemaining = 0
				st.workflow.Step = StepExhausted
			}
		})
	}

	seq, err := m.storeCredential(ctx, op, grant.Credential)
	if err != nil {
		m.dropCredential(0, grant.Credential)
		return m.current(), err
	}

	res, err := m.apply(ctx, op, func(st *state, cs *changeSet) error {
		if err := m.establish(st, cs, grant, StatusAuthenticated, op.name); err != nil {
			return err
		}

		cs.notify(success("Email verified", "Welcome, "+grant.Identity.Name()))
		cs.record(ActivityEvent{
			EventType: ActivityEventEmailVerified,
			Operation: op.name,
			UserID:    grant.Identity.ID,
			ToStatus:  st.status,
		})
		cs.effect(Navigate(cleanRoute(m.config.Routes.Home)))
		return nil
	})
	if err != nil {
		m.dropCredential(seq, grant.Credential)
	}
	return res, err
}

// ResendVerification asks the backend for a new code and restarts the
// verification workflow with fresh attempts and expiry. It also recovers an
// exhausted or expired workflow.
func (m *Manager) ResendVerification(ctx context.Context) (Result, error) {
	op, err := m.begin(ctx, "resend_verification")
	if err != nil {
		return m.current(), err
	}
	defer m.end(op)

	cur := m.snapshot()
	if cur.status != StatusPendingVerification || cur.pendingID == "" {
		return m.current(), transitionError(cur.status, StatusPendingVerification, op.name)
	}

	pending, err := m.backend.ResendVerification(ctx, cur.pendingID)
	if err != nil {
		err = normalizeBackendError(err)
		return m.failed(ctx, op, err, "Could not resend the code", ActivityEvent{
			EventType: ActivityEventVerificationFailure,
		}, func(st *state) {
			if st.workflow.Kind == WorkflowEmailVerification {
				st.fail(err)
			}
		})
	}

	return m.apply(ctx, op, func(st *state, cs *changeSet) error {
		if pending.PendingID != "" {
			st.pendingID = pending.PendingID
		}
		st.workflow = WorkflowState{
			Kind:              WorkflowEmailVerification,
			Step:              StepAwaitingCode,
			AttemptsRemaining: m.config.Verification.MaxAttempts,
			ExpiresAt:         m.expiry(pending.ExpiresAt, m.config.Verification.TTL),
		}

		cs.notify(success("Verification code sent", "A new code is on its way to "+st.pendingEmail))
		cs.record(ActivityEvent{
			EventType: ActivityEventVerificationResent,
			Operation: op.name,
			Metadata:  map[string]any{"pending_id": st.pendingID},
		})
		return nil
	})
}

// checkAttempts fails locally when wf is exhausted or past its deadline,
// recording the terminal step.
func (m *Manager) checkAttempts(ctx context.Context, op operation, wf WorkflowState, eventType ActivityEventType) error {
	var err error
	var step WorkflowStep

	switch {
	case wf.Step == StepExhausted || wf.AttemptsRemaining <= 0:
		err = newError(ErrAttemptsExhausted, "", map[string]any{"workflow": wf.Kind})
		step = StepExhausted
	case wf.Step == StepExpired || wf.ExpiredAt(m.now()):
		err = newError(ErrExpired, "", map[string]any{"workflow": wf.Kind, "expired_at": wf.ExpiresAt})
		step = StepExpired
	default:
		return nil
	}

	_, ferr := m.failed(ctx, op, err, "", ActivityEvent{EventType: eventType}, func(st *state) {
		if st.workflow.Kind != wf.Kind {
			return
		}
		st.workflow.Step = step
		st.fail(err)
		if step == StepExhausted {
			st.workflow.AttemptsRemaining = 0
		}
	})
	return ferr
}
