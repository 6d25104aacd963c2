package lifecycle

import (
	"context"
	"strings"
)

// RequestPasswordReset asks the backend to mail a reset link. The answer does
// not reveal whether the account exists: only transport failures are reported.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) (Result, error) {
	if err := validateEmail(email); err != nil {
		return m.current(), err
	}
	email = strings.ToLower(strings.TrimSpace(email))

	op, err := m.begin(ctx, "request_password_reset")
	if err != nil {
		return m.current(), err
	}
	defer m.end(op)

	if cur := m.snapshot(); cur.status.IsAuthenticated() {
		return m.current(), transitionError(cur.status, cur.status, op.name)
	}

	if err := m.backend.RequestPasswordReset(ctx, email); err != nil {
		err = normalizeBackendError(err)
		switch KindOf(err) {
		case KindNetwork, KindAbandoned:
			return m.failed(ctx, op, err, "Could not request a password reset", ActivityEvent{
				EventType: ActivityEventPasswordResetFailure,
			}, nil)
		default:
			m.logger.Debug("password reset request answered with %s, reporting success", KindOf(err))
		}
	}

	return m.apply(ctx, op, func(st *state, cs *changeSet) error {
		if err := m.discard(st, cs, op.name); err != nil {
			return err
		}

		st.workflow = WorkflowState{
			Kind:              WorkflowPasswordReset,
			Step:              StepRequestSent,
			AttemptsRemaining: m.config.Reset.MaxAttempts,
			ExpiresAt:         m.now().Add(m.config.Reset.TTL),
		}

		cs.notify(success("Check your inbox", "If an account exists for "+email+", a reset link is on its way."))
		cs.record(ActivityEvent{
			EventType: ActivityEventPasswordResetRequest,
			Operation: op.name,
		})
		return nil
	})
}

// SubmitResetToken accepts the token from a reset link. It works on a fresh
// client as well as after RequestPasswordReset.
func (m *Manager) SubmitResetToken(ctx context.Context, token string) (Result, error) {
	if err := validateCode("token", token); err != nil {
		return m.current(), err
	}

	op, err := m.begin(ctx, "submit_reset_token")
	if err != nil {
		return m.current(), err
	}
	defer m.end(op)

	return m.apply(ctx, op, func(st *state, cs *changeSet) error {
		if st.status.IsAuthenticated() {
			return transitionError(st.status, st.status, op.name)
		}

		if err := m.discard(st, cs, op.name); err != nil {
			return err
		}

		st.resetToken = strings.TrimSpace(token)
		st.workflow = WorkflowState{
			Kind:              WorkflowPasswordReset,
			Step:              StepTokenValidated,
			AttemptsRemaining: m.config.Reset.MaxAttempts,
			ExpiresAt:         m.now().Add(m.config.Reset.TTL),
		}
		cs.effect(Navigate(cleanRoute(m.config.Routes.ResetPassword)))
		return nil
	})
}

// CompletePasswordReset sets the new password. Policy and confirmation are
// checked locally; on success the caller is sent to log in.
func (m *Manager) CompletePasswordReset(ctx context.Context, newPassword, confirmPassword string) (Result, error) {
	if err := validateNewPassword(m.config.Password, newPassword, confirmPassword); err != nil {
		return m.current(), err
	}

	op, err := m.begin(ctx, "complete_password_reset")
	if err != nil {
		return m.current(), err
	}
	defer m.end(op)

	cur := m.snapshot()
	if cur.workflow.Kind != WorkflowPasswordReset || cur.resetToken == "" {
		return m.current(), transitionError(cur.status, cur.status, op.name)
	}
	if cur.workflow.Step == StepCompleted {
		return m.current(), transitionError(cur.status, cur.status, op.name)
	}

	if err := m.checkAttempts(ctx, op, cur.workflow, ActivityEventPasswordResetFailure); err != nil {
		return m.current(), err
	}

	if err := m.beginAttempt(ctx, op); err != nil {
		return m.current(), err
	}

	if err := m.backend.ResetPassword(ctx, cur.resetToken, newPassword); err != nil {
		err = normalizeBackendError(err)
		return m.failed(ctx, op, err, "Password reset failed", ActivityEvent{
			EventType: ActivityEventPasswordResetFailure,
		}, func(st *state) {
			if st.workflow.Kind != WorkflowPasswordReset {
				return
			}
			st.fail(err)
			switch KindOf(err) {
			case KindInvalidToken:
				st.consumeAttempt()
			case KindExpired:
				st.workflow.Step = StepExpired
			}
		})
	}

	return m.apply(ctx, op, func(st *state, cs *changeSet) error {
		st.resetToken = ""
		st.workflow = WorkflowState{Kind: WorkflowPasswordReset, Step: StepCompleted}

		cs.notify(success("Password updated", "Sign in with your new password."))
		cs.record(ActivityEvent{
			EventType: ActivityEventPasswordResetSuccess,
			Operation: op.name,
		})
		cs.effect(Navigate(cleanRoute(m.config.Routes.Login)))
		return nil
	})
}
