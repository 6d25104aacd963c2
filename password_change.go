package lifecycle

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
)

// ChangePassword changes the password of the signed in account. A mismatch
// or a policy failure is rejected locally and never reaches the backend.
func (m *Manager) ChangePassword(ctx context.Context, currentPassword, newPassword, confirmPassword string) (Result, error) {
	if err := validation.Validate(currentPassword, validation.Required); err != nil {
		return m.current(), validationError("current password is required", validation.Errors{"current_password": err})
	}
	if err := validateNewPassword(m.config.Password, newPassword, confirmPassword); err != nil {
		return m.current(), err
	}

	op, err := m.begin(ctx, "change_password")
	if err != nil {
		return m.current(), err
	}
	defer m.end(op)

	cur := m.snapshot()
	if !cur.status.IsAuthenticated() {
		return m.current(), transitionError(cur.status, cur.status, op.name)
	}

	credential, err := m.credential(ctx)
	if err != nil {
		if KindOf(err) == KindExpired {
			return m.expire(ctx, op, err)
		}
		return m.current(), err
	}

	if _, err := m.apply(ctx, op, func(st *state, cs *changeSet) error {
		if err := m.discard(st, cs, op.name); err != nil {
			return err
		}
		st.workflow = WorkflowState{Kind: WorkflowPasswordChange, Step: StepPending}
		return nil
	}); err != nil {
		return m.current(), err
	}

	if err := m.backend.ChangePassword(ctx, credential, currentPassword, newPassword); err != nil {
		err = normalizeBackendError(err)
		if KindOf(err) == KindExpired {
			return m.expire(ctx, op, err)
		}
		return m.failed(ctx, op, err, "Password change failed", ActivityEvent{
			EventType: ActivityEventPasswordChangeFailure,
		}, func(st *state) {
			if st.workflow.Kind == WorkflowPasswordChange {
				st.fail(err)
			}
		})
	}

	return m.apply(ctx, op, func(st *state, cs *changeSet) error {
		st.workflow = WorkflowState{Kind: WorkflowPasswordChange, Step: StepCompleted}

		cs.notify(success("Password changed", "Use your new password next time you sign in."))
		cs.record(ActivityEvent{
			EventType: ActivityEventPasswordChanged,
			Operation: op.name,
			UserID:    st.identity.ID,
		})
		return nil
	})
}
