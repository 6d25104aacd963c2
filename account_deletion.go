package lifecycle

import "context"

// RequestAccountDeletion opens the confirmation step. Nothing is sent to the
// backend until ConfirmAccountDeletion is called within the window.
func (m *Manager) RequestAccountDeletion(ctx context.Context) (Result, error) {
	op, err := m.begin(ctx, "request_account_deletion")
	if err != nil {
		return m.current(), err
	}
	defer m.end(op)

	return m.apply(ctx, op, func(st *state, cs *changeSet) error {
		if !st.status.IsAuthenticated() {
			return transitionError(st.status, StatusAnonymous, op.name)
		}

		if err := m.discard(st, cs, op.name); err != nil {
			return err
		}

		st.workflow = WorkflowState{
			Kind:      WorkflowAccountDeletion,
			Step:      StepAwaitingConfirmation,
			ExpiresAt: m.now().Add(m.config.Deletion.ConfirmWindow),
		}
		cs.record(ActivityEvent{
			EventType: ActivityEventDeletionRequested,
			Operation: op.name,
			UserID:    st.identity.ID,
		})
		return nil
	})
}

// ConfirmAccountDeletion deletes the account and ends the session. It fails
// with ErrInvalidTransition when no deletion was requested.
func (m *Manager) ConfirmAccountDeletion(ctx context.Context) (Result, error) {
	op, err := m.begin(ctx, "confirm_account_deletion")
	if err != nil {
		return m.current(), err
	}
	defer m.end(op)

	cur := m.snapshot()
	if !cur.status.IsAuthenticated() ||
		cur.workflow.Kind != WorkflowAccountDeletion ||
		cur.workflow.Step != StepAwaitingConfirmation {
		return m.current(), transitionError(cur.status, StatusAnonymous, op.name)
	}

	if cur.workflow.ExpiredAt(m.now()) {
		expired := newError(ErrExpired, "deletion confirmation window has passed", map[string]any{
			"expired_at": cur.workflow.ExpiresAt,
		})
		return m.failed(ctx, op, expired, "", ActivityEvent{
			EventType: ActivityEventDeletionFailure,
		}, func(st *state) {
			if st.workflow.Kind == WorkflowAccountDeletion {
				st.workflow.Step = StepExpired
				st.fail(expired)
			}
		})
	}

	credential, err := m.credential(ctx)
	if err != nil {
		if KindOf(err) == KindExpired {
			return m.expire(ctx, op, err)
		}
		return m.current(), err
	}

	userID := cur.identity.ID
	if err := m.backend.DeleteAccount(ctx, credential); err != nil {
		err = normalizeBackendError(err)
		if KindOf(err) == KindExpired {
			return m.expire(ctx, op, err)
		}
		return m.failed(ctx, op, err, "Account deletion failed", ActivityEvent{
			EventType: ActivityEventDeletionFailure,
		}, func(st *state) {
			if st.workflow.Kind == WorkflowAccountDeletion {
				st.fail(err)
			}
		})
	}

	// the account is gone even if op was abandoned meanwhile, so its session
	// ends regardless. A different user signed in since then is left alone.
	if ctx.Err() != nil {
		m.logger.Warn("account deleted after %s was cancelled", op.name)
	}

	res, ok := m.terminate(ctx, ending{reason: endDeleted, userID: userID})
	if !ok {
		m.logger.Info("account %s deleted; another session is active", userID)
	}
	return res, nil
}
