package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"
)

type endReason string

const (
	endLogout  endReason = "logout"
	endExpired endReason = "session_expired"
	endDeleted endReason = "account_deleted"
)

// Login authenticates with a username or email. Blank fields fail locally
// with ErrValidation. A pending registration is discarded on success.
func (m *Manager) Login(ctx context.Context, identifier, password string) (Result, error) {
	if err := validateLogin(identifier, password); err != nil {
		return m.current(), err
	}

	op, err := m.begin(ctx, "login")
	if err != nil {
		return m.current(), err
	}
	defer m.end(op)

	if cur := m.snapshot(); cur.status.IsAuthenticated() {
		return m.current(), transitionError(cur.status, StatusAuthenticated, op.name)
	}

	grant, err := m.backend.Login(ctx, strings.TrimSpace(identifier), password)
	if err == nil {
		err = grant.validate()
	}
	if err != nil {
		err = normalizeBackendError(err)
		return m.failed(ctx, op, err, "Sign in failed", ActivityEvent{
			EventType: ActivityEventLoginFailure,
		}, nil)
	}

	seq, err := m.storeCredential(ctx, op, grant.Credential)
	if err != nil {
		m.dropCredential(0, grant.Credential)
		if KindOf(err) == KindInternal {
			m.notifier.Notify(failure("Sign in failed", err))
		}
		return m.current(), err
	}

	res, err := m.apply(ctx, op, func(st *state, cs *changeSet) error {
		if err := m.discard(st, cs, op.name); err != nil {
			return err
		}

		if err := m.establish(st, cs, grant, statusFor(grant.Identity), op.name); err != nil {
			return err
		}

		cs.notify(success("Signed in", "Welcome back, "+grant.Identity.Name()))
		cs.record(ActivityEvent{
			EventType: ActivityEventLoginSuccess,
			Operation: op.name,
			UserID:    grant.Identity.ID,
			ToStatus:  st.status,
		})

		target := m.resume
		if target == "" {
			target = cleanRoute(m.config.Routes.Home)
		}
		m.resume = ""
		cs.effect(Navigate(target))
		if m.config.ReloadAfterLogin {
			cs.effect(Reload())
		}
		return nil
	})
	if err != nil {
		// the backend issued a credential we are not keeping
		m.dropCredential(seq, grant.Credential)
		if KindOf(err) == KindInternal {
			m.notifier.Notify(failure("Sign in failed", err))
		}
	}
	return res, err
}

// Logout ends the session. It always succeeds locally and is idempotent; the
// backend is asked to invalidate the credential in the background.
func (m *Manager) Logout(ctx context.Context) Result {
	res, _ := m.terminate(ctx, ending{reason: endLogout})
	return res
}

// SessionExpired ends the session like Logout and raises a warning.
func (m *Manager) SessionExpired(ctx context.Context) Result {
	res, _ := m.terminate(ctx, ending{reason: endExpired})
	return res
}

// AbandonWorkflow drops the active workflow and discards any result still in
// flight. An unverified registration is dropped as well.
func (m *Manager) AbandonWorkflow(ctx context.Context) Result {
	m.mu.Lock()
	m.generation++
	m.releaseLocked()

	if !m.st.workflow.Active() {
		res := Result{Session: m.st.session()}
		m.mu.Unlock()
		return res
	}

	next := m.st.clone()
	cs := &changeSet{}
	if err := m.discard(&next, cs, "abandon_workflow"); err != nil {
		m.logger.Error("abandon workflow: %v", err)
	}
	if next.status == StatusAnonymous && m.st.status == StatusPendingVerification {
		cs.effect(Navigate(cleanRoute(m.config.Routes.Register)))
	}

	m.st = next
	m.enqueueLocked(ctx, "", true, *cs)
	res := Result{Session: next.session(), Effects: cs.effects}
	m.mu.Unlock()

	m.flush()
	return res
}

// ending describes how terminate ends a session.
type ending struct {
	reason endReason
	// op, when set, must still be current
	op *operation
	// held reports a stored credential the state does not know about yet
	held bool
	// userID, when set, only ends an anonymous session or one that belongs
	// to this user
	userID string
}

// terminate resets the session to anonymous and then clears the token store.
// The state flips under the lock; the store is cleared after it is released.
func (m *Manager) terminate(ctx context.Context, e ending) (Result, bool) {
	ctx = context.WithoutCancel(ctx)

	m.mu.Lock()
	if e.op != nil && e.op.gen != m.generation {
		res := Result{Session: m.st.session()}
		m.mu.Unlock()
		return res, false
	}
	if e.userID != "" && !m.st.ownedBy(e.userID) {
		res := Result{Session: m.st.session()}
		m.mu.Unlock()
		return res, false
	}

	m.generation++
	m.releaseLocked()
	seq := m.reserveWriteLocked()

	prev := m.st.clone()
	held := e.held || prev.hasCredential

	next := prev.clone()
	cs := &changeSet{}
	next.clearWorkflow()
	next.clearPending()
	next.identity = nil
	next.hasCredential = false
	if err := m.machine.transition(&next, cs, StatusAnonymous, string(e.reason), TransitionMetadata{Reason: string(e.reason)}); err != nil {
		m.logger.Error("%s: %v", e.reason, err)
		next = anonymousState()
	}
	m.resume = ""

	userID := ""
	if prev.identity != nil {
		userID = prev.identity.ID
	}

	routes := m.config.Routes
	switch e.reason {
	case endLogout:
		if prev.status != StatusAnonymous {
			cs.notify(success("Signed out", "You have been signed out."))
		}
		cs.record(ActivityEvent{EventType: ActivityEventLogout, Operation: string(e.reason), UserID: userID, FromStatus: prev.status})
		cs.effect(Navigate(cleanRoute(routes.Home)))
	case endExpired:
		if prev.status.IsAuthenticated() || held {
			cs.notify(warning("Session expired", "Please sign in again."))
		}
		cs.record(ActivityEvent{EventType: ActivityEventSessionExpired, Operation: string(e.reason), UserID: userID, FromStatus: prev.status})
		cs.effect(Navigate(cleanRoute(routes.Login)))
	case endDeleted:
		cs.notify(warning("Account deleted", "Your account and its data have been removed."))
		if userID == "" {
			userID = e.userID
		}
		cs.record(ActivityEvent{EventType: ActivityEventAccountDeleted, Operation: string(e.reason), UserID: userID, FromStatus: prev.status})
		cs.effect(Navigate(cleanRoute(routes.Home)))
	}

	changed := prev.status != next.status || prev.workflow.Active() || held
	m.st = next
	opID := ""
	if e.op != nil {
		opID = e.op.id
	}
	m.enqueueLocked(ctx, opID, changed, *cs)
	res := Result{Session: next.session(), Effects: cs.effects}
	m.mu.Unlock()

	m.flush()
	m.clearCredential(ctx, seq, e.reason)
	return res, true
}

func (m *Manager) releaseLocked() {
	m.busy = false
	m.slotName = ""
}

// invalidate asks the backend to drop credential without blocking the caller.
func (m *Manager) invalidate(credential string) {
	if credential == "" {
		return
	}

	m.background.Add(1)
	go func() {
		defer m.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.config.LogoutTimeout)
		defer cancel()

		if err := m.backend.Logout(ctx, credential); err != nil {
			m.logger.Warn("backend logout failed: %v", err)
		}
	}()
}

// expire ends the session on behalf of op after the backend reported the
// credential as expired.
func (m *Manager) expire(ctx context.Context, op operation, cause error) (Result, error) {
	res, ok := m.terminate(ctx, ending{reason: endExpired, op: &op})
	if !ok {
		return res, m.abandoned(ctx, op)
	}
	if KindOf(cause) != KindExpired {
		cause = newError(ErrExpired, "session expired", nil)
	}
	return res, cause
}

// Hydrate restores the session from the token store. An expired or
// undecodable credential, or one the store reports as ErrUnreadableCredential,
// is cleared and reported as an expired session. Any other storage failure is
// returned as ErrCredentialStorage and leaves the store untouched.
func (m *Manager) Hydrate(ctx context.Context) (Result, error) {
	op, err := m.begin(ctx, "hydrate")
	if err != nil {
		return m.current(), err
	}
	defer m.end(op)

	if m.snapshot().status.IsAuthenticated() {
		return m.current(), nil
	}

	token, ok, err := m.store.Load(ctx)
	if errors.Is(err, ErrUnreadableCredential) {
		m.logger.Info("stored credential unreadable: %v", err)
		res, _ := m.terminate(ctx, ending{reason: endExpired, op: &op, held: true})
		return res, nil
	}
	if err != nil {
		return m.current(), wrapError(ErrCredentialStorage, err, map[string]any{"operation": op.name})
	}
	if !ok || token == "" {
		return m.current(), nil
	}

	info, err := m.inspector.Inspect(token)
	if err != nil || info.ExpiredAt(m.now()) {
		if err != nil {
			m.logger.Info("stored credential rejected: %v", err)
		}
		res, _ := m.terminate(ctx, ending{reason: endExpired, op: &op, held: true})
		return res, nil
	}

	return m.apply(ctx, op, func(st *state, cs *changeSet) error {
		if err := m.discard(st, cs, op.name); err != nil {
			return err
		}
		grant := Grant{Identity: info.Identity, Credential: token}
		if err := m.establish(st, cs, grant, statusFor(info.Identity), op.name); err != nil {
			return err
		}
		cs.record(ActivityEvent{
			EventType: ActivityEventSessionRestored,
			Operation: op.name,
			UserID:    info.Identity.ID,
			ToStatus:  st.status,
		})
		return nil
	})
}

// CheckCredential expires an authenticated session whose stored credential
// is gone or past its expiry. Credentials the inspector cannot read are left
// alone; the backend rejects them on the next authenticated call.
func (m *Manager) CheckCredential(ctx context.Context) (Result, error) {
	if !m.snapshot().status.IsAuthenticated() {
		return m.current(), nil
	}

	token, ok, err := m.store.Load(ctx)
	if errors.Is(err, ErrUnreadableCredential) {
		return m.SessionExpired(ctx), nil
	}
	if err != nil {
		return m.current(), wrapError(ErrCredentialStorage, err, nil)
	}

	if !ok || token == "" {
		return m.SessionExpired(ctx), nil
	}

	info, err := m.inspector.Inspect(token)
	if err != nil {
		m.logger.Debug("credential not inspectable: %v", err)
		return m.current(), nil
	}

	if info.ExpiredAt(m.now()) {
		return m.SessionExpired(ctx), nil
	}
	return m.current(), nil
}

// Watch runs CheckCredential every interval until ctx is done.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.CheckCredential(ctx); err != nil {
				m.logger.Warn("credential check failed: %v", err)
			}
		}
	}
}
