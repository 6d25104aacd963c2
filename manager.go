package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

// Option customizes Manager construction.
type Option func(*Manager)

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithLogger overrides the logger used for sink and storage failures.
func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNotificationSink sets where user facing outcomes are written.
func WithNotificationSink(sink NotificationSink) Option {
	return func(m *Manager) {
		m.notifier = normalizeNotificationSink(sink)
	}
}

// WithActivitySink sets the ActivitySink used to publish lifecycle events.
func WithActivitySink(sink ActivitySink) Option {
	return func(m *Manager) {
		m.activity = normalizeActivitySink(sink)
	}
}

// WithCredentialInspector overrides how stored credentials are decoded.
func WithCredentialInspector(inspector CredentialInspector) Option {
	return func(m *Manager) {
		if inspector != nil {
			m.inspector = inspector
		}
	}
}

// WithTokenStore sets the credential store. Defaults to a MemoryTokenStore.
func WithTokenStore(store TokenStore) Option {
	return func(m *Manager) {
		if store != nil {
			m.store = store
		}
	}
}

// WithConfig replaces the default policies.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.config = cfg
	}
}

// Manager owns the session lifecycle. All mutating operations are serialized:
// while one is waiting on the backend, any other fails fast with
// ErrOperationInFlight. Logout, SessionExpired and AbandonWorkflow never wait
// and discard whatever result is still in flight.
type Manager struct {
	backend   Backend
	store     TokenStore
	inspector CredentialInspector
	notifier  NotificationSink
	activity  ActivitySink
	logger    Logger
	now       func() time.Time
	config    Config
	machine   *sessionStateMachine
	routes    *RouteAccessController

	mu          sync.Mutex
	st          state
	generation  uint64
	busy        bool
	slot        uint64
	slotSeq     uint64
	slotName    string
	resume      string
	subscribers []subscriber
	subSeq      uint64
	outbox      []delivery
	dispatching bool

	// store writes run outside mu in reservation order; storeSeq is guarded
	// by mu and storeApplied by storeMu
	storeMu      sync.Mutex
	storeSeq     uint64
	storeApplied uint64

	background sync.WaitGroup
}

type subscriber struct {
	id uint64
	fn func(Session)
}

type delivery struct {
	ctx         context.Context
	operationID string
	session     Session
	publish     bool
	changes     changeSet
}

type operation struct {
	name string
	id   string
	gen  uint64
	slot uint64
}

// NewManager builds a manager in the anonymous state. Call Hydrate to restore
// a stored credential.
func NewManager(backend Backend, opts ...Option) (*Manager, error) {
	if backend == nil {
		return nil, newError(ErrInternal, "backend is required", nil)
	}

	m := &Manager{
		backend:   backend,
		store:     NewMemoryTokenStore(),
		inspector: NewJWTInspector(),
		notifier:  noopNotificationSink{},
		activity:  noopActivitySink{},
		logger:    defLogger{},
		now:       time.Now,
		config:    DefaultConfig(),
		st:        anonymousState(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if err := m.config.Validate(); err != nil {
		return nil, validationError("invalid configuration", err)
	}

	m.machine = newSessionStateMachine(m.now, m.activity, m.logger)
	m.routes = NewRouteAccessController(m.config.Routes)
	return m, nil
}

// Session returns a snapshot of the current state.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.session()
}

// Config returns the policies in use.
func (m *Manager) Config() Config {
	return m.config
}

// Subscribe registers fn to receive a snapshot after every committed change,
// in commit order. fn may read the manager but should not block.
func (m *Manager) Subscribe(fn func(Session)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	m.mu.Lock()
	m.subSeq++
	id := m.subSeq
	m.subscribers = append(m.subscribers, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, s := range m.subscribers {
				if s.id == id {
					m.subscribers = append(m.subscribers[:i:i], m.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// Guard decides whether path is reachable with the current session. A login
// redirect remembers the requested location so the next login returns to it.
func (m *Manager) Guard(path string) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.routes.Decide(path, m.st.session())
	if d.Resume != "" {
		m.resume = safeResume(d.Resume)
	}
	return d
}

// Close waits for background credential invalidation calls to finish.
func (m *Manager) Close() error {
	m.background.Wait()
	return nil
}

func (m *Manager) current() Result {
	return Result{Session: m.Session()}
}

func (m *Manager) snapshot() state {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.clone()
}

// begin takes the single writer slot for name.
func (m *Manager) begin(ctx context.Context, name string) (operation, error) {
	m.mu.Lock()

	if m.busy {
		pending := m.slotName
		m.enqueueLocked(ctx, "", false, changeSet{events: []ActivityEvent{{
			EventType: ActivityEventOperationRejected,
			Operation: name,
			ErrorKind: KindConflict,
			Metadata:  map[string]any{"pending": pending},
		}}})
		m.mu.Unlock()
		m.flush()

		return operation{}, newError(ErrOperationInFlight, "", map[string]any{
			"operation": name,
			"pending":   pending,
		})
	}

	m.slotSeq++
	m.busy = true
	m.slot = m.slotSeq
	m.slotName = name

	op := operation{
		name: name,
		id:   uuid.NewString(),
		gen:  m.generation,
		slot: m.slotSeq,
	}
	m.mu.Unlock()
	return op, nil
}

// end releases the slot if op still owns it.
func (m *Manager) end(op operation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy && m.slot == op.slot {
		m.busy = false
		m.slotName = ""
	}
}

// apply runs fn on a copy of the state and commits the copy only when fn
// succeeds, the session invariant holds and op was not abandoned meanwhile.
func (m *Manager) apply(ctx context.Context, op operation, fn func(st *state, cs *changeSet) error) (Result, error) {
	m.mu.Lock()

	if op.gen != m.generation || ctx.Err() != nil {
		res := Result{Session: m.st.session()}
		m.mu.Unlock()
		return res, m.abandoned(ctx, op)
	}

	next := m.st.clone()
	cs := &changeSet{}
	if err := fn(&next, cs); err != nil {
		res := Result{Session: m.st.session()}
		m.mu.Unlock()
		return res, err
	}

	snap := next.session()
	if err := snap.Validate(); err != nil {
		res := Result{Session: m.st.session()}
		m.mu.Unlock()
		m.logger.Error("%s produced an invalid session: %v", op.name, err)
		return res, wrapError(ErrInternal, err, map[string]any{"operation": op.name})
	}

	m.st = next
	m.enqueueLocked(ctx, op.id, true, *cs)
	m.mu.Unlock()

	m.flush()
	return Result{Session: snap, Effects: cs.effects}, nil
}

// failed records a failure. The state only changes through mutate, which
// updates workflow bookkeeping such as attempts and the last error.
func (m *Manager) failed(ctx context.Context, op operation, err error, summary string, event ActivityEvent, mutate func(st *state)) (Result, error) {
	switch KindOf(err) {
	case KindNetwork, KindInternal:
		m.logger.Warn("%s failed: %s details=%s", op.name, errorMessage(err), print.MaybePrettyJSON(errorMetadata(err)))
	}

	res, applyErr := m.apply(ctx, op, func(st *state, cs *changeSet) error {
		if mutate != nil {
			mutate(st)
		}
		if summary != "" && notifiable(err) {
			cs.notify(failure(summary, err))
		}
		event.Operation = op.name
		event.ErrorKind = KindOf(err)
		if st.identity != nil {
			event.UserID = st.identity.ID
		}
		cs.record(event)
		return nil
	})
	if applyErr != nil {
		return res, applyErr
	}
	return res, err
}

// beginAttempt clears the last error of the active workflow.
func (m *Manager) beginAttempt(ctx context.Context, op operation) error {
	if m.snapshot().workflow.LastError == nil {
		return nil
	}
	_, err := m.apply(ctx, op, func(st *state, _ *changeSet) error {
		st.workflow.LastError = nil
		return nil
	})
	return err
}

func (m *Manager) abandoned(ctx context.Context, op operation) error {
	meta := map[string]any{"operation": op.name}
	if err := ctx.Err(); err != nil {
		return wrapError(ErrAbandoned, err, meta)
	}
	return newError(ErrAbandoned, "", meta)
}

func notifiable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindConflict, KindAbandoned, KindNone:
		return false
	default:
		return true
	}
}

// discard drops the active workflow. A pending registration goes with it and
// the session falls back to anonymous.
func (m *Manager) discard(st *state, cs *changeSet, operation string) error {
	if st.workflow.Active() {
		cs.record(ActivityEvent{
			EventType: ActivityEventWorkflowAbandoned,
			Operation: operation,
			Metadata: map[string]any{
				"kind": st.workflow.Kind,
				"step": st.workflow.Step,
			},
		})
	}
	st.clearWorkflow()

	if st.status == StatusPendingVerification {
		st.clearPending()
		return m.machine.transition(st, cs, StatusAnonymous, operation, TransitionMetadata{
			Reason: "pending registration discarded",
		})
	}
	return nil
}

// establish moves st into an authenticated status for grant. The credential
// must already be in the token store.
func (m *Manager) establish(st *state, cs *changeSet, grant Grant, target Status, operation string) error {
	if err := m.machine.check(st.status, target, operation); err != nil {
		return err
	}

	st.clearWorkflow()
	st.clearPending()
	st.identity = grant.Identity.clone()
	st.hasCredential = true

	return m.machine.transition(st, cs, target, operation, TransitionMetadata{
		Metadata: map[string]any{"roles": grant.Identity.Roles},
	})
}

// reserveWriteLocked hands out the position of the next token store write.
func (m *Manager) reserveWriteLocked() uint64 {
	m.storeSeq++
	return m.storeSeq
}

// storeCredential saves the credential of op without holding the state lock.
// The write is skipped when a later write or clear has already run, which
// only happens once op was abandoned.
func (m *Manager) storeCredential(ctx context.Context, op operation, credential string) (uint64, error) {
	m.mu.Lock()
	if op.gen != m.generation || ctx.Err() != nil {
		m.mu.Unlock()
		return 0, m.abandoned(ctx, op)
	}
	seq := m.reserveWriteLocked()
	m.mu.Unlock()

	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	if seq < m.storeApplied {
		return 0, m.abandoned(ctx, op)
	}
	if err := m.store.Save(ctx, credential); err != nil {
		return 0, wrapError(ErrCredentialStorage, err, map[string]any{"operation": op.name})
	}
	m.storeApplied = seq
	return seq, nil
}

// dropCredential undoes storeCredential after the commit failed: the stored
// value is cleared unless a later write replaced it, and the backend is asked
// to invalidate the credential.
func (m *Manager) dropCredential(seq uint64, credential string) {
	if seq != 0 {
		m.storeMu.Lock()
		if m.storeApplied == seq {
			if err := m.store.Clear(context.Background()); err != nil {
				m.logger.Error("could not clear uncommitted credential: %v", err)
			}
		}
		m.storeMu.Unlock()
	}
	m.invalidate(credential)
}

// clearCredential empties the token store on behalf of the write reserved at
// seq. A busy store is cleared in the background once the pending write is
// done, so ending a session never waits on storage.
func (m *Manager) clearCredential(ctx context.Context, seq uint64, reason endReason) {
	if m.storeMu.TryLock() {
		m.clearCredentialLocked(ctx, seq, reason)
		return
	}

	m.background.Add(1)
	go func() {
		defer m.background.Done()
		m.storeMu.Lock()
		m.clearCredentialLocked(ctx, seq, reason)
	}()
}

// clearCredentialLocked runs with storeMu held and releases it.
func (m *Manager) clearCredentialLocked(ctx context.Context, seq uint64, reason endReason) {
	if seq < m.storeApplied {
		// a newer session already owns the store
		m.storeMu.Unlock()
		return
	}
	m.storeApplied = seq

	token, ok, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("%s: could not read stored credential: %v", reason, err)
	}
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("%s: could not clear stored credential: %v", reason, err)
	}
	m.storeMu.Unlock()

	if ok && token != "" && reason != endDeleted {
		m.invalidate(token)
	}
}

// credential loads the stored credential for an authenticated backend call.
// An unreadable credential counts as expired.
func (m *Manager) credential(ctx context.Context) (string, error) {
	token, ok, err := m.store.Load(ctx)
	if errors.Is(err, ErrUnreadableCredential) {
		return "", wrapError(ErrExpired, err, map[string]any{"reason": "unreadable credential"})
	}
	if err != nil {
		return "", wrapError(ErrCredentialStorage, err, nil)
	}
	if !ok || token == "" {
		return "", newError(ErrExpired, "no stored credential", nil)
	}
	return token, nil
}

// expiry picks the backend deadline when present, otherwise now+ttl.
func (m *Manager) expiry(deadline time.Time, ttl time.Duration) time.Time {
	if !deadline.IsZero() {
		return deadline
	}
	return m.now().Add(ttl)
}

func (m *Manager) enqueueLocked(ctx context.Context, operationID string, publish bool, cs changeSet) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.outbox = append(m.outbox, delivery{
		ctx:         context.WithoutCancel(ctx),
		operationID: operationID,
		session:     m.st.session(),
		publish:     publish,
		changes:     cs,
	})
}

// flush delivers queued changes in commit order. Deliveries queued by a
// subscriber while flushing are picked up by the goroutine already flushing.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.dispatching {
		m.mu.Unlock()
		return
	}
	m.dispatching = true

	for len(m.outbox) > 0 {
		d := m.outbox[0]
		m.outbox = m.outbox[1:]
		subs := append([]subscriber(nil), m.subscribers...)
		m.mu.Unlock()

		m.deliver(d, subs)

		m.mu.Lock()
	}

	m.dispatching = false
	m.mu.Unlock()
}

func (m *Manager) deliver(d delivery, subs []subscriber) {
	if d.publish {
		for _, s := range subs {
			s.fn(d.session)
		}
	}

	for _, n := range d.changes.notifications {
		m.notifier.Notify(n)
	}

	for _, event := range d.changes.events {
		if event.OperationID == "" {
			event.OperationID = d.operationID
		}
		m.machine.recordActivity(d.ctx, event)
	}
}
