package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	lifecycle "github.com/goliatone/go-auth-lifecycle"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBackend implements lifecycle.Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Register(ctx context.Context, req lifecycle.RegistrationRequest) (lifecycle.PendingRegistration, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(lifecycle.PendingRegistration), args.Error(1)
}

func (m *MockBackend) VerifyEmail(ctx context.Context, pendingID, code string) (lifecycle.Grant, error) {
	args := m.Called(ctx, pendingID, code)
	return args.Get(0).(lifecycle.Grant), args.Error(1)
}

func (m *MockBackend) ResendVerification(ctx context.Context, pendingID string) (lifecycle.PendingRegistration, error) {
	args := m.Called(ctx, pendingID)
	return args.Get(0).(lifecycle.PendingRegistration), args.Error(1)
}

func (m *MockBackend) Login(ctx context.Context, identifier, password string) (lifecycle.Grant, error) {
	args := m.Called(ctx, identifier, password)
	return args.Get(0).(lifecycle.Grant), args.Error(1)
}

func (m *MockBackend) Logout(ctx context.Context, credential string) error {
	args := m.Called(ctx, credential)
	return args.Error(0)
}

func (m *MockBackend) RequestPasswordReset(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockBackend) ResetPassword(ctx context.Context, token, newPassword string) error {
	args := m.Called(ctx, token, newPassword)
	return args.Error(0)
}

func (m *MockBackend) ChangePassword(ctx context.Context, credential, currentPassword, newPassword string) error {
	args := m.Called(ctx, credential, currentPassword, newPassword)
	return args.Error(0)
}

func (m *MockBackend) DeleteAccount(ctx context.Context, credential string) error {
	args := m.Called(ctx, credential)
	return args.Error(0)
}

// recorder captures notifications and activity events.
type recorder struct {
	mu            sync.Mutex
	notifications []lifecycle.Notification
	events        []lifecycle.ActivityEvent
}

func (r *recorder) Notify(n lifecycle.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recorder) Record(_ context.Context, event lifecycle.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) Notifications() []lifecycle.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]lifecycle.Notification(nil), r.notifications...)
}

func (r *recorder) NotificationsOf(kind lifecycle.NotificationKind) []lifecycle.Notification {
	var out []lifecycle.Notification
	for _, n := range r.Notifications() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) Events(eventType lifecycle.ActivityEventType) []lifecycle.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []lifecycle.ActivityEvent
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = nil
	r.events = nil
}

// clock is a settable test clock.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	manager *lifecycle.Manager
	backend *MockBackend
	store   *lifecycle.MemoryTokenStore
	rec     *recorder
	clock   *clock
}

func newFixture(t *testing.T, opts ...lifecycle.Option) *fixture {
	t.Helper()

	f := &fixture{
		backend: &MockBackend{},
		store:   lifecycle.NewMemoryTokenStore(),
		rec:     &recorder{},
		clock:   newClock(),
	}
	// backend logout runs in the background after every sign out
	f.backend.On("Logout", mock.Anything, mock.Anything).Return(nil).Maybe()

	base := []lifecycle.Option{
		lifecycle.WithTokenStore(f.store),
		lifecycle.WithNotificationSink(f.rec),
		lifecycle.WithActivitySink(f.rec),
		lifecycle.WithClock(f.clock.Now),
		lifecycle.WithLogger(nopLogger{}),
	}

	manager, err := lifecycle.NewManager(f.backend, append(base, opts...)...)
	require.NoError(t, err)
	f.manager = manager

	t.Cleanup(func() {
		_ = manager.Close()
	})
	return f
}

func (f *fixture) storedCredential(t *testing.T) (string, bool) {
	t.Helper()
	token, ok, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return token, ok
}

// signIn logs in through the mock backend with the given roles.
func (f *fixture) signIn(t *testing.T, roles ...string) lifecycle.Grant {
	t.Helper()

	grant := grantFor("user-1", "ada", "cred-1", roles...)
	f.backend.On("Login", mock.Anything, "ada", "correct-horse").Return(grant, nil).Once()

	_, err := f.manager.Login(context.Background(), "ada", "correct-horse")
	require.NoError(t, err)
	f.rec.Reset()
	return grant
}

func grantFor(id, username, credential string, roles ...string) lifecycle.Grant {
	return lifecycle.Grant{
		Credential: credential,
		Identity: lifecycle.Identity{
			ID:       id,
			Username: username,
			Email:    username + "@example.com",
			Roles:    roles,
		},
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
