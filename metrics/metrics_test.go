package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	lifecycle "github.com/goliatone/go-auth-lifecycle"
	"github.com/goliatone/go-auth-lifecycle/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_StartsAnonymous(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Status.WithLabelValues("anonymous")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Status.WithLabelValues("authenticated")))
}

func TestRecord(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	ctx := context.Background()

	require.NoError(t, m.Record(ctx, lifecycle.ActivityEvent{
		EventType:  lifecycle.ActivityEventStatusChanged,
		Operation:  "login",
		FromStatus: lifecycle.StatusAnonymous,
		ToStatus:   lifecycle.StatusAuthenticatedAdmin,
	}))
	require.NoError(t, m.Record(ctx, lifecycle.ActivityEvent{
		EventType: lifecycle.ActivityEventLoginSuccess,
		Operation: "login",
	}))
	require.NoError(t, m.Record(ctx, lifecycle.ActivityEvent{
		EventType: lifecycle.ActivityEventVerificationFailure,
		Operation: "verify_email",
		ErrorKind: lifecycle.KindInvalidCode,
	}))
	require.NoError(t, m.Record(ctx, lifecycle.ActivityEvent{
		EventType: lifecycle.ActivityEventVerificationFailure,
		Operation: "verify_email",
		ErrorKind: lifecycle.KindInvalidCode,
	}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("auth.login.success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Events.WithLabelValues("auth.email.verification_failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Failures.WithLabelValues("verify_email", "invalid_code")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("anonymous", "authenticated_admin")))

	assert.Equal(t, 0.0, testutil.ToFloat64(m.Status.WithLabelValues("anonymous")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Status.WithLabelValues("authenticated_admin")))
}

func TestMetrics_WiredIntoManager(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	manager, err := lifecycle.NewManager(rejectingBackend{}, lifecycle.WithActivitySink(m))
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	_, err = manager.Login(context.Background(), "ada", "wrong-password")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("login", "invalid_credentials")))

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "lifecycle_operation_failures_total"))
}

type rejectingBackend struct{}

func (rejectingBackend) Register(context.Context, lifecycle.RegistrationRequest) (lifecycle.PendingRegistration, error) {
	return lifecycle.PendingRegistration{}, lifecycle.ErrConflict
}

func (rejectingBackend) VerifyEmail(context.Context, string, string) (lifecycle.Grant, error) {
	return lifecycle.Grant{}, lifecycle.ErrInvalidCode
}

func (rejectingBackend) ResendVerification(context.Context, string) (lifecycle.PendingRegistration, error) {
	return lifecycle.PendingRegistration{}, lifecycle.ErrExpired
}

func (rejectingBackend) Login(context.Context, string, string) (lifecycle.Grant, error) {
	return lifecycle.Grant{}, lifecycle.ErrInvalidCredentials
}

func (rejectingBackend) Logout(context.Context, string) error { return nil }

func (rejectingBackend) RequestPasswordReset(context.Context, string) error { return nil }

func (rejectingBackend) ResetPassword(context.Context, string, string) error {
	return lifecycle.ErrInvalidToken
}

func (rejectingBackend) ChangePassword(context.Context, string, string, string) error {
	return lifecycle.ErrInvalidCredentials
}

func (rejectingBackend) DeleteAccount(context.Context, string) error { return lifecycle.ErrExpired }
