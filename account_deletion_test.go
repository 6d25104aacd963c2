package lifecycle_test

import (
	"context"
	"testing"
	"time"

	lifecycle "github.com/goliatone/go-auth-lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAccountDeletion_ConfirmedDeletionEndsSession(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "member")

	res, err := f.manager.RequestAccountDeletion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lifecycle.WorkflowAccountDeletion, res.Session.Workflow.Kind)
	assert.Equal(t, lifecycle.StepAwaitingConfirmation, res.Session.Workflow.Step)
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), res.Session.Workflow.ExpiresAt)
	f.backend.AssertNotCalled(t, "DeleteAccount", mock.Anything, mock.Anything)

	f.backend.On("DeleteAccount", mock.Anything, "cred-1").Return(nil).Once()

	res, err = f.manager.ConfirmAccountDeletion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusAnonymous, res.Session.Status)
	assert.Nil(t, res.Session.Identity)
	assert.False(t, res.Session.Workflow.Active())
	path, _ := res.NavigateTo()
	assert.Equal(t, "/", path)

	_, stored := f.storedCredential(t)
	assert.False(t, stored)

	warnings := f.rec.NotificationsOf(lifecycle.NotificationWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, "Account deleted", warnings[0].Summary)
	assert.Len(t, f.rec.Events(lifecycle.ActivityEventAccountDeleted), 1)

	require.NoError(t, f.manager.Close())
	f.backend.AssertNotCalled(t, "Logout", mock.Anything, mock.Anything)
}

func TestAccountDeletion_ConfirmWithoutRequest(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "member")

	_, err := f.manager.ConfirmAccountDeletion(context.Background())
	require.Error(t, err)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))
	f.backend.AssertNotCalled(t, "DeleteAccount", mock.Anything, mock.Anything)
}

func TestAccountDeletion_WindowPasses(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "member")

	_, err := f.manager.RequestAccountDeletion(context.Background())
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)

	res, err := f.manager.ConfirmAccountDeletion(context.Background())
	require.Error(t, err)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindExpired))
	assert.Equal(t, lifecycle.StatusAuthenticated, res.Session.Status)
	assert.Equal(t, lifecycle.StepExpired, res.Session.Workflow.Step)
	f.backend.AssertNotCalled(t, "DeleteAccount", mock.Anything, mock.Anything)
}

func TestAccountDeletion_BackendFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "member")

	_, err := f.manager.RequestAccountDeletion(context.Background())
	require.NoError(t, err)
	f.backend.On("DeleteAccount", mock.Anything, "cred-1").Return(lifecycle.ErrNetwork).Once()

	res, err := f.manager.ConfirmAccountDeletion(context.Background())
	require.Error(t, err)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindNetwork))
	assert.Equal(t, lifecycle.StatusAuthenticated, res.Session.Status)

	token, stored := f.storedCredential(t)
	assert.True(t, stored)
	assert.Equal(t, "cred-1", token)
	assert.Len(t, f.rec.NotificationsOf(lifecycle.NotificationError), 1)
}

func TestAccountDeletion_AbandonKeepsAccount(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "member")

	_, err := f.manager.RequestAccountDeletion(context.Background())
	require.NoError(t, err)

	res := f.manager.AbandonWorkflow(context.Background())
	assert.Equal(t, lifecycle.StatusAuthenticated, res.Session.Status)
	assert.False(t, res.Session.Workflow.Active())
	assert.Empty(t, res.Effects)

	_, err = f.manager.ConfirmAccountDeletion(context.Background())
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))
}

func TestAccountDeletion_RequiresSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.RequestAccountDeletion(context.Background())
	require.Error(t, err)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))
}

// blockingDelete makes the next backend DeleteAccount wait for release.
func blockingDelete(f *fixture, err error) (started, release chan struct{}) {
	started = make(chan struct{})
	release = make(chan struct{})
	f.backend.On("DeleteAccount", mock.Anything, "cred-1").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(err).Once()
	return started, release
}

func TestAccountDeletion_AbandonDuringDeleteStillEndsSession(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "member")

	_, err := f.manager.RequestAccountDeletion(context.Background())
	require.NoError(t, err)
	started, release := blockingDelete(f, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.ConfirmAccountDeletion(context.Background())
		done <- err
	}()
	<-started

	res := f.manager.AbandonWorkflow(context.Background())
	assert.Equal(t, lifecycle.StatusAuthenticated, res.Session.Status)

	close(release)
	require.NoError(t, <-done)

	session := f.manager.Session()
	assert.Equal(t, lifecycle.StatusAnonymous, session.Status)
	assert.Nil(t, session.Identity)

	_, stored := f.storedCredential(t)
	assert.False(t, stored)

	warnings := f.rec.NotificationsOf(lifecycle.NotificationWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, "Account deleted", warnings[0].Summary)

	events := f.rec.Events(lifecycle.ActivityEventAccountDeleted)
	require.Len(t, events, 1)
	assert.Equal(t, "user-1", events[0].UserID)
}

func TestAccountDeletion_LogoutDuringDeleteReportsDeletion(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "member")

	_, err := f.manager.RequestAccountDeletion(context.Background())
	require.NoError(t, err)
	started, release := blockingDelete(f, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.ConfirmAccountDeletion(context.Background())
		done <- err
	}()
	<-started

	f.manager.Logout(context.Background())
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, lifecycle.StatusAnonymous, f.manager.Session().Status)
	assert.Len(t, f.rec.NotificationsOf(lifecycle.NotificationWarning), 1)
	assert.Len(t, f.rec.Events(lifecycle.ActivityEventAccountDeleted), 1)
}

func TestAccountDeletion_LeavesNewerSessionAlone(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "member")

	_, err := f.manager.RequestAccountDeletion(context.Background())
	require.NoError(t, err)
	started, release := blockingDelete(f, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.ConfirmAccountDeletion(context.Background())
		done <- err
	}()
	<-started

	f.manager.Logout(context.Background())
	f.backend.On("Login", mock.Anything, "grace", "correct-horse").
		Return(grantFor("user-2", "grace", "cred-2"), nil).Once()
	_, err = f.manager.Login(context.Background(), "grace", "correct-horse")
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	session := f.manager.Session()
	assert.Equal(t, lifecycle.StatusAuthenticated, session.Status)
	require.NotNil(t, session.Identity)
	assert.Equal(t, "user-2", session.Identity.ID)

	credential, stored := f.storedCredential(t)
	assert.True(t, stored)
	assert.Equal(t, "cred-2", credential)
	assert.Empty(t, f.rec.Events(lifecycle.ActivityEventAccountDeleted))
}
