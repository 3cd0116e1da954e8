package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVisitorSessions(t *testing.T, creds *fakeCredentials, telemetry Telemetry) *VisitorSessions {
	t.Helper()
	sessions, err := NewVisitorSessions(VisitorOptions{
		Credentials: creds,
		Admins:      NewAdminPolicy(adminEmail),
		Telemetry:   telemetry,
	})
	require.NoError(t, err)
	return sessions
}

func TestVisitorSessionsRequireCredentials(t *testing.T) {
	_, err := NewVisitorSessions(VisitorOptions{})
	require.Error(t, err)
}

func TestVisitorLoginGrantsOnlyThatVisitor(t *testing.T) {
	creds := newFakeCredentials(Identity{UID: "a1", Email: adminEmail, DisplayName: "Ada"})
	telemetry := &recordingTelemetry{}
	sessions := newVisitorSessions(t, creds, telemetry)

	admin := AnonymousVisitor()
	other := AnonymousVisitor()
	require.NoError(t, sessions.Login(WithVisitor(context.Background(), admin), adminEmail, "secret1"))

	assert.True(t, admin.Granted())
	assert.NotEmpty(t, admin.Token())
	assert.True(t, admin.Session().IsAdmin)
	assert.Equal(t, StateAuthenticatedComplete, admin.Session().State)

	assert.False(t, other.Granted())
	assert.Equal(t, StateAnonymous, other.Session().State)
	assert.True(t, telemetry.has("triage.visitor.transition"))

	resolved := sessions.Resolve(context.Background(), admin.Token())
	assert.True(t, resolved.Session().IsAdmin)
	assert.False(t, resolved.Granted())
}

func TestVisitorResolveRejectsUnknownTokens(t *testing.T) {
	sessions := newVisitorSessions(t, newFakeCredentials(), nil)
	for _, token := range []string{"", "forged"} {
		v := sessions.Resolve(context.Background(), token)
		assert.Equal(t, StateAnonymous, v.Session().State, token)
		assert.Empty(t, v.Token())
	}
}

func TestVisitorLoginFailures(t *testing.T) {
	creds := newFakeCredentials(Identity{UID: "u1", Email: "s@campus.edu"})
	sessions := newVisitorSessions(t, creds, nil)

	v := AnonymousVisitor()
	err := sessions.Login(WithVisitor(context.Background(), v), "s@campus.edu", "wrong")
	assert.Equal(t, KindInvalidCredential, KindOf(err))
	assert.False(t, v.Granted())

	err = sessions.Login(context.Background(), "s@campus.edu", "secret1")
	assert.Equal(t, KindNotAuthenticated, KindOf(err))

	creds.authErr = errors.New("unreachable")
	err = sessions.Login(WithVisitor(context.Background(), v), "s@campus.edu", "secret1")
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestVisitorSignupSetsDisplayName(t *testing.T) {
	sessions := newVisitorSessions(t, newFakeCredentials(), nil)
	v := AnonymousVisitor()
	result, err := sessions.Signup(WithVisitor(context.Background(), v), "s@campus.edu", "secret1", "Sam")
	require.NoError(t, err)
	assert.True(t, result.AccountCreated)
	assert.True(t, result.ProfileUpdated)
	assert.Equal(t, "Sam", v.Session().Identity.DisplayName)
	assert.Equal(t, StateAuthenticatedComplete, v.Session().State)
}

func TestVisitorSignupPartialFailureKeepsGrant(t *testing.T) {
	creds := newFakeCredentials()
	creds.updateErr = errors.New("profile service down")
	sessions := newVisitorSessions(t, creds, nil)

	v := AnonymousVisitor()
	result, err := sessions.Signup(WithVisitor(context.Background(), v), "s@campus.edu", "secret1", "Sam")
	assert.Equal(t, KindPartialFailure, KindOf(err))
	assert.True(t, result.AccountCreated)
	assert.False(t, result.ProfileUpdated)
	assert.NotEmpty(t, v.Token())
	assert.Equal(t, StateAuthenticatedIncomplete, v.Session().State)
}

func TestVisitorCompleteProfileThenRefresh(t *testing.T) {
	creds := newFakeCredentials(Identity{UID: "u1", Email: "s@campus.edu"})
	sessions := newVisitorSessions(t, creds, nil)
	v := AnonymousVisitor()
	ctx := WithVisitor(context.Background(), v)

	err := sessions.CompleteProfile(ctx, "Sam")
	assert.Equal(t, KindNotAuthenticated, KindOf(err))

	require.NoError(t, sessions.Login(ctx, "s@campus.edu", "secret1"))
	assert.Equal(t, KindValidation, KindOf(sessions.CompleteProfile(ctx, "  ")))

	require.NoError(t, sessions.CompleteProfile(ctx, " Sam "))
	assert.Equal(t, StateAuthenticatedIncomplete, v.Session().State)
	require.NoError(t, sessions.Refresh(ctx))
	assert.Equal(t, StateAuthenticatedComplete, v.Session().State)
	assert.Equal(t, "Sam", v.Session().DisplayLabel())
}

func TestVisitorProviderLoginAndLogout(t *testing.T) {
	creds := newFakeCredentials()
	sessions := newVisitorSessions(t, creds, nil)
	v := AnonymousVisitor()
	ctx := WithVisitor(context.Background(), v)

	assert.Equal(t, KindPopupClosed, KindOf(sessions.LoginWithProvider(ctx)))

	creds.popup = &Identity{UID: "p1", Email: "p@campus.edu", DisplayName: "Pat"}
	require.NoError(t, sessions.LoginWithProvider(ctx))
	assert.Equal(t, StateAuthenticatedComplete, v.Session().State)

	require.NoError(t, sessions.Logout(ctx))
	assert.True(t, v.Granted())
	assert.Empty(t, v.Token())
	assert.Equal(t, StateAnonymous, v.Session().State)
}

func TestSessionFromWithoutVisitorIsAnonymous(t *testing.T) {
	assert.Equal(t, StateAnonymous, SessionFrom(context.Background()).State)
	assert.Equal(t, "", ScopeKey(context.Background()))

	ctx := WithVisitor(context.Background(), NewVisitor(Session{State: StateAuthenticatedComplete, Identity: &Identity{UID: "u9"}}, "t"))
	assert.Equal(t, "u9", ScopeKey(ctx))
}
