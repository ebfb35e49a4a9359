package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/attendsys/go-auth-client/authority"
	"github.com/attendsys/go-auth-client/authority/authorityfake"
	autherrors "github.com/attendsys/go-auth-client/internal/errors"
	"github.com/attendsys/go-auth-client/session"
)

type machineFixture struct {
	store     *session.Store
	authority *authorityfake.FakeAuthority
	machine   *session.StateMachine
}

func setupMachineFixture(t *testing.T) *machineFixture {
	t.Helper()

	store := session.NewStore()
	fake := authorityfake.NewFakeAuthority()
	machine, err := session.NewStateMachine(store, fake)
	require.NoError(t, err)

	return &machineFixture{store: store, authority: fake, machine: machine}
}

func (f *machineFixture) beginSession(t *testing.T) {
	t.Helper()
	f.machine.BeginSession(authority.Credentials{
		UserID: "alice",
		TokenPair: authority.TokenPair{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
		},
	}, "employee")
}

func TestStateMachine_BeginSessionEstablishesValid(t *testing.T) {
	f := setupMachineFixture(t)
	f.beginSession(t)

	sess, ok := f.store.Get()
	require.True(t, ok)
	require.Equal(t, session.StateValid, sess.State)
	require.Equal(t, "alice", sess.UserID)
	require.Equal(t, "employee", sess.Role)
	require.True(t, sess.HasTokens())
}

func TestStateMachine_CheckWithoutSessionIsUnauthenticated(t *testing.T) {
	f := setupMachineFixture(t)

	state, err := f.machine.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.StateUnauthenticated, state)
	require.Zero(t, f.authority.VerifyCalls(), "no session means no network call")
}

func TestStateMachine_CheckExpiredMovesToRefreshing(t *testing.T) {
	f := setupMachineFixture(t)
	f.beginSession(t)
	f.authority.VerifyScript = []authority.VerifyResult{authority.VerifyExpired}

	state, err := f.machine.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.StateRefreshing, state)

	sess, ok := f.store.Get()
	require.True(t, ok)
	require.Equal(t, session.StateRefreshing, sess.State)
	require.True(t, sess.HasTokens(), "tokens are kept while a refresh is pending")
}

func TestStateMachine_CheckInvalidClearsSession(t *testing.T) {
	f := setupMachineFixture(t)
	f.beginSession(t)
	f.authority.VerifyScript = []authority.VerifyResult{authority.VerifyInvalid}

	var logouts int
	unsubscribe := f.store.Subscribe(func(change session.Change) {
		if change.LoggedOut {
			logouts++
		}
	})
	defer unsubscribe()

	state, err := f.machine.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.StateUnauthenticated, state)
	require.Equal(t, 1, logouts)
	require.Zero(t, f.authority.RefreshCalls(), "Invalid must not trigger a refresh")

	_, ok := f.store.Get()
	require.False(t, ok)
}

func TestStateMachine_CheckUnreachableKeepsSession(t *testing.T) {
	f := setupMachineFixture(t)
	f.beginSession(t)
	f.authority.VerifyErr = autherrors.ErrUnreachable

	_, err := f.machine.Check(context.Background())
	require.ErrorIs(t, err, autherrors.ErrUnreachable)

	sess, ok := f.store.Get()
	require.True(t, ok, "transient network trouble must not cost the session")
	require.True(t, sess.HasTokens())
}

func TestStateMachine_CompleteRefreshReplacesTokensWholesale(t *testing.T) {
	f := setupMachineFixture(t)
	f.beginSession(t)

	_, gen, ok := f.store.Snapshot()
	require.True(t, ok)

	pair := authority.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}
	require.True(t, f.machine.CompleteRefresh(gen, pair))

	sess, ok := f.store.Get()
	require.True(t, ok)
	require.Equal(t, session.StateValid, sess.State)
	require.Equal(t, "access-2", sess.AccessToken)
	require.Equal(t, "refresh-2", sess.RefreshToken)
	require.Equal(t, "alice", sess.UserID, "identity is immutable across refreshes")
}

func TestStateMachine_CompleteRefreshRefusedAfterLogout(t *testing.T) {
	f := setupMachineFixture(t)
	f.beginSession(t)

	_, gen, ok := f.store.Snapshot()
	require.True(t, ok)

	f.machine.Logout()

	pair := authority.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}
	require.False(t, f.machine.CompleteRefresh(gen, pair))

	_, ok = f.store.Get()
	require.False(t, ok)
}
