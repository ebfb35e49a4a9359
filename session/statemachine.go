package session

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/attendsys/go-auth-client/authority"
)

// Verifier checks an access token against the authority.
type Verifier interface {
	Verify(ctx context.Context, accessToken, userID string) (authority.VerifyResult, error)
}

// StateMachine interprets authority verify/refresh outcomes and drives
// every session transition. Together with the refresh coordinator it is
// the only writer of the Store, keeping the single-writer discipline.
type StateMachine struct {
	store    *Store
	verifier Verifier
}

// NewStateMachine creates a state machine over the given store.
func NewStateMachine(store *Store, verifier Verifier) (*StateMachine, error) {
	if store == nil {
		return nil, errors.New("[NewStateMachine] store is required")
	}
	if verifier == nil {
		return nil, errors.New("[NewStateMachine] verifier is required")
	}
	return &StateMachine{store: store, verifier: verifier}, nil
}

// BeginSession establishes a Valid session from a successful login.
func (m *StateMachine) BeginSession(creds authority.Credentials, role string) {
	m.store.Set(Session{
		UserID:       creds.UserID,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Role:         role,
		State:        StateValid,
	})
	log.Debug().Str("user_id", creds.UserID).Str("role", role).Msg("session established")
}

// Check runs a verify round trip and applies the outcome:
//
//	Valid    -> session stays Valid
//	Expired  -> session moves to Refreshing, tokens kept
//	Invalid  -> session cleared (transient Invalid sink)
//
// A transport failure leaves the session untouched; transient network
// trouble must not cost the user their refresh token.
func (m *StateMachine) Check(ctx context.Context) (State, error) {
	sess, ok := m.store.Get()
	if !ok || !sess.HasTokens() {
		return StateUnauthenticated, nil
	}

	result, err := m.verifier.Verify(ctx, sess.AccessToken, sess.UserID)
	if err != nil {
		return sess.State, errors.Wrap(err, "[StateMachine.Check] verify")
	}

	switch result {
	case authority.VerifyValid:
		m.setState(StateValid)
		return StateValid, nil
	case authority.VerifyExpired:
		m.setState(StateRefreshing)
		return StateRefreshing, nil
	default: // authority.VerifyInvalid
		log.Warn().Str("user_id", sess.UserID).Msg("access token rejected as invalid, clearing session")
		m.store.Clear()
		return StateUnauthenticated, nil
	}
}

// CompleteRefresh installs a rotated token pair and returns the session
// to Valid. The write is refused when the store generation moved past
// the given snapshot: a refresh that finishes after logout must not
// resurrect the cleared session.
func (m *StateMachine) CompleteRefresh(gen uint64, pair authority.TokenPair) bool {
	sess, curGen, ok := m.store.Snapshot()
	if !ok || curGen != gen {
		return false
	}
	sess.AccessToken = pair.AccessToken
	sess.RefreshToken = pair.RefreshToken
	sess.State = StateValid
	return m.store.CompareAndSet(gen, sess)
}

// FailRefresh moves the session through the Invalid sink: both tokens
// cleared, subscribers notified, at most once per invalidation.
func (m *StateMachine) FailRefresh(gen uint64) {
	m.store.CompareAndClear(gen)
}

// Invalidate clears the session after a terminal authentication
// failure on an authorized call.
func (m *StateMachine) Invalidate() {
	m.store.Clear()
}

// Logout explicitly ends the session.
func (m *StateMachine) Logout() {
	sess, ok := m.store.Get()
	if ok {
		log.Debug().Str("user_id", sess.UserID).Msg("logging out")
	}
	m.store.Clear()
}

// setState rewrites only the lifecycle state, retrying if a concurrent
// mutation moved the generation underneath us.
func (m *StateMachine) setState(state State) {
	for {
		sess, gen, ok := m.store.Snapshot()
		if !ok || sess.State == state {
			return
		}
		sess.State = state
		if m.store.CompareAndSet(gen, sess) {
			return
		}
	}
}
