// Package refresh serializes token renewal: however many concurrent
// authorized calls discover an expired token, exactly one refresh round
// trip reaches the authority, and every caller shares its outcome. The
// authority rotates refresh tokens on use, so a second concurrent
// refresh would be rejected with a now-stale token.
package refresh

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/attendsys/go-auth-client/authority"
	autherrors "github.com/attendsys/go-auth-client/internal/errors"
	"github.com/attendsys/go-auth-client/session"
)

// TokenRefresher exchanges a refresh token for a rotated pair.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken, userID string) (authority.TokenPair, error)
}

// Coordinator collapses concurrent refresh demand into one remote call
// per session.
type Coordinator struct {
	store     *session.Store
	machine   *session.StateMachine
	refresher TokenRefresher
	group     singleflight.Group
}

// NewCoordinator creates a refresh coordinator.
func NewCoordinator(store *session.Store, machine *session.StateMachine, refresher TokenRefresher) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("[NewCoordinator] store is required")
	}
	if machine == nil {
		return nil, errors.New("[NewCoordinator] state machine is required")
	}
	if refresher == nil {
		return nil, errors.New("[NewCoordinator] refresher is required")
	}
	return &Coordinator{store: store, machine: machine, refresher: refresher}, nil
}

// EnsureFresh returns nil once the session holds a valid token pair.
// Callers that race onto an in-flight refresh await its outcome instead
// of issuing their own. A Valid session costs a verify round trip but
// never a refresh.
func (c *Coordinator) EnsureFresh(ctx context.Context) error {
	sess, ok := c.store.Get()
	if !ok {
		return autherrors.ErrNotAuthenticated
	}

	_, err, _ := c.group.Do(sess.UserID, func() (interface{}, error) {
		return nil, c.refreshOnce(ctx)
	})
	return err
}

func (c *Coordinator) refreshOnce(ctx context.Context) error {
	state, err := c.machine.Check(ctx)
	if err != nil {
		return errors.Wrap(err, "[Coordinator.EnsureFresh] check")
	}

	switch state {
	case session.StateValid:
		return nil
	case session.StateUnauthenticated:
		// Verify answered Invalid: the machine has already cleared the
		// session, no refresh is attempted.
		return errors.Wrap(autherrors.ErrSessionExpired, "[Coordinator.EnsureFresh] access token invalid")
	}

	sess, gen, ok := c.store.Snapshot()
	if !ok {
		return autherrors.ErrNotAuthenticated
	}

	pair, err := c.refresher.Refresh(ctx, sess.RefreshToken, sess.UserID)
	if err != nil {
		if errors.Is(err, autherrors.ErrUnreachable) {
			// Transient transport failure: keep the session so the
			// caller can retry, the refresh token is still good.
			return errors.Wrap(err, "[Coordinator.EnsureFresh] refresh")
		}
		log.Warn().Str("user_id", sess.UserID).Msg("refresh rejected, clearing session")
		c.machine.FailRefresh(gen)
		return autherrors.Wrapf(autherrors.ErrSessionExpired, "[Coordinator.EnsureFresh] refresh failed: %v", err)
	}

	if !c.machine.CompleteRefresh(gen, pair) {
		// Logout won the race; the rotated pair is dropped rather than
		// resurrecting the cleared session.
		return errors.Wrap(autherrors.ErrSessionExpired, "[Coordinator.EnsureFresh] session ended during refresh")
	}

	log.Debug().Str("user_id", sess.UserID).Msg("token pair rotated")
	return nil
}
