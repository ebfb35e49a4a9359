// Package request is the public entry point for outbound API calls.
// The Executor wraps an arbitrary call with pre-flight session
// validation, a single refresh-and-retry cycle on token expiry, and
// failure classification; callers never talk to the authority directly.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	autherrors "github.com/attendsys/go-auth-client/internal/errors"
	"github.com/attendsys/go-auth-client/refresh"
	"github.com/attendsys/go-auth-client/session"
)

const (
	headerAuthorization = "Authorization"
	headerUserID        = "X-User-ID"

	defaultTimeout = 10 * time.Second
)

// Spec describes one outbound call. Path is resolved against the
// executor's base URL; a non-nil Body is JSON-encoded.
type Spec struct {
	Method string
	Path   string
	Body   any
}

// Response is the outcome of a dispatched call.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrapf(autherrors.ErrProtocol, "[Response.Decode] %v", err)
	}
	return nil
}

// Executor dispatches authorized calls on behalf of the current
// session. Safe for concurrent use; concurrent calls that hit an
// expired token collapse onto one refresh via the coordinator.
type Executor struct {
	store       *session.Store
	machine     *session.StateMachine
	coordinator *refresh.Coordinator
	baseURL     string
	httpClient  *http.Client
}

// Option modifies an Executor at construction time.
type Option func(*Executor)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(e *Executor) {
		e.httpClient = hc
	}
}

// NewExecutor creates an executor dispatching against the given base URL.
func NewExecutor(store *session.Store, machine *session.StateMachine, coordinator *refresh.Coordinator, baseURL string, options ...Option) (*Executor, error) {
	if store == nil {
		return nil, errors.New("[NewExecutor] store is required")
	}
	if machine == nil {
		return nil, errors.New("[NewExecutor] state machine is required")
	}
	if coordinator == nil {
		return nil, errors.New("[NewExecutor] coordinator is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[NewExecutor] baseURL is required")
	}

	e := &Executor{
		store:       store,
		machine:     machine,
		coordinator: coordinator,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// Execute dispatches the call. When requiresAuth is set, the current
// access token and user id are attached as headers; an authentication
// failure from the remote triggers at most one refresh cycle followed
// by exactly one re-dispatch. Every other failure passes through
// unclassified for the caller's own retry policy.
func (e *Executor) Execute(ctx context.Context, spec Spec, requiresAuth bool) (*Response, error) {
	requestID := uuid.New().String()

	if !requiresAuth {
		return e.dispatch(ctx, requestID, spec, session.Session{}, false)
	}

	sess, ok := e.store.Get()
	if !ok || !sess.HasTokens() {
		return nil, errors.Wrap(autherrors.ErrNotAuthenticated, "[Executor.Execute] no session")
	}

	resp, err := e.dispatch(ctx, requestID, spec, sess, true)
	if err != nil {
		return nil, err
	}
	if !authFailure(resp) {
		return resp, nil
	}

	log.Debug().Str("request_id", requestID).Int("status", resp.StatusCode).Msg("authentication failure, attempting refresh")
	if err := e.coordinator.EnsureFresh(ctx); err != nil {
		return nil, errors.Wrap(err, "[Executor.Execute] refresh")
	}

	sess, ok = e.store.Get()
	if !ok || !sess.HasTokens() {
		return nil, errors.Wrap(autherrors.ErrSessionExpired, "[Executor.Execute] session gone after refresh")
	}

	resp, err = e.dispatch(ctx, requestID, spec, sess, true)
	if err != nil {
		return nil, err
	}
	if authFailure(resp) {
		// Non-recoverable: a fresh token was rejected. Bounded to one
		// refresh cycle so a misconfigured backend cannot loop us.
		log.Warn().Str("request_id", requestID).Msg("fresh token rejected, clearing session")
		e.machine.Invalidate()
		return nil, errors.Wrap(autherrors.ErrSessionExpired, "[Executor.Execute] authentication failed after refresh")
	}
	return resp, nil
}

func (e *Executor) dispatch(ctx context.Context, requestID string, spec Spec, sess session.Session, authorized bool) (*Response, error) {
	var reqBody io.Reader
	if spec.Body != nil {
		encoded, err := json.Marshal(spec.Body)
		if err != nil {
			return nil, errors.Wrap(err, "[Executor.dispatch] encode body")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, e.baseURL+spec.Path, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "[Executor.dispatch] build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if authorized {
		// The authority's protocol carries the raw token, no bearer scheme.
		req.Header.Set(headerAuthorization, sess.AccessToken)
		req.Header.Set(headerUserID, sess.UserID)
	}

	log.Debug().Str("request_id", requestID).Str("method", spec.Method).Str("path", spec.Path).Msg("dispatching")
	httpResp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(autherrors.ErrUnreachable, "[Executor.dispatch] %v", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrapf(autherrors.ErrUnreachable, "[Executor.dispatch] read response: %v", err)
	}
	return &Response{StatusCode: httpResp.StatusCode, Body: body}, nil
}

// authFailure recognizes the two ways the remote signals a stale token:
// an explicit 401, or an embedded authorize pre-check verdict.
func authFailure(resp *Response) bool {
	if resp.StatusCode == http.StatusUnauthorized {
		return true
	}
	var probe struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(resp.Body, &probe); err == nil {
		if probe.Result == "Expired" || probe.Result == "Invalid" {
			return true
		}
	}
	return false
}
