// Package authority is the transport adapter for the remote token
// authority. Every operation is a single JSON-over-HTTP round trip with
// no retry logic; outcomes are mapped onto the normalized error
// taxonomy and nothing else is interpreted.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	autherrors "github.com/attendsys/go-auth-client/internal/errors"
)

const (
	routeLogin    = "/api/login"
	routeVerify   = "/authorization/authorize"
	routeRefresh  = "/authorization/refreshToken"
	routeRegister = "/employee/register"

	defaultTimeout = 10 * time.Second
)

// Client issues the authority's three token operations plus
// registration. Safe for concurrent use.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	verifyMethod string
	validate     *validator.Validate
}

// Option modifies a Client at construction time.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (primarily for
// tests and custom transports).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithVerifyMethod sets the HTTP method for the verify endpoint. The
// authority accepts GET or POST; POST is the default since GET request
// bodies are not reliably transmitted.
func WithVerifyMethod(method string) Option {
	return func(c *Client) {
		c.verifyMethod = strings.ToUpper(method)
	}
}

// New creates an authority client for the given base URL.
func New(baseURL string, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[authority.New] baseURL is required")
	}

	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: defaultTimeout},
		verifyMethod: http.MethodPost,
		validate:     validator.New(),
	}
	for _, opt := range options {
		opt(c)
	}

	if c.verifyMethod != http.MethodGet && c.verifyMethod != http.MethodPost {
		return nil, errors.Errorf("[authority.New] verify method must be GET or POST, got %q", c.verifyMethod)
	}
	return c, nil
}

// Login exchanges account credentials for a token pair and identity.
func (c *Client) Login(ctx context.Context, params LoginParams) (Credentials, error) {
	if err := c.validate.Struct(params); err != nil {
		return Credentials{}, errors.Wrap(err, "[Client.Login] invalid parameters")
	}

	status, body, err := c.roundTrip(ctx, http.MethodPost, routeLogin, params)
	if err != nil {
		return Credentials{}, errors.Wrap(err, "[Client.Login] execute request")
	}

	var resp loginResponse
	if decodeErr := json.Unmarshal(body, &resp); decodeErr != nil && status < 300 {
		return Credentials{}, errors.Wrapf(autherrors.ErrProtocol, "[Client.Login] decode response: %v", decodeErr)
	}
	if status < 200 || status >= 300 || resp.Status != "success" {
		return Credentials{}, errors.Wrapf(autherrors.ErrInvalidCredentials, "[Client.Login] authority rejected login (status %d)", status)
	}
	if resp.Data.AccessToken == "" || resp.Data.RefreshToken == "" || resp.Data.UserID == "" {
		return Credentials{}, errors.Wrap(autherrors.ErrProtocol, "[Client.Login] success response missing token pair or user id")
	}

	return Credentials{
		UserID: resp.Data.UserID,
		TokenPair: TokenPair{
			AccessToken:  resp.Data.AccessToken,
			RefreshToken: resp.Data.RefreshToken,
		},
	}, nil
}

// Verify asks the authority whether an access token is still valid for
// the given user.
func (c *Client) Verify(ctx context.Context, accessToken, userID string) (VerifyResult, error) {
	payload := map[string]string{
		"access_token": accessToken,
		"user_id":      userID,
	}
	status, body, err := c.roundTrip(ctx, c.verifyMethod, routeVerify, payload)
	if err != nil {
		return "", errors.Wrap(err, "[Client.Verify] execute request")
	}
	if status < 200 || status >= 300 {
		return "", errors.Wrapf(autherrors.ErrProtocol, "[Client.Verify] authority returned status %d", status)
	}

	var resp verifyResponse
	if decodeErr := json.Unmarshal(body, &resp); decodeErr != nil {
		return "", errors.Wrapf(autherrors.ErrProtocol, "[Client.Verify] decode response: %v", decodeErr)
	}
	switch VerifyResult(resp.Result) {
	case VerifyValid, VerifyExpired, VerifyInvalid:
		return VerifyResult(resp.Result), nil
	default:
		return "", errors.Wrapf(autherrors.ErrProtocol, "[Client.Verify] unknown verify result %q", resp.Result)
	}
}

// Refresh exchanges a refresh token for a brand-new token pair. The
// authority rotates both tokens on use.
func (c *Client) Refresh(ctx context.Context, refreshToken, userID string) (TokenPair, error) {
	payload := map[string]string{
		"refresh_token": refreshToken,
		"user_id":       userID,
	}
	status, body, err := c.roundTrip(ctx, http.MethodPost, routeRefresh, payload)
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "[Client.Refresh] execute request")
	}
	if status < 200 || status >= 300 {
		return TokenPair{}, errors.Wrapf(autherrors.ErrRefreshInvalid, "[Client.Refresh] authority returned status %d", status)
	}

	var resp refreshResponse
	if decodeErr := json.Unmarshal(body, &resp); decodeErr != nil {
		return TokenPair{}, errors.Wrapf(autherrors.ErrProtocol, "[Client.Refresh] decode response: %v", decodeErr)
	}
	if resp.NewAccessToken == "" || resp.NewRefreshToken == "" {
		return TokenPair{}, errors.Wrap(autherrors.ErrProtocol, "[Client.Refresh] response missing rotated token pair")
	}
	return TokenPair{
		AccessToken:  resp.NewAccessToken,
		RefreshToken: resp.NewRefreshToken,
	}, nil
}

// Register creates a new employee account. No session is involved.
func (c *Client) Register(ctx context.Context, params RegisterParams) error {
	if err := c.validate.Struct(params); err != nil {
		return errors.Wrap(err, "[Client.Register] invalid parameters")
	}

	status, body, err := c.roundTrip(ctx, http.MethodPost, routeRegister, params)
	if err != nil {
		return errors.Wrap(err, "[Client.Register] execute request")
	}

	var resp statusResponse
	_ = json.Unmarshal(body, &resp)
	if status < 200 || status >= 300 || resp.Status != "success" {
		if resp.Message != "" {
			return errors.Errorf("[Client.Register] registration rejected: %s", resp.Message)
		}
		return errors.Errorf("[Client.Register] registration rejected (status %d)", status)
	}
	return nil
}

// roundTrip performs one request and drains the body. Transport-level
// failures come back as ErrUnreachable; HTTP status interpretation is
// left to the caller.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, errors.Wrap(err, "encode request")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(autherrors.ErrUnreachable, "dial authority: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrapf(autherrors.ErrUnreachable, "read response: %v", err)
	}
	return resp.StatusCode, body, nil
}
