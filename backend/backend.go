// Package backend implements primeauth.Backend against the identity
// backend's JSON-over-HTTPS contract under /api/v1/auth.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	primeauth "github.com/primewebsolutions/primeauth-go"
)

// Endpoint paths, relative to the base URL.
const (
	pathSignUp        = "/api/v1/auth/signup"
	pathSignIn        = "/api/v1/auth/signin"
	pathSignOut       = "/api/v1/auth/signout"
	pathRefresh       = "/api/v1/auth/refresh"
	pathSession       = "/api/v1/auth/session"
	pathResetPassword = "/api/v1/auth/reset-password"
)

// Client talks to the identity backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// compile-time check
var _ primeauth.Backend = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates an identity backend client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	cl := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: primeauth.DefaultRequestTimeout},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(cl)
	}
	return cl
}

// authEnvelope is the response shape of every auth endpoint.
type authEnvelope struct {
	Success bool               `json:"success"`
	Session *primeauth.Session `json:"session,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// SignUp registers a new user.
func (c *Client) SignUp(ctx context.Context, params primeauth.SignUpParams) (*primeauth.Session, error) {
	return c.sessionCall(ctx, pathSignUp, params)
}

// SignIn authenticates with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (*primeauth.Session, error) {
	return c.sessionCall(ctx, pathSignIn, map[string]string{
		"email":    email,
		"password": password,
	})
}

// SignOut invalidates the session identified by accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.call(ctx, http.MethodPost, pathSignOut, map[string]string{
		"accessToken": accessToken,
	}, "")
	return err
}

// Refresh mints a new session from a refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*primeauth.Session, error) {
	return c.sessionCall(ctx, pathRefresh, map[string]string{
		"refreshToken": refreshToken,
	})
}

// GetSession returns the server-side view of the session identified by
// accessToken.
func (c *Client) GetSession(ctx context.Context, accessToken string) (*primeauth.Session, error) {
	env, err := c.call(ctx, http.MethodGet, pathSession, nil, accessToken)
	if err != nil {
		return nil, err
	}
	return env.Session, nil
}

// ResetPassword starts a password reset flow for the given email.
func (c *Client) ResetPassword(ctx context.Context, email string) error {
	_, err := c.call(ctx, http.MethodPost, pathResetPassword, map[string]string{
		"email": email,
	}, "")
	return err
}

// sessionCall posts a payload and expects a session in the response.
func (c *Client) sessionCall(ctx context.Context, path string, body any) (*primeauth.Session, error) {
	env, err := c.call(ctx, http.MethodPost, path, body, "")
	if err != nil {
		return nil, err
	}
	return env.Session, nil
}

// call runs one HTTP exchange against an auth endpoint. Server-reported
// failures come back as *primeauth.BackendError; transport failures as
// plain wrapped errors.
func (c *Client) call(ctx context.Context, method, path string, body any, bearer string) (*authEnvelope, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("primeauth/backend: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("primeauth/backend: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("primeauth/backend: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("primeauth/backend: read response: %w", err)
	}

	c.logger.Debug("auth backend call",
		"method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(start))

	var env authEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("primeauth/backend: decode response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &primeauth.BackendError{Status: resp.StatusCode, Message: env.Error}
	}
	if !env.Success {
		return nil, &primeauth.BackendError{Status: resp.StatusCode, Message: env.Error}
	}
	return &env, nil
}
