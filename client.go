// Package primeauth provides a framework-agnostic Go SDK for
// authenticated session management against a multi-tenant Prime Web
// Solutions backend.
//
// The SDK defines interfaces for the identity backend, session storage,
// the session lifecycle manager, and the authenticated request client.
// Concrete implementations live in subpackages and are injected via
// Option functions, keeping the root package independent of any specific
// transport.
//
// Example usage:
//
//	client, err := primeauth.NewClient(
//	    primeauth.Config{BaseURL: "https://api.example.com", ProjectID: "proj_123"},
//	    primeauth.WithSessionManager(mgr),
//	    primeauth.WithRequester(req),
//	)
package primeauth

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// DevProjectID is the development sentinel. Configuring it (or leaving
// ProjectID empty) disables project-identity validation for
// single-tenant and local development use.
const DevProjectID = "development"

// DefaultRequestTimeout is applied when Config.RequestTimeout is zero.
const DefaultRequestTimeout = 30 * time.Second

// DefaultTokenRefreshBuffer is how long before expiry a token is treated
// as already expired, applied when Config.TokenRefreshBuffer is zero.
const DefaultTokenRefreshBuffer = 5 * time.Minute

// Config holds connection and behavior configuration.
type Config struct {
	// BaseURL is the address of the identity backend
	// (e.g. "https://api.primewebsolutions.dev").
	BaseURL string

	// ProjectID is the expected project identifier embedded in access
	// token claims. Empty or DevProjectID disables validation.
	ProjectID string

	// RequestTimeout bounds each authenticated request.
	// Default: 30 seconds.
	RequestTimeout time.Duration

	// TokenRefreshBuffer is how long before expiry to refresh the access
	// token. Default: 5 minutes.
	TokenRefreshBuffer time.Duration
}

// Client is the main entry point for SDK operations. Service
// implementations are injected via Option functions.
type Client struct {
	config    Config
	logger    *slog.Logger
	sessions  SessionManager
	requester Requester
	store     SessionStore
	backend   Backend
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSessionManager sets the session lifecycle implementation.
func WithSessionManager(m SessionManager) Option {
	return func(c *Client) { c.sessions = m }
}

// WithRequester sets the authenticated request client implementation.
func WithRequester(r Requester) Option {
	return func(c *Client) { c.requester = r }
}

// WithSessionStore sets the session persistence implementation.
func WithSessionStore(s SessionStore) Option {
	return func(c *Client) { c.store = s }
}

// WithBackend sets the identity backend implementation.
func WithBackend(b Backend) Option {
	return func(c *Client) { c.backend = b }
}

// NewClient creates a new SDK client with the given configuration and
// options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("primeauth: BaseURL is required")
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.TokenRefreshBuffer == 0 {
		cfg.TokenRefreshBuffer = DefaultTokenRefreshBuffer
	}

	c := &Client{config: cfg, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Sessions returns the session manager, or nil if not configured.
func (c *Client) Sessions() SessionManager { return c.sessions }

// Requests returns the request client, or nil if not configured.
func (c *Client) Requests() Requester { return c.requester }

// Store returns the session store, or nil if not configured.
func (c *Client) Store() SessionStore { return c.store }

// Backend returns the identity backend, or nil if not configured.
func (c *Client) Backend() Backend { return c.backend }

// ValidatesProject reports whether project-identity validation is active
// for this configuration.
func (c *Client) ValidatesProject() bool {
	return c.config.ProjectID != "" && c.config.ProjectID != DevProjectID
}

// Close releases all resources held by the client. Any injected service
// that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []interface{}{
		c.sessions, c.requester, c.store, c.backend,
	}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil {
				c.logger.Warn("failed to close service", "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}
