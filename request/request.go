// Package request wraps outbound HTTP calls to application endpoints:
// it resolves a valid access token from the session manager, attaches it
// as a bearer credential, enforces a per-request timeout, and performs
// exactly one transparent retry after a 401.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	primeauth "github.com/primewebsolutions/primeauth-go"
	"github.com/primewebsolutions/primeauth-go/audit"
	"github.com/primewebsolutions/primeauth-go/metrics"
)

// Source supplies sessions to the request client. *session.Manager
// satisfies it.
type Source interface {
	// Session returns a usable session, refreshing it when near expiry.
	Session(ctx context.Context) (*primeauth.Session, error)

	// Refresh forces a new session from the refresh token.
	Refresh(ctx context.Context) error
}

// tokenCache memoizes (accessToken, expiresAt) in process memory. It is
// owned by a single Client instance, never persisted, and always
// re-derivable from the session manager.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// get returns the cached token unless it is inside the buffer window of
// its expiry.
func (c *tokenCache) get(buffer time.Duration) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || !time.Now().Add(buffer).Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

func (c *tokenCache) set(token string, expiresAt time.Time) {
	c.mu.Lock()
	c.token = token
	c.expiresAt = expiresAt
	c.mu.Unlock()
}

// invalidate drops the cached token. Called on sign-out and on a 401.
func (c *tokenCache) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// Client executes authenticated JSON requests. Each instance owns its
// token cache, so two clients never share hidden state.
type Client struct {
	baseURL    string
	source     Source
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	audit      *audit.Logger

	timeout time.Duration
	buffer  time.Duration

	cache tokenCache
	sf    singleflight.Group
}

// compile-time check
var _ primeauth.Requester = (*Client)(nil)

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

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithAudit sets the audit event logger.
func WithAudit(a *audit.Logger) Option {
	return func(cl *Client) { cl.audit = a }
}

// WithTimeout sets the default per-request timeout.
// Default: primeauth.DefaultRequestTimeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithRefreshBuffer sets how long before expiry a cached token is
// treated as expired. Default: primeauth.DefaultTokenRefreshBuffer.
func WithRefreshBuffer(d time.Duration) Option {
	return func(cl *Client) { cl.buffer = d }
}

// New creates a request client for the given backend base URL.
func New(baseURL string, source Source, opts ...Option) *Client {
	cl := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		source:     source,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		metrics:    metrics.New(false),
		timeout:    primeauth.DefaultRequestTimeout,
		buffer:     primeauth.DefaultTokenRefreshBuffer,
	}
	for _, o := range opts {
		o(cl)
	}
	return cl
}

// InvalidateToken drops the cached access token. The next request
// re-derives it from the session manager.
func (c *Client) InvalidateToken() {
	c.cache.invalidate()
}

// envelope is the generic response shape of application endpoints.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Do executes an authenticated request. It never panics; every failure
// mode is represented in the returned Response.
//
// On a 401 (auth not skipped) the cached token is invalidated, the
// session is force-refreshed, and the identical request is retried
// exactly once with the new token. A 401 surviving the retry yields
// primeauth.ErrSessionExpired.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts *primeauth.RequestOptions) primeauth.Response {
	if opts == nil {
		opts = &primeauth.RequestOptions{}
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return c.fail(method, fmt.Errorf("primeauth/request: marshal body: %w", err))
		}
		payload = b
	}

	var token string
	if !opts.SkipAuth {
		t, err := c.resolveToken(ctx)
		if err != nil {
			return c.fail(method, err)
		}
		token = t
	}

	resp := c.attempt(ctx, method, path, payload, token, opts)

	if resp.Err != nil && errors.Is(resp.Err, errUnauthorized) && !opts.SkipAuth {
		c.cache.invalidate()
		c.metrics.RecordRequestRetry()
		if c.audit != nil {
			c.audit.Log(audit.Event{
				Action:  audit.ActionRequestRetry,
				Result:  audit.ResultFailure,
				Details: method + " " + path,
			})
		}
		c.logger.Debug("request unauthorized, refreshing session and retrying once",
			"method", method, "path", path)

		if err := c.source.Refresh(ctx); err != nil {
			return c.fail(method, fmt.Errorf("%w: %s", primeauth.ErrSessionExpired, err))
		}
		t, err := c.resolveToken(ctx)
		if err != nil {
			return c.fail(method, primeauth.ErrSessionExpired)
		}

		resp = c.attempt(ctx, method, path, payload, t, opts)
		if resp.Err != nil && errors.Is(resp.Err, errUnauthorized) {
			return c.fail(method, primeauth.ErrSessionExpired)
		}
	}

	if resp.Err != nil {
		// A 401 on a SkipAuth call is an ordinary server response, not
		// a session problem.
		if errors.Is(resp.Err, errUnauthorized) {
			resp.Err = &primeauth.BackendError{Status: http.StatusUnauthorized, Message: "unauthorized"}
		}
		c.metrics.RecordRequest(method, "failure")
	} else {
		c.metrics.RecordRequest(method, "success")
	}
	return resp
}

// Get is shorthand for Do with GET and no body.
func (c *Client) Get(ctx context.Context, path string, opts *primeauth.RequestOptions) primeauth.Response {
	return c.Do(ctx, http.MethodGet, path, nil, opts)
}

// Post is shorthand for Do with POST.
func (c *Client) Post(ctx context.Context, path string, body any, opts *primeauth.RequestOptions) primeauth.Response {
	return c.Do(ctx, http.MethodPost, path, body, opts)
}

// Put is shorthand for Do with PUT.
func (c *Client) Put(ctx context.Context, path string, body any, opts *primeauth.RequestOptions) primeauth.Response {
	return c.Do(ctx, http.MethodPut, path, body, opts)
}

// Delete is shorthand for Do with DELETE and no body.
func (c *Client) Delete(ctx context.Context, path string, opts *primeauth.RequestOptions) primeauth.Response {
	return c.Do(ctx, http.MethodDelete, path, nil, opts)
}

// errUnauthorized marks a 401 internally so Do can apply the
// retry-once rule; it never escapes to callers.
var errUnauthorized = errors.New("unauthorized")

// resolveToken returns a valid access token, from cache when outside the
// buffer window and otherwise from the session manager. Concurrent
// misses collapse into a single manager call.
func (c *Client) resolveToken(ctx context.Context) (string, error) {
	if token, ok := c.cache.get(c.buffer); ok {
		c.metrics.RecordTokenCacheHit()
		return token, nil
	}
	c.metrics.RecordTokenCacheMiss()

	result, err, _ := c.sf.Do("token", func() (interface{}, error) {
		sess, err := c.source.Session(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.set(sess.AccessToken, sess.ExpiresAt)
		return sess.AccessToken, nil
	})
	if err != nil {
		if errors.Is(err, primeauth.ErrNoSession) {
			return "", primeauth.ErrNoSession
		}
		return "", fmt.Errorf("primeauth/request: resolve token: %w", err)
	}
	return result.(string), nil
}

// attempt runs a single HTTP exchange and maps it onto the response
// envelope.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, token string, opts *primeauth.RequestOptions) primeauth.Response {
	timeout := c.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return primeauth.Response{Err: fmt.Errorf("primeauth/request: create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return primeauth.Response{Err: fmt.Errorf("primeauth/request: request timed out after %ds", int(timeout.Seconds()))}
		}
		return primeauth.Response{Err: fmt.Errorf("primeauth/request: %s %s: %w", method, path, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return primeauth.Response{Err: errUnauthorized}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return primeauth.Response{Err: fmt.Errorf("primeauth/request: read response: %w", err)}
	}

	var env envelope
	if len(raw) > 0 {
		// A non-envelope body, including an object without a "success"
		// member, is tolerated; the raw payload is passed through on 2xx.
		if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil ||
			(resp.StatusCode < 300 && !hasSuccessKey(raw)) {
			env = envelope{Success: resp.StatusCode < 300, Data: raw}
		}
	} else {
		env = envelope{Success: resp.StatusCode < 300}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return primeauth.Response{Err: &primeauth.BackendError{Status: resp.StatusCode, Message: msg}}
	}

	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = primeauth.GenericErrorMessage
		}
		return primeauth.Response{Err: &primeauth.BackendError{Status: resp.StatusCode, Message: msg}}
	}

	return primeauth.Response{
		Success: true,
		Data:    env.Data,
		Message: env.Message,
	}
}

// hasSuccessKey reports whether raw is a JSON object carrying a
// "success" member, distinguishing the backend envelope from arbitrary
// object payloads.
func hasSuccessKey(raw []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	_, ok := probe["success"]
	return ok
}

func (c *Client) fail(method string, err error) primeauth.Response {
	c.metrics.RecordRequest(method, "failure")
	return primeauth.Response{Err: err}
}
