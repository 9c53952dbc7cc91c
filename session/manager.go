// Package session implements the authenticated session lifecycle: state
// machine, persistence, project-identity validation on every transition,
// and session-changed notifications.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	primeauth "github.com/primewebsolutions/primeauth-go"
	"github.com/primewebsolutions/primeauth-go/audit"
	"github.com/primewebsolutions/primeauth-go/metrics"
	"github.com/primewebsolutions/primeauth-go/token"
)

// Manager owns the authoritative session and drives
// Uninitialized → Loading → {Authenticated, Anonymous} transitions.
//
// Transitions are serialized by a mutex and stamped with a generation
// counter: an operation captures the generation before its network call
// and commits only if no other transition happened in between, returning
// primeauth.ErrConflict otherwise. Sign-out is the exception: it always
// wins, because local state must be clearable unconditionally.
type Manager struct {
	backend   primeauth.Backend
	store     primeauth.SessionStore
	validator *token.Validator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	audit     *audit.Logger

	refreshBuffer time.Duration
	autoRefresh   bool

	mu         sync.RWMutex
	state      primeauth.State
	current    *primeauth.Session
	restoreErr error
	gen        uint64
	subs       map[int]func(primeauth.State, *primeauth.Session)
	nextSub    int

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	sf singleflight.Group
}

// compile-time check
var _ primeauth.SessionManager = (*Manager)(nil)

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mm *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mm }
}

// WithAudit sets the audit event logger.
func WithAudit(a *audit.Logger) Option {
	return func(m *Manager) { m.audit = a }
}

// WithRefreshBuffer sets how long before expiry Session triggers a
// refresh. Default: primeauth.DefaultTokenRefreshBuffer.
func WithRefreshBuffer(d time.Duration) Option {
	return func(m *Manager) { m.refreshBuffer = d }
}

// WithAutoRefresh enables a background loop that refreshes the session
// shortly before the access token expires. The loop starts on Initialize
// and stops on Close.
func WithAutoRefresh(enabled bool) Option {
	return func(m *Manager) { m.autoRefresh = enabled }
}

// New creates a session manager in StateUninitialized.
func New(backend primeauth.Backend, store primeauth.SessionStore, validator *token.Validator, opts ...Option) *Manager {
	m := &Manager{
		backend:       backend,
		store:         store,
		validator:     validator,
		logger:        slog.Default(),
		metrics:       metrics.New(false),
		refreshBuffer: primeauth.DefaultTokenRefreshBuffer,
		state:         primeauth.StateUninitialized,
		subs:          make(map[int]func(primeauth.State, *primeauth.Session)),
		stop:          make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Initialize loads a previously persisted session. With no session the
// manager becomes Anonymous; a session failing project validation is
// cleared (RestoreError reports why); a valid one makes the manager
// Authenticated. Restoration failures never surface as errors; startup
// silently falls back to logged out.
func (m *Manager) Initialize(ctx context.Context) error {
	// The check and the Loading transition share one critical section so
	// concurrent Initialize calls cannot both pass the state check.
	m.mu.Lock()
	if m.state != primeauth.StateUninitialized {
		m.mu.Unlock()
		return fmt.Errorf("primeauth/session: already initialized")
	}
	m.state = primeauth.StateLoading
	m.current = nil
	m.gen++
	listeners := m.listenersLocked()
	m.mu.Unlock()

	m.metrics.SetSessionState(float64(primeauth.StateLoading))
	m.notify(listeners, primeauth.StateLoading, nil)

	sess, err := m.store.Load(ctx)
	switch {
	case err != nil:
		m.logger.Warn("failed to load persisted session", "error", err)
		m.setRestoreError(err)
		m.transition(primeauth.StateAnonymous, nil)

	case sess == nil:
		m.transition(primeauth.StateAnonymous, nil)

	case !m.validator.Validate(sess.AccessToken):
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			m.logger.Warn("failed to clear invalid session", "error", clearErr)
		}
		m.setRestoreError(primeauth.ErrInvalidProjectCredentials)
		m.auditEvent(audit.ActionProjectMismatch, audit.ResultDenied, sess.User.ID, "")
		m.transition(primeauth.StateAnonymous, nil)

	default:
		m.auditEvent(audit.ActionSessionRestore, audit.ResultSuccess, sess.User.ID, "")
		m.transition(primeauth.StateAuthenticated, sess)
	}

	if m.autoRefresh {
		m.wg.Add(1)
		go m.autoRefreshLoop()
	}
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() primeauth.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Current returns the authoritative session without touching the
// network, or nil when anonymous.
func (m *Manager) Current() *primeauth.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// RestoreError reports why startup session restoration fell back to
// Anonymous, or nil.
func (m *Manager) RestoreError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restoreErr
}

// Session returns a usable session, refreshing it first when the access
// token is expired or inside the refresh buffer.
func (m *Manager) Session(ctx context.Context) (*primeauth.Session, error) {
	m.mu.RLock()
	cur := m.current.Clone()
	m.mu.RUnlock()

	if cur == nil {
		return nil, primeauth.ErrNoSession
	}
	if !cur.ExpiresWithin(m.refreshBuffer) {
		return cur, nil
	}

	if err := m.Refresh(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	cur = m.current.Clone()
	m.mu.RUnlock()
	if cur == nil {
		return nil, primeauth.ErrNoSession
	}
	return cur, nil
}

// SignIn authenticates with email and password. Credential errors leave
// session state untouched; a project mismatch returns
// primeauth.ErrInvalidProjectCredentials and persists nothing.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*primeauth.Session, error) {
	gen := m.generation()

	sess, err := m.backend.SignIn(ctx, email, password)
	if err != nil {
		m.metrics.RecordAuthAttempt("sign_in", "failure")
		m.auditEvent(audit.ActionSignIn, audit.ResultFailure, "", err.Error())
		return nil, fmt.Errorf("primeauth/session: sign in: %w", err)
	}

	return m.establish(ctx, "sign_in", audit.ActionSignIn, gen, sess)
}

// SignUp registers a new user. Identical contract to SignIn against the
// registration endpoint.
func (m *Manager) SignUp(ctx context.Context, params primeauth.SignUpParams) (*primeauth.Session, error) {
	gen := m.generation()

	sess, err := m.backend.SignUp(ctx, params)
	if err != nil {
		m.metrics.RecordAuthAttempt("sign_up", "failure")
		m.auditEvent(audit.ActionSignUp, audit.ResultFailure, "", err.Error())
		return nil, fmt.Errorf("primeauth/session: sign up: %w", err)
	}

	return m.establish(ctx, "sign_up", audit.ActionSignUp, gen, sess)
}

// establish validates, persists and commits a session returned by the
// backend.
func (m *Manager) establish(ctx context.Context, op, action string, gen uint64, sess *primeauth.Session) (*primeauth.Session, error) {
	if sess == nil || sess.AccessToken == "" || sess.RefreshToken == "" {
		m.logger.Warn("backend response missing session tokens", "operation", op)
		m.metrics.RecordAuthAttempt(op, "failure")
		return nil, primeauth.ErrMissingTokens
	}

	if !m.validator.Validate(sess.AccessToken) {
		m.metrics.RecordAuthAttempt(op, "denied")
		m.auditEvent(audit.ActionProjectMismatch, audit.ResultDenied, sess.User.ID, "")
		return nil, primeauth.ErrInvalidProjectCredentials
	}

	if err := m.commit(ctx, gen, primeauth.StateAuthenticated, sess); err != nil {
		return nil, err
	}

	m.metrics.RecordAuthAttempt(op, "success")
	m.auditEvent(action, audit.ResultSuccess, sess.User.ID, "")
	return sess.Clone(), nil
}

// SignOut invalidates the session. The backend call is best-effort: its
// failure is logged and swallowed because local cleanup must proceed
// even when the network is unreachable. Sign-out always transitions to
// Anonymous.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.RLock()
	var accessToken string
	if m.current != nil {
		accessToken = m.current.AccessToken
	}
	userID := ""
	if m.current != nil {
		userID = m.current.User.ID
	}
	m.mu.RUnlock()

	if accessToken != "" {
		if err := m.backend.SignOut(ctx, accessToken); err != nil {
			m.logger.Warn("backend sign-out failed, clearing local state anyway", "error", err)
		}
	}

	clearErr := m.store.Clear(ctx)
	if clearErr != nil {
		m.logger.Warn("failed to clear session store", "error", clearErr)
	}
	m.transition(primeauth.StateAnonymous, nil)

	m.metrics.RecordAuthAttempt("sign_out", "success")
	m.auditEvent(audit.ActionSignOut, audit.ResultSuccess, userID, "")
	return clearErr
}

// Refresh mints a new session from the stored refresh token. Concurrent
// calls are deduplicated; all callers observe the outcome of a single
// backend exchange. On failure the manager transitions to Anonymous.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.sf.Do("refresh", func() (interface{}, error) {
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	gen := m.generation()

	m.mu.RLock()
	cur := m.current
	var refreshToken, userID string
	if cur != nil {
		refreshToken = cur.RefreshToken
		userID = cur.User.ID
	}
	m.mu.RUnlock()

	if refreshToken == "" {
		return primeauth.ErrNoSession
	}

	sess, err := m.backend.Refresh(ctx, refreshToken)
	if err != nil {
		m.logger.Warn("session refresh failed", "error", err)
		m.metrics.RecordRefresh("failure")
		m.auditEvent(audit.ActionRefresh, audit.ResultFailure, userID, err.Error())
		if commitErr := m.commit(ctx, gen, primeauth.StateAnonymous, nil); commitErr != nil {
			return commitErr
		}
		return fmt.Errorf("primeauth/session: refresh: %w", err)
	}

	if sess == nil || sess.AccessToken == "" || sess.RefreshToken == "" {
		m.metrics.RecordRefresh("failure")
		if commitErr := m.commit(ctx, gen, primeauth.StateAnonymous, nil); commitErr != nil {
			return commitErr
		}
		return primeauth.ErrMissingTokens
	}

	if !m.validator.Validate(sess.AccessToken) {
		m.metrics.RecordRefresh("denied")
		m.auditEvent(audit.ActionProjectMismatch, audit.ResultDenied, sess.User.ID, "")
		if commitErr := m.commit(ctx, gen, primeauth.StateAnonymous, nil); commitErr != nil {
			return commitErr
		}
		return primeauth.ErrInvalidProjectCredentials
	}

	if err := m.commit(ctx, gen, primeauth.StateAuthenticated, sess); err != nil {
		return err
	}
	m.metrics.RecordRefresh("success")
	m.auditEvent(audit.ActionRefresh, audit.ResultSuccess, sess.User.ID, "")
	return nil
}

// ResetPassword starts a password reset flow for the given email.
func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	if err := m.backend.ResetPassword(ctx, email); err != nil {
		m.auditEvent(audit.ActionPasswordReset, audit.ResultFailure, "", err.Error())
		return fmt.Errorf("primeauth/session: reset password: %w", err)
	}
	m.auditEvent(audit.ActionPasswordReset, audit.ResultSuccess, "", "")
	return nil
}

// OnChange registers a session-changed listener and returns its cancel
// function. Listeners fire on every state transition with the new state
// and a copy of the session (nil when anonymous).
func (m *Manager) OnChange(fn func(primeauth.State, *primeauth.Session)) (cancel func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Close stops the background refresh loop and waits for it to exit.
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
	return nil
}

// --- internals ---

func (m *Manager) generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen
}

// transition commits a state change unconditionally.
func (m *Manager) transition(state primeauth.State, sess *primeauth.Session) {
	m.mu.Lock()
	m.state = state
	m.current = sess
	m.gen++
	listeners := m.listenersLocked()
	m.mu.Unlock()

	m.metrics.SetSessionState(float64(state))
	m.notify(listeners, state, sess)
}

// commit applies a state change only if no other transition happened
// since gen was captured. Persistence happens under the lock so writers
// are serialized and a losing transition never touches the store.
func (m *Manager) commit(ctx context.Context, gen uint64, state primeauth.State, sess *primeauth.Session) error {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return primeauth.ErrConflict
	}

	if sess != nil {
		if err := m.store.Save(ctx, sess); err != nil {
			// Keep the in-memory session usable; it just won't survive
			// a restart.
			m.logger.Warn("failed to persist session", "error", err)
		}
	} else {
		if err := m.store.Clear(ctx); err != nil {
			m.logger.Warn("failed to clear session store", "error", err)
		}
	}

	m.state = state
	m.current = sess
	m.gen++
	listeners := m.listenersLocked()
	m.mu.Unlock()

	m.metrics.SetSessionState(float64(state))
	m.notify(listeners, state, sess)
	return nil
}

func (m *Manager) listenersLocked() []func(primeauth.State, *primeauth.Session) {
	out := make([]func(primeauth.State, *primeauth.Session), 0, len(m.subs))
	for _, fn := range m.subs {
		out = append(out, fn)
	}
	return out
}

func (m *Manager) notify(listeners []func(primeauth.State, *primeauth.Session), state primeauth.State, sess *primeauth.Session) {
	for _, fn := range listeners {
		fn(state, sess.Clone())
	}
}

func (m *Manager) setRestoreError(err error) {
	m.mu.Lock()
	m.restoreErr = err
	m.mu.Unlock()
}

func (m *Manager) auditEvent(action, result, userID, errMsg string) {
	if m.audit == nil {
		return
	}
	m.audit.Log(audit.Event{
		Action: action,
		Result: result,
		UserID: userID,
		Error:  errMsg,
	})
}

// autoRefreshLoop refreshes the session shortly before the access token
// expires, standing in for the identity backend's push notifications.
func (m *Manager) autoRefreshLoop() {
	defer m.wg.Done()

	const floor = 30 * time.Second

	for {
		m.mu.RLock()
		cur := m.current
		m.mu.RUnlock()

		wait := m.refreshBuffer
		if cur != nil {
			wait = time.Until(cur.ExpiresAt.Add(-m.refreshBuffer))
			if wait < floor {
				wait = floor
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-m.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		m.mu.RLock()
		due := m.current != nil && m.current.ExpiresWithin(m.refreshBuffer)
		m.mu.RUnlock()
		if !due {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), primeauth.DefaultRequestTimeout)
		if err := m.Refresh(ctx); err != nil {
			m.logger.Warn("background session refresh failed", "error", err)
		}
		cancel()
	}
}
