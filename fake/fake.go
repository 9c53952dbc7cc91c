// Package fake provides in-memory implementations of the identity
// backend and session store for testing.
//
// Use fake.NewBackend() in unit tests to avoid network calls and
// external dependencies. Access tokens are minted as unsigned JWT-shaped
// strings carrying the projectId claim, so the token decoder and
// validator work on them unchanged.
package fake

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	primeauth "github.com/primewebsolutions/primeauth-go"
)

// MintToken builds an unsigned JWT-shaped access token with the given
// subject and project claims. The signature segment is not valid; local
// decoding never verifies it.
func MintToken(userID, projectID string, expiresAt time.Time) string {
	header, _ := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	claims := map[string]any{
		"sub": userID,
		"exp": expiresAt.Unix(),
	}
	if projectID != "" {
		claims["projectId"] = projectID
	}
	payload, _ := json.Marshal(claims)

	enc := base64.RawURLEncoding
	return fmt.Sprintf("%s.%s.%s",
		enc.EncodeToString(header),
		enc.EncodeToString(payload),
		enc.EncodeToString([]byte("fake")))
}

type account struct {
	user     primeauth.User
	password string
}

// Backend is an in-memory primeauth.Backend.
type Backend struct {
	mu         sync.Mutex
	accounts   map[string]*account           // email → account
	sessions   map[string]*primeauth.Session // refreshToken → session
	calls      map[string]int                // operation → count
	tokenTTL   time.Duration
	signOutErr error
	refreshErr error
	signInErrs []error // consumed front-to-back before real sign-in
}

// compile-time check
var _ primeauth.Backend = (*Backend)(nil)

// Option configures the fake backend.
type Option func(*Backend)

// WithUser registers an account.
func WithUser(email, password, projectID string) Option {
	return func(b *Backend) {
		b.accounts[email] = &account{
			user: primeauth.User{
				ID:            uuid.NewString(),
				Email:         email,
				EmailVerified: true,
				ProjectID:     projectID,
				CreatedAt:     time.Now(),
				UpdatedAt:     time.Now(),
			},
			password: password,
		}
	}
}

// WithTokenTTL sets the lifetime of minted access tokens.
// Default: 1 hour.
func WithTokenTTL(d time.Duration) Option {
	return func(b *Backend) { b.tokenTTL = d }
}

// NewBackend creates an in-memory identity backend.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		accounts: make(map[string]*account),
		sessions: make(map[string]*primeauth.Session),
		calls:    make(map[string]int),
		tokenTTL: time.Hour,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Calls returns how many times the named operation was invoked
// (sign_up, sign_in, sign_out, refresh, get_session, reset_password).
func (b *Backend) Calls(operation string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[operation]
}

// SetSignOutError makes subsequent SignOut calls fail with err.
func (b *Backend) SetSignOutError(err error) {
	b.mu.Lock()
	b.signOutErr = err
	b.mu.Unlock()
}

// SetRefreshError makes subsequent Refresh calls fail with err.
func (b *Backend) SetRefreshError(err error) {
	b.mu.Lock()
	b.refreshErr = err
	b.mu.Unlock()
}

// QueueSignInError makes the next SignIn call fail with err.
func (b *Backend) QueueSignInError(err error) {
	b.mu.Lock()
	b.signInErrs = append(b.signInErrs, err)
	b.mu.Unlock()
}

// SignUp registers a new user and returns an established session.
func (b *Backend) SignUp(_ context.Context, params primeauth.SignUpParams) (*primeauth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["sign_up"]++

	if _, exists := b.accounts[params.Email]; exists {
		return nil, &primeauth.BackendError{Status: 409, Message: "user already exists"}
	}

	acct := &account{
		user: primeauth.User{
			ID:          uuid.NewString(),
			Email:       params.Email,
			DisplayName: params.DisplayName,
			Metadata:    params.Metadata,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		},
		password: params.Password,
	}
	b.accounts[params.Email] = acct
	return b.mintSessionLocked(acct), nil
}

// SignIn authenticates with email and password.
func (b *Backend) SignIn(_ context.Context, email, password string) (*primeauth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["sign_in"]++

	if len(b.signInErrs) > 0 {
		err := b.signInErrs[0]
		b.signInErrs = b.signInErrs[1:]
		return nil, err
	}

	acct, ok := b.accounts[email]
	if !ok || acct.password != password {
		return nil, &primeauth.BackendError{Status: 401, Message: "invalid email or password"}
	}
	return b.mintSessionLocked(acct), nil
}

// SignOut invalidates the session identified by accessToken.
func (b *Backend) SignOut(_ context.Context, accessToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["sign_out"]++

	if b.signOutErr != nil {
		return b.signOutErr
	}
	for rt, sess := range b.sessions {
		if sess.AccessToken == accessToken {
			delete(b.sessions, rt)
		}
	}
	return nil
}

// Refresh mints a new session from a refresh token.
func (b *Backend) Refresh(_ context.Context, refreshToken string) (*primeauth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["refresh"]++

	if b.refreshErr != nil {
		return nil, b.refreshErr
	}

	sess, ok := b.sessions[refreshToken]
	if !ok {
		return nil, &primeauth.BackendError{Status: 401, Message: "invalid refresh token"}
	}
	delete(b.sessions, refreshToken)

	acct, ok := b.accounts[sess.User.Email]
	if !ok {
		return nil, &primeauth.BackendError{Status: 401, Message: "unknown user"}
	}
	return b.mintSessionLocked(acct), nil
}

// GetSession returns the session identified by accessToken.
func (b *Backend) GetSession(_ context.Context, accessToken string) (*primeauth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["get_session"]++

	for _, sess := range b.sessions {
		if sess.AccessToken == accessToken {
			return sess.Clone(), nil
		}
	}
	return nil, &primeauth.BackendError{Status: 401, Message: "invalid access token"}
}

// ResetPassword records the reset request. It succeeds even for unknown
// emails so the fake does not leak account existence.
func (b *Backend) ResetPassword(_ context.Context, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["reset_password"]++
	return nil
}

func (b *Backend) mintSessionLocked(acct *account) *primeauth.Session {
	expiresAt := time.Now().Add(b.tokenTTL)
	sess := &primeauth.Session{
		User:         acct.user,
		AccessToken:  MintToken(acct.user.ID, acct.user.ProjectID, expiresAt),
		RefreshToken: uuid.NewString(),
		ExpiresAt:    expiresAt,
	}
	b.sessions[sess.RefreshToken] = sess
	return sess.Clone()
}

// Store is an in-memory primeauth.SessionStore.
type Store struct {
	mu   sync.Mutex
	sess *primeauth.Session

	saveErr  error
	clearErr error
}

// compile-time check
var _ primeauth.SessionStore = (*Store)(nil)

// NewStore creates an empty in-memory session store.
func NewStore() *Store {
	return &Store{}
}

// SetSaveError makes subsequent Save calls fail with err.
func (s *Store) SetSaveError(err error) {
	s.mu.Lock()
	s.saveErr = err
	s.mu.Unlock()
}

// SetClearError makes subsequent Clear calls fail with err.
func (s *Store) SetClearError(err error) {
	s.mu.Lock()
	s.clearErr = err
	s.mu.Unlock()
}

// Load returns the stored session, treating an expired one as absent.
func (s *Store) Load(_ context.Context) (*primeauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil || s.sess.Expired() {
		return nil, nil
	}
	return s.sess.Clone(), nil
}

// Save stores the session.
func (s *Store) Save(_ context.Context, sess *primeauth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.sess = sess.Clone()
	return nil
}

// Clear removes the stored session.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	s.sess = nil
	return nil
}
