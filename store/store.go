// Package store persists the current session across process restarts.
//
// Sessions are written to a pluggable key/value backend as three
// JSON-serialized entries (session blob, access token, refresh token);
// absence of any entry is treated as "no session". A short-lived
// in-memory cache in front of the backend avoids redundant reads.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	primeauth "github.com/primewebsolutions/primeauth-go"
)

// Storage keys for the three persisted entries.
const (
	KeySession      = "primeauth.session"
	KeyAccessToken  = "primeauth.accessToken"
	KeyRefreshToken = "primeauth.refreshToken"
)

// DefaultCacheTTL bounds how long a loaded session is served from memory
// before the backend is consulted again.
const DefaultCacheTTL = 30 * time.Second

// KV is the minimal key/value contract the session store writes through.
// Implementations: FileKV (JSON file), MemoryKV (testing, ephemeral).
type KV interface {
	// Get returns the value for key, or ok=false when absent.
	Get(key string) (value []byte, ok bool, err error)

	// Set writes the value for key.
	Set(key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}

// SessionStore implements primeauth.SessionStore on top of a KV backend.
type SessionStore struct {
	kv  KV
	ttl time.Duration

	mu       sync.Mutex
	cached   *primeauth.Session
	cachedAt time.Time
	haveMiss bool // cached negative lookup
}

// compile-time check
var _ primeauth.SessionStore = (*SessionStore)(nil)

// Option configures the SessionStore.
type Option func(*SessionStore)

// WithCacheTTL sets how long loaded sessions are served from memory.
func WithCacheTTL(d time.Duration) Option {
	return func(s *SessionStore) { s.ttl = d }
}

// New creates a session store over the given KV backend.
func New(kv KV, opts ...Option) *SessionStore {
	s := &SessionStore{
		kv:  kv,
		ttl: DefaultCacheTTL,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load returns the persisted session, or (nil, nil) when none is stored.
// A session whose expiry is in the past is cleared and treated as absent.
func (s *SessionStore) Load(ctx context.Context) (*primeauth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if time.Since(s.cachedAt) < s.ttl {
		if s.cached != nil {
			sess := s.cached.Clone()
			s.mu.Unlock()
			if sess.Expired() {
				return nil, s.Clear(ctx)
			}
			return sess, nil
		}
		if s.haveMiss {
			s.mu.Unlock()
			return nil, nil
		}
	}
	s.mu.Unlock()

	sess, err := s.loadBackend()
	if err != nil {
		return nil, err
	}

	if sess != nil && sess.Expired() {
		if err := s.Clear(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	s.mu.Lock()
	s.cached = sess.Clone()
	s.haveMiss = sess == nil
	s.cachedAt = time.Now()
	s.mu.Unlock()

	return sess, nil
}

// loadBackend reads and cross-checks the three persisted entries.
func (s *SessionStore) loadBackend() (*primeauth.Session, error) {
	blob, ok, err := s.kv.Get(KeySession)
	if err != nil {
		return nil, fmt.Errorf("primeauth/store: read session: %w", err)
	}
	if !ok {
		return nil, nil
	}

	_, haveAccess, err := s.kv.Get(KeyAccessToken)
	if err != nil {
		return nil, fmt.Errorf("primeauth/store: read access token: %w", err)
	}
	_, haveRefresh, err := s.kv.Get(KeyRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("primeauth/store: read refresh token: %w", err)
	}
	if !haveAccess || !haveRefresh {
		return nil, nil
	}

	var sess primeauth.Session
	if err := json.Unmarshal(blob, &sess); err != nil {
		// A corrupt blob is unrecoverable; treat as no session.
		return nil, nil
	}
	return &sess, nil
}

// Save persists the session as three entries and refreshes the cache.
func (s *SessionStore) Save(ctx context.Context, session *primeauth.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if session == nil {
		return s.Clear(ctx)
	}

	blob, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("primeauth/store: marshal session: %w", err)
	}
	access, err := json.Marshal(session.AccessToken)
	if err != nil {
		return fmt.Errorf("primeauth/store: marshal access token: %w", err)
	}
	refresh, err := json.Marshal(session.RefreshToken)
	if err != nil {
		return fmt.Errorf("primeauth/store: marshal refresh token: %w", err)
	}

	if err := s.kv.Set(KeySession, blob); err != nil {
		return fmt.Errorf("primeauth/store: write session: %w", err)
	}
	if err := s.kv.Set(KeyAccessToken, access); err != nil {
		return fmt.Errorf("primeauth/store: write access token: %w", err)
	}
	if err := s.kv.Set(KeyRefreshToken, refresh); err != nil {
		return fmt.Errorf("primeauth/store: write refresh token: %w", err)
	}

	s.mu.Lock()
	s.cached = session.Clone()
	s.haveMiss = false
	s.cachedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// Clear removes all persisted entries and drops the cache.
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var firstErr error
	for _, key := range []string{KeySession, KeyAccessToken, KeyRefreshToken} {
		if err := s.kv.Delete(key); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("primeauth/store: delete %s: %w", key, err)
		}
	}

	s.mu.Lock()
	s.cached = nil
	s.haveMiss = true
	s.cachedAt = time.Now()
	s.mu.Unlock()
	return firstErr
}
