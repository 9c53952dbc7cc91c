package primeauth

import (
	"context"
	"encoding/json"
)

// Backend is the external identity backend consumed by the session
// manager. Implementations: backend/ (JSON over HTTPS), fake/ (testing).
//
// Server-reported failures are returned as *BackendError so that callers
// can surface the server message; transport failures are plain errors.
type Backend interface {
	// SignUp registers a new user and returns the established session.
	SignUp(ctx context.Context, params SignUpParams) (*Session, error)

	// SignIn authenticates with email and password.
	SignIn(ctx context.Context, email, password string) (*Session, error)

	// SignOut invalidates the session identified by accessToken.
	SignOut(ctx context.Context, accessToken string) error

	// Refresh mints a new session from a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*Session, error)

	// GetSession returns the server-side view of the session identified
	// by accessToken.
	GetSession(ctx context.Context, accessToken string) (*Session, error)

	// ResetPassword starts a password reset flow for the given email.
	ResetPassword(ctx context.Context, email string) error
}

// SessionStore persists the current session across process restarts.
// Load returns (nil, nil) when no session is stored; an expired session
// is treated as absent. Implementations: store/ (key/value backed),
// fake/ (in-memory).
type SessionStore interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Clear(ctx context.Context) error
}

// SessionManager drives the authenticated session lifecycle.
// Implementation: session/.
type SessionManager interface {
	// Initialize restores a persisted session and moves the manager out
	// of StateUninitialized.
	Initialize(ctx context.Context) error

	// State returns the current lifecycle state.
	State() State

	// Current returns the authoritative session without touching the
	// network, or nil when anonymous.
	Current() *Session

	// Session returns a usable session, refreshing it first when the
	// access token is expired or inside the refresh buffer.
	Session(ctx context.Context) (*Session, error)

	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, params SignUpParams) (*Session, error)
	SignOut(ctx context.Context) error
	Refresh(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error

	// OnChange registers a session-changed listener and returns its
	// cancel function. The listener fires on every state transition.
	OnChange(fn func(State, *Session)) (cancel func())
}

// Response is the discriminated result of an authenticated request. All
// failure modes are carried in Err; Do never panics.
type Response struct {
	// Success mirrors the backend envelope's success flag.
	Success bool

	// Data is the unwrapped payload on success.
	Data json.RawMessage

	// Message is an optional server-provided message.
	Message string

	// Err is set on any failure: no session, transport error, timeout,
	// non-2xx status, or an envelope with success=false.
	Err error
}

// Decode unmarshals the response payload into v.
func (r *Response) Decode(v any) error {
	if r.Err != nil {
		return r.Err
	}
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Requester executes authenticated requests against application
// endpoints. Implementation: request/.
type Requester interface {
	Do(ctx context.Context, method, path string, body any, opts *RequestOptions) Response
}
