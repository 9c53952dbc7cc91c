package primeauth

import "time"

// State describes the session manager lifecycle.
type State int

const (
	// StateUninitialized means Initialize has not been called yet.
	StateUninitialized State = iota

	// StateLoading means a persisted session is being restored.
	StateLoading

	// StateAuthenticated means a validated session is active.
	StateAuthenticated

	// StateAnonymous means no session is active.
	StateAnonymous
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// User represents an authenticated user of a project.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	DisplayName   string         `json:"displayName,omitempty"`
	PhotoURL      string         `json:"photoURL,omitempty"`
	EmailVerified bool           `json:"emailVerified"`
	ProjectID     string         `json:"projectId"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Session is the authenticated unit of work. The access token is a
// short-lived bearer credential whose claims carry the owning project ID;
// the refresh token is used solely to mint a new access token.
type Session struct {
	User         User      `json:"user"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the access token is past its expiry.
func (s *Session) Expired() bool {
	return !s.ExpiresAt.After(time.Now())
}

// ExpiresWithin reports whether the access token expires inside the given
// window from now.
func (s *Session) ExpiresWithin(d time.Duration) bool {
	return !s.ExpiresAt.After(time.Now().Add(d))
}

// Clone returns a copy deep enough that callers cannot mutate the
// manager's authoritative state through shared maps.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.User.Metadata != nil {
		out.User.Metadata = make(map[string]any, len(s.User.Metadata))
		for k, v := range s.User.Metadata {
			out.User.Metadata[k] = v
		}
	}
	return &out
}

// SignUpParams carries the registration payload.
type SignUpParams struct {
	Email       string         `json:"email"`
	Password    string         `json:"password"`
	DisplayName string         `json:"displayName,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// RequestOptions is per-call configuration for the authenticated request
// client. The zero value attaches a bearer credential and uses the
// client's default timeout.
type RequestOptions struct {
	// Headers are extra headers merged into the request.
	Headers map[string]string

	// SkipAuth skips resolving and attaching a bearer credential,
	// for public endpoints.
	SkipAuth bool

	// Timeout overrides the client's default per-request timeout.
	Timeout time.Duration
}
