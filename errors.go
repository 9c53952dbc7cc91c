package primeauth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSession is returned when an operation needs an authenticated
// session and none is available.
var ErrNoSession = errors.New("no authenticated session")

// ErrInvalidProjectCredentials is returned when a token's project claim
// does not match the configured project. The partially established
// session is discarded and never persisted.
var ErrInvalidProjectCredentials = errors.New("invalid project credentials")

// ErrSessionExpired is returned when a 401 survives the single retry and
// the session can no longer be refreshed.
var ErrSessionExpired = errors.New("session expired, please sign in again")

// ErrMissingTokens is returned when the backend reports success but the
// response carries no session tokens.
var ErrMissingTokens = errors.New("backend response missing session tokens")

// ErrConflict is returned when a session transition loses a generation
// race against a concurrent transition. The caller may re-read state and
// retry.
var ErrConflict = errors.New("session state changed concurrently")

// BackendError carries a server-reported failure from the identity
// backend.
type BackendError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return e.Message
}

// AsBackendError unwraps err into a *BackendError if one is in the chain.
func AsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsUnauthorized reports whether err is a backend 401.
func IsUnauthorized(err error) bool {
	be, ok := AsBackendError(err)
	return ok && be.Status == 401
}

// GenericErrorMessage is the fallback shown when the backend provides no
// usable message.
const GenericErrorMessage = "Something went wrong. Please try again."

// friendlyPatterns maps known backend error fragments to user-facing
// messages. Matching is case-insensitive substring, in order.
var friendlyPatterns = []struct {
	fragment string
	message  string
}{
	{"invalid email or password", "Invalid email or password."},
	{"invalid credentials", "Invalid email or password."},
	{"user not found", "Invalid email or password."},
	{"already exists", "An account with this email already exists."},
	{"already registered", "An account with this email already exists."},
	{"weak password", "Password is too weak. Use at least 8 characters."},
	{"password too short", "Password is too weak. Use at least 8 characters."},
	{"invalid email", "Please enter a valid email address."},
}

// FriendlyMessage maps err to a message suitable for inline display.
// Known credential-error patterns get a friendlier phrasing; other
// backend messages pass through verbatim; everything else falls back to
// GenericErrorMessage.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrInvalidProjectCredentials):
		return "invalid project credentials"
	case errors.Is(err, ErrSessionExpired):
		return ErrSessionExpired.Error()
	}

	be, ok := AsBackendError(err)
	if !ok || be.Message == "" {
		return GenericErrorMessage
	}

	lower := strings.ToLower(be.Message)
	for _, p := range friendlyPatterns {
		if strings.Contains(lower, p.fragment) {
			return p.message
		}
	}
	return be.Message
}

// IsCredentialError reports whether err looks like a rejected credential
// (bad password, duplicate account, weak password). Credential errors are
// never retried and leave session state untouched.
func IsCredentialError(err error) bool {
	be, ok := AsBackendError(err)
	if !ok {
		return false
	}
	if be.Status == 400 || be.Status == 401 || be.Status == 409 || be.Status == 422 {
		return true
	}
	lower := strings.ToLower(be.Message)
	for _, p := range friendlyPatterns {
		if strings.Contains(lower, p.fragment) {
			return true
		}
	}
	return false
}
