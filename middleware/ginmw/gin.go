// Package ginmw provides Gin HTTP middleware that applies the route
// guard on every navigation.
//
// The middleware consumes the session manager's state through a narrow
// interface, with no direct dependency on any specific backend.
package ginmw

import (
	"net/http"

	"github.com/gin-gonic/gin"

	primeauth "github.com/primewebsolutions/primeauth-go"
	"github.com/primewebsolutions/primeauth-go/guard"
	"github.com/primewebsolutions/primeauth-go/metrics"
)

// Context keys for storing session data in gin.Context.
const (
	KeyUserID    = "primeauth_user_id"
	KeyProjectID = "primeauth_project_id"
	KeySession   = "primeauth_session"
)

// SessionSource exposes the session state the guard decides on.
// *session.Manager satisfies it.
type SessionSource interface {
	State() primeauth.State
	Current() *primeauth.Session
}

// GuardOption configures Guard middleware behavior.
type GuardOption func(*guardConfig)

type guardConfig struct {
	loadingBody string
	metrics     *metrics.Metrics
}

// WithLoadingBody sets the placeholder served while session restoration
// is in progress.
func WithLoadingBody(body string) GuardOption {
	return func(cfg *guardConfig) { cfg.loadingBody = body }
}

// WithMetrics records guard decisions to the given sink.
func WithMetrics(m *metrics.Metrics) GuardOption {
	return func(cfg *guardConfig) { cfg.metrics = m }
}

// Guard returns Gin middleware that enforces the route guard decision
// for the request path: pass through on render, 303 on redirect, and a
// neutral placeholder while the session is still loading. On render it
// stores the user and session in the context (retrievable via GetUserID,
// GetSession, etc.).
func Guard(src SessionSource, g *guard.Guard, opts ...GuardOption) gin.HandlerFunc {
	cfg := &guardConfig{
		loadingBody: "Loading…",
		metrics:     metrics.New(false),
	}
	for _, o := range opts {
		o(cfg)
	}

	return func(c *gin.Context) {
		state := src.State()
		decision := g.Decide(state, c.Request.URL.Path)
		cfg.metrics.RecordGuardDecision(decision.Action.String())

		switch decision.Action {
		case guard.ActionShowLoading:
			c.Header("Retry-After", "1")
			c.String(http.StatusServiceUnavailable, cfg.loadingBody)
			c.Abort()

		case guard.ActionRedirect:
			c.Redirect(http.StatusSeeOther, decision.Target)
			c.Abort()

		default:
			if sess := src.Current(); sess != nil {
				c.Set(KeySession, sess)
				c.Set(KeyUserID, sess.User.ID)
				c.Set(KeyProjectID, sess.User.ProjectID)
			}
			c.Next()
		}
	}
}

// --- Context helpers ---

// GetUserID returns the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) string {
	v, _ := c.Get(KeyUserID)
	s, _ := v.(string)
	return s
}

// GetProjectID returns the project ID from the Gin context.
func GetProjectID(c *gin.Context) string {
	v, _ := c.Get(KeyProjectID)
	s, _ := v.(string)
	return s
}

// GetSession returns the current session from the Gin context.
func GetSession(c *gin.Context) *primeauth.Session {
	v, _ := c.Get(KeySession)
	s, _ := v.(*primeauth.Session)
	return s
}
