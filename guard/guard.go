// Package guard decides, per navigation, whether to render a route,
// show a loading placeholder, or redirect based on session state and a
// statically configured list of public path prefixes.
package guard

import (
	"strings"

	primeauth "github.com/primewebsolutions/primeauth-go"
)

// Action is what the caller should do with the current navigation.
type Action int

const (
	// ActionRender renders the route normally.
	ActionRender Action = iota

	// ActionShowLoading renders a loading placeholder while session
	// restoration is in progress. No redirect.
	ActionShowLoading

	// ActionRedirect redirects to Decision.Target.
	ActionRedirect
)

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case ActionRender:
		return "render"
	case ActionShowLoading:
		return "show_loading"
	case ActionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the outcome of a guard check.
type Decision struct {
	Action Action

	// Target is the redirect destination when Action is ActionRedirect.
	Target string
}

// Guard holds the static route configuration.
type Guard struct {
	publicPrefixes []string
	loginPath      string
	homePath       string
}

// Option configures the Guard.
type Option func(*Guard)

// WithPublicPrefixes sets the path prefixes reachable without a session.
func WithPublicPrefixes(prefixes ...string) Option {
	return func(g *Guard) { g.publicPrefixes = prefixes }
}

// WithLoginPath sets where anonymous users are sent from protected
// routes. Default: "/login".
func WithLoginPath(path string) Option {
	return func(g *Guard) { g.loginPath = path }
}

// WithHomePath sets where authenticated users are sent away from
// public-only routes. Default: "/home".
func WithHomePath(path string) Option {
	return func(g *Guard) { g.homePath = path }
}

// New creates a route guard.
func New(opts ...Option) *Guard {
	g := &Guard{
		loginPath: "/login",
		homePath:  "/home",
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Decide maps (session state, path) onto an action:
//
//	Loading       any         → show loading placeholder
//	Anonymous     protected   → redirect to the login path
//	Anonymous     public      → render
//	Authenticated protected   → render
//	Authenticated public path → redirect to the home path, except the
//	                            root path which always renders
func (g *Guard) Decide(state primeauth.State, path string) Decision {
	switch state {
	case primeauth.StateUninitialized, primeauth.StateLoading:
		return Decision{Action: ActionShowLoading}

	case primeauth.StateAnonymous:
		if g.IsPublic(path) {
			return Decision{Action: ActionRender}
		}
		return Decision{Action: ActionRedirect, Target: g.loginPath}

	default: // StateAuthenticated
		if g.IsPublic(path) && path != "/" {
			return Decision{Action: ActionRedirect, Target: g.homePath}
		}
		return Decision{Action: ActionRender}
	}
}

// IsPublic reports whether path matches a configured public prefix: an
// exact match, or (for any prefix other than the root path) a
// `prefix + "/"` prefix match. The root path matches only exactly, so a
// public "/" never marks the entire site public.
func (g *Guard) IsPublic(path string) bool {
	for _, prefix := range g.publicPrefixes {
		if path == prefix {
			return true
		}
		if prefix != "/" && strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
