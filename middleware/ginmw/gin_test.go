package ginmw_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	primeauth "github.com/primewebsolutions/primeauth-go"
	"github.com/primewebsolutions/primeauth-go/guard"
	"github.com/primewebsolutions/primeauth-go/middleware/ginmw"
)

type staticSource struct {
	state primeauth.State
	sess  *primeauth.Session
}

func (s *staticSource) State() primeauth.State      { return s.state }
func (s *staticSource) Current() *primeauth.Session { return s.sess }

func newRouter(src *staticSource, opts ...ginmw.GuardOption) *gin.Engine {
	gin.SetMode(gin.TestMode)
	g := guard.New(
		guard.WithPublicPrefixes("/", "/login"),
		guard.WithHomePath("/dashboard"),
	)
	r := gin.New()
	r.Use(ginmw.Guard(src, g, opts...))
	r.GET("/login", func(c *gin.Context) { c.String(http.StatusOK, "login page") })
	r.GET("/dashboard", func(c *gin.Context) {
		c.String(http.StatusOK, "hello "+ginmw.GetUserID(c))
	})
	return r
}

func get(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGuard_LoadingServesPlaceholder(t *testing.T) {
	r := newRouter(&staticSource{state: primeauth.StateLoading}, ginmw.WithLoadingBody("one moment"))

	w := get(t, r, "/dashboard")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want %q", got, "1")
	}
	if w.Body.String() != "one moment" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestGuard_AnonymousRedirectsToLogin(t *testing.T) {
	r := newRouter(&staticSource{state: primeauth.StateAnonymous})

	w := get(t, r, "/dashboard")
	if w.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/login" {
		t.Errorf("Location = %q, want /login", got)
	}
}

func TestGuard_AnonymousRendersPublic(t *testing.T) {
	r := newRouter(&staticSource{state: primeauth.StateAnonymous})

	w := get(t, r, "/login")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "login page" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestGuard_AuthenticatedRedirectedOffPublic(t *testing.T) {
	src := &staticSource{
		state: primeauth.StateAuthenticated,
		sess:  &primeauth.Session{User: primeauth.User{ID: "u1"}},
	}
	r := newRouter(src)

	w := get(t, r, "/login")
	if w.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/dashboard" {
		t.Errorf("Location = %q, want /dashboard", got)
	}
}

func TestGuard_RenderStoresSessionInContext(t *testing.T) {
	sess := &primeauth.Session{
		User: primeauth.User{
			ID:        "u1",
			Email:     "ada@example.com",
			ProjectID: "proj_abc",
		},
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	src := &staticSource{state: primeauth.StateAuthenticated, sess: sess}

	gin.SetMode(gin.TestMode)
	g := guard.New(guard.WithPublicPrefixes("/login"))
	r := gin.New()
	r.Use(ginmw.Guard(src, g))
	r.GET("/profile", func(c *gin.Context) {
		if got := ginmw.GetUserID(c); got != "u1" {
			t.Errorf("GetUserID = %q, want u1", got)
		}
		if got := ginmw.GetProjectID(c); got != "proj_abc" {
			t.Errorf("GetProjectID = %q, want proj_abc", got)
		}
		if got := ginmw.GetSession(c); got == nil || got.AccessToken != "tok" {
			t.Errorf("GetSession = %+v", got)
		}
		c.Status(http.StatusOK)
	})

	w := get(t, r, "/profile")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestContextHelpers_EmptyContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if got := ginmw.GetUserID(c); got != "" {
		t.Errorf("GetUserID = %q, want empty", got)
	}
	if got := ginmw.GetSession(c); got != nil {
		t.Errorf("GetSession = %+v, want nil", got)
	}
}
