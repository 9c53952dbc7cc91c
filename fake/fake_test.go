package fake_test

import (
	"context"
	"errors"
	"testing"
	"time"

	primeauth "github.com/primewebsolutions/primeauth-go"
	"github.com/primewebsolutions/primeauth-go/fake"
	"github.com/primewebsolutions/primeauth-go/token"
)

func TestMintToken_CarriesProjectClaim(t *testing.T) {
	tok := fake.MintToken("u1", "proj_abc", time.Now().Add(time.Hour))

	projectID, ok := token.ProjectID(tok)
	if !ok {
		t.Fatal("minted token must carry a project claim")
	}
	if projectID != "proj_abc" {
		t.Errorf("projectId = %q, want proj_abc", projectID)
	}
}

func TestBackend_SignInLifecycle(t *testing.T) {
	be := fake.NewBackend(fake.WithUser("ada@example.com", "pw", "proj_abc"))
	ctx := context.Background()

	sess, err := be.SignIn(ctx, "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}
	if sess.User.Email != "ada@example.com" || sess.AccessToken == "" || sess.RefreshToken == "" {
		t.Errorf("session = %+v", sess)
	}
	if got := be.Calls("sign_in"); got != 1 {
		t.Errorf("sign_in calls = %d, want 1", got)
	}

	if _, err := be.SignIn(ctx, "ada@example.com", "wrong"); !primeauth.IsUnauthorized(err) {
		t.Errorf("wrong password error = %v, want 401", err)
	}
	if _, err := be.SignIn(ctx, "nobody@example.com", "pw"); !primeauth.IsUnauthorized(err) {
		t.Errorf("unknown user error = %v, want 401", err)
	}
}

func TestBackend_SignUpDuplicate(t *testing.T) {
	be := fake.NewBackend(fake.WithUser("ada@example.com", "pw", "proj_abc"))
	ctx := context.Background()

	_, err := be.SignUp(ctx, primeauth.SignUpParams{Email: "ada@example.com", Password: "pw"})
	be2, ok := primeauth.AsBackendError(err)
	if !ok || be2.Status != 409 {
		t.Errorf("duplicate sign-up error = %v, want backend 409", err)
	}
}

func TestBackend_RefreshRotatesTokens(t *testing.T) {
	be := fake.NewBackend(fake.WithUser("ada@example.com", "pw", "proj_abc"))
	ctx := context.Background()

	first, err := be.SignIn(ctx, "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}

	second, err := be.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("refresh must rotate the refresh token")
	}

	// The old refresh token is single-use.
	if _, err := be.Refresh(ctx, first.RefreshToken); !primeauth.IsUnauthorized(err) {
		t.Errorf("reused refresh token error = %v, want 401", err)
	}
}

func TestBackend_InjectedErrors(t *testing.T) {
	be := fake.NewBackend(fake.WithUser("ada@example.com", "pw", "proj_abc"))
	ctx := context.Background()

	queued := &primeauth.BackendError{Status: 503, Message: "overloaded"}
	be.QueueSignInError(queued)
	if _, err := be.SignIn(ctx, "ada@example.com", "pw"); !errors.Is(err, error(queued)) {
		t.Errorf("queued error = %v, want %v", err, queued)
	}
	// Queue is consumed, the next call succeeds.
	if _, err := be.SignIn(ctx, "ada@example.com", "pw"); err != nil {
		t.Errorf("SignIn() after queue drained: %v", err)
	}

	be.SetSignOutError(errors.New("boom"))
	if err := be.SignOut(ctx, "any"); err == nil {
		t.Error("SignOut() should return the injected error")
	}
}

func TestStore_RoundTripAndExpiry(t *testing.T) {
	st := fake.NewStore()
	ctx := context.Background()

	if sess, err := st.Load(ctx); err != nil || sess != nil {
		t.Fatalf("Load() on empty store = %+v, %v", sess, err)
	}

	live := &primeauth.Session{
		User:         primeauth.User{ID: "u1"},
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := st.Save(ctx, live); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := st.Load(ctx)
	if err != nil || got == nil || got.AccessToken != "at" {
		t.Fatalf("Load() = %+v, %v", got, err)
	}

	expired := live.Clone()
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	if err := st.Save(ctx, expired); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if got, err := st.Load(ctx); err != nil || got != nil {
		t.Errorf("Load() of expired session = %+v, %v, want absent", got, err)
	}

	if err := st.Save(ctx, live); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := st.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if got, _ := st.Load(ctx); got != nil {
		t.Error("Load() after Clear should be absent")
	}
}

func TestStore_InjectedErrors(t *testing.T) {
	st := fake.NewStore()
	ctx := context.Background()

	st.SetSaveError(errors.New("disk full"))
	if err := st.Save(ctx, &primeauth.Session{AccessToken: "at"}); err == nil {
		t.Error("Save() should return the injected error")
	}

	st.SetClearError(errors.New("locked"))
	if err := st.Clear(ctx); err == nil {
		t.Error("Clear() should return the injected error")
	}
}
