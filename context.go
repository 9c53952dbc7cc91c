package primeauth

import "context"

type ctxKey string

const (
	ctxKeyUserID    ctxKey = "primeauth_user_id"
	ctxKeyProjectID ctxKey = "primeauth_project_id"
	ctxKeySession   ctxKey = "primeauth_session"
)

// WithUserID stores the authenticated user ID in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// UserIDFromContext extracts the authenticated user ID from the context.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUserID).(string)
	return v
}

// WithProjectID stores the project ID in the context.
func WithProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, ctxKeyProjectID, projectID)
}

// ProjectIDFromContext extracts the project ID from the context.
func ProjectIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyProjectID).(string)
	return v
}

// WithSession stores the current session in the context.
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, session)
}

// SessionFromContext extracts the current session from the context.
func SessionFromContext(ctx context.Context) *Session {
	v, _ := ctx.Value(ctxKeySession).(*Session)
	return v
}
