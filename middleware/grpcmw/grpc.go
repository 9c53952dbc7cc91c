// Package grpcmw attaches the current session's bearer credential to
// outbound gRPC calls via credentials.PerRPCCredentials.
//
// Use it when an application that authenticates through this SDK also
// talks to gRPC services that accept the same access tokens:
//
//	conn, err := grpc.NewClient(target,
//	    grpc.WithPerRPCCredentials(grpcmw.SessionCredentials(mgr)),
//	)
package grpcmw

import (
	"context"
	"fmt"

	"google.golang.org/grpc/credentials"

	primeauth "github.com/primewebsolutions/primeauth-go"
)

// TokenSource supplies sessions per RPC. *session.Manager satisfies it.
type TokenSource interface {
	Session(ctx context.Context) (*primeauth.Session, error)
}

// Option configures the credentials.
type Option func(*sessionCreds)

// WithInsecureTransport allows sending the token over non-TLS
// connections. Local development only.
func WithInsecureTransport() Option {
	return func(s *sessionCreds) { s.requireTLS = false }
}

type sessionCreds struct {
	source     TokenSource
	requireTLS bool
}

// compile-time check
var _ credentials.PerRPCCredentials = (*sessionCreds)(nil)

// SessionCredentials returns per-RPC credentials that resolve a fresh
// access token from the session manager on every call, refreshing it
// near expiry the same way the HTTP request client does.
func SessionCredentials(source TokenSource, opts ...Option) credentials.PerRPCCredentials {
	s := &sessionCreds{
		source:     source,
		requireTLS: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (s *sessionCreds) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	sess, err := s.source.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("primeauth/grpcmw: %w", err)
	}
	return map[string]string{
		"authorization": "Bearer " + sess.AccessToken,
	}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials.
func (s *sessionCreds) RequireTransportSecurity() bool {
	return s.requireTLS
}
