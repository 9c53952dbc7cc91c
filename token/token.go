// Package token provides best-effort local reads of access token claims
// and project-identity validation.
//
// Decoding never verifies a cryptographic signature; verification
// happens server-side. Malformed or foreign tokens degrade to "no
// claims" instead of erroring, so that un-instrumented deployments keep
// working.
package token

import (
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	primeauth "github.com/primewebsolutions/primeauth-go"
)

// ProjectIDClaim is the access token claim carrying the owning project.
const ProjectIDClaim = "projectId"

// DecodeClaims parses the claim set out of a compact JWS token without
// verifying its signature. It returns (nil, false) for anything that is
// not three dot-separated segments with a base64url JSON payload.
func DecodeClaims(tokenString string) (jwt.MapClaims, bool) {
	if strings.Count(tokenString, ".") != 2 {
		return nil, false
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, false
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	return claims, true
}

// ProjectID extracts the project identifier claim from the token.
// It returns ("", false) when the token has no claims or the claim is
// absent or not a string.
func ProjectID(tokenString string) (string, bool) {
	claims, ok := DecodeClaims(tokenString)
	if !ok {
		return "", false
	}
	id, ok := claims[ProjectIDClaim].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Validator gatekeeps cross-project token use. It is applied on every
// session transition and is side-effect-free apart from logging.
type Validator struct {
	projectID string
	logger    *slog.Logger
}

// ValidatorOption configures the Validator.
type ValidatorOption func(*Validator)

// WithLogger sets a structured logger for mismatch warnings.
func WithLogger(l *slog.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = l }
}

// NewValidator creates a validator for the expected project ID. An empty
// ID or the primeauth.DevProjectID sentinel disables validation.
func NewValidator(projectID string, opts ...ValidatorOption) *Validator {
	v := &Validator{
		projectID: projectID,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Enabled reports whether validation is active.
func (v *Validator) Enabled() bool {
	return v.projectID != "" && v.projectID != primeauth.DevProjectID
}

// Validate reports whether the token may be used under the expected
// project. Tokens without a readable project claim pass: the claim was
// introduced after tokens were already in the wild, so absence cannot
// prove a mismatch.
func (v *Validator) Validate(tokenString string) bool {
	if !v.Enabled() {
		return true
	}

	claim, ok := ProjectID(tokenString)
	if !ok {
		return true
	}

	if claim != v.projectID {
		v.logger.Warn("token project does not match configured project",
			"token_project_id", claim,
			"expected_project_id", v.projectID)
		return false
	}
	return true
}
