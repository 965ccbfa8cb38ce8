// Package auth verifies the bearer tokens presented at the gateway's ingress
// and extracts the agent identity bound into a session at login. Two verifiers
// are provided: a shared-secret HMAC verifier for simple deployments, and a
// JWKS-backed verifier with automatic key refresh for issuers that publish
// their signing keys.
package auth

import (
	"context"
	"errors"
	"fmt"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized indicates the presented token failed verification.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the authenticated principal extracted from a token.
type Identity struct {
	// AgentName is the display identity bound into the session on login.
	AgentName string
	// Subject is the token's sub claim.
	Subject string
}

// Verifier checks a bearer token and returns the identity it asserts.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// identityFromClaims pulls the agent identity out of verified claims. The
// agent claim wins; sub is the fallback.
func identityFromClaims(claims jwt.MapClaims) (Identity, error) {
	sub, _ := claims["sub"].(string)
	agent, _ := claims["agent"].(string)
	if agent == "" {
		agent = sub
	}
	if agent == "" {
		return Identity{}, fmt.Errorf("%w: token asserts no identity", ErrUnauthorized)
	}
	return Identity{AgentName: agent, Subject: sub}, nil
}

// HMACVerifier verifies tokens signed with a shared HS256 secret.
type HMACVerifier struct {
	secret []byte
}

var _ Verifier = (*HMACVerifier)(nil)

// NewHMACVerifier builds a verifier over the shared secret.
func NewHMACVerifier(secret []byte) (*HMACVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty HMAC secret")
	}
	return &HMACVerifier{secret: secret}, nil
}

func (v *HMACVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.Parse(token, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid claims type")
	}
	return identityFromClaims(claims)
}

// JWKSVerifier verifies tokens against an issuer's published JWKS. The key
// set refreshes itself in the background for the lifetime of the context
// passed to NewJWKSVerifier.
type JWKSVerifier struct {
	issuer  string
	keyfunc jwt.Keyfunc
}

var _ Verifier = (*JWKSVerifier)(nil)

// NewJWKSVerifier fetches the JWKS at jwksURI and builds a verifier that
// enforces the given issuer.
func NewJWKSVerifier(ctx context.Context, issuer string, jwksURI string) (*JWKSVerifier, error) {
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return &JWKSVerifier{issuer: issuer, keyfunc: kf.Keyfunc}, nil
}

func (v *JWKSVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.issuer),
	)
	parsed, err := parser.Parse(token, v.keyfunc)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid claims type")
	}
	return identityFromClaims(claims)
}

// Insecure is a Verifier that accepts any token and asserts the fixed agent
// name it was constructed with. Intended for local development only.
type Insecure struct {
	AgentName string
}

var _ Verifier = (*Insecure)(nil)

func (v *Insecure) Verify(ctx context.Context, token string) (Identity, error) {
	return Identity{AgentName: v.AgentName, Subject: v.AgentName}, nil
}
