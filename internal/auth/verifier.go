// Package auth verifies the bearer tokens presented on the realtime endpoint.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what a verified token resolves to.
type Identity struct {
	UserID string
}

// Verifier checks a token and returns the identity it carries.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (Identity, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, token string) (Identity, error) { return f(ctx, token) }

// JWTVerifier accepts HS256 tokens signed with a shared secret. The user id
// is taken from the sub claim.
type JWTVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// JWTOption customises a JWTVerifier.
type JWTOption func(*JWTVerifier)

// WithIssuer requires the iss claim to match.
func WithIssuer(iss string) JWTOption { return func(v *JWTVerifier) { v.issuer = iss } }

// WithLeeway tolerates clock skew on exp and nbf.
func WithLeeway(d time.Duration) JWTOption { return func(v *JWTVerifier) { v.leeway = d } }

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) JWTOption { return func(v *JWTVerifier) { v.now = now } }

// NewJWTVerifier returns a verifier for tokens signed with secret.
func NewJWTVerifier(secret string, opts ...JWTOption) *JWTVerifier {
	v := &JWTVerifier{secret: []byte(secret), now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v
}

var errEmptyToken = errors.New("missing token")

// Verify parses and validates token.
func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, errEmptyToken
	}
	if len(v.secret) == 0 {
		return Identity{}, errors.New("jwt secret not configured")
	}
	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		popts = append(popts, jwt.WithIssuer(v.issuer))
	}
	if v.leeway > 0 {
		popts = append(popts, jwt.WithLeeway(v.leeway))
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, popts...)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, errors.New("invalid token: missing sub claim")
	}
	return Identity{UserID: claims.Subject}, nil
}

// Sign issues an HS256 token for userID that expires after ttl. It is used
// by the CLI to mint development tokens and by tests.
func Sign(secret, userID string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// TokenFromRequest extracts a token from an Authorization: Bearer header or,
// failing that, the token query parameter.
func TokenFromRequest(header, query string) string {
	if h := strings.TrimSpace(header); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	return strings.TrimSpace(query)
}
