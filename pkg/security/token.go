package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of an access token.
const DefaultTokenTTL = time.Hour

// Claims binds the subject (account email) to its role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates self-contained HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenTTL overrides DefaultTokenTTL.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(t *TokenIssuer) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithIssuer sets the iss claim written and required on validation.
func WithIssuer(issuer string) TokenOption {
	return func(t *TokenIssuer) {
		t.issuer = issuer
	}
}

// WithClock replaces time.Now for issuing and validating.
func WithClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTokenIssuer creates an issuer signing with secret.
func NewTokenIssuer(secret string, opts ...TokenOption) *TokenIssuer {
	t := &TokenIssuer{
		secret: []byte(secret),
		issuer: "sentinel-identity",
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TTL returns the lifetime given to issued tokens.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue creates a token for email carrying role, expiring TTL from now.
func (t *TokenIssuer) Issue(email, role string) (string, error) {
	if email == "" {
		return "", errors.New("token subject is required")
	}
	now := t.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse verifies signature, issuer and expiry and returns the claims.
// Segments must be canonical base64url, so no character of a token can
// change without invalidating it.
func (t *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, errors.New("empty token")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// Validate reports whether tokenString is authentic and unexpired.
func (t *TokenIssuer) Validate(tokenString string) bool {
	_, err := t.Parse(tokenString)
	return err == nil
}

// ExtractEmail returns the subject of a valid token, or "".
func (t *TokenIssuer) ExtractEmail(tokenString string) string {
	claims, err := t.Parse(tokenString)
	if err != nil {
		return ""
	}
	return claims.Subject
}

// ExtractRole returns the role claim of a valid token, or "".
func (t *TokenIssuer) ExtractRole(tokenString string) string {
	claims, err := t.Parse(tokenString)
	if err != nil {
		return ""
	}
	return claims.Role
}

// HasRole reports whether the token's role is role.
func (t *TokenIssuer) HasRole(tokenString, role string) bool {
	return t.HasAnyRole(tokenString, role)
}

// HasAnyRole reports whether the token's role is one of roles.
func (t *TokenIssuer) HasAnyRole(tokenString string, roles ...string) bool {
	got := t.ExtractRole(tokenString)
	if got == "" {
		return false
	}
	for _, r := range roles {
		if r == got {
			return true
		}
	}
	return false
}
