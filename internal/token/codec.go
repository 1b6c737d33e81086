// Package token encodes and decodes the signed bearer credentials carried in
// the auth cookies.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/quickfood/quickfood-backend/internal/shared"
)

// Kind distinguishes the two credential uses.
type Kind string

const (
	// KindAccess is the short-lived credential proving recent authentication.
	KindAccess Kind = "access"
	// KindRefresh is the long-lived credential used only to mint new access tokens.
	KindRefresh Kind = "refresh"
)

const issuer = "quickfood"

// Claims is the payload carried by both token kinds. Role is only populated
// on access tokens and is a snapshot taken at mint time.
type Claims struct {
	Kind Kind   `json:"kind"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the token subject.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Codec signs and verifies tokens with a process-wide HS256 secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec constructs a Codec around the shared signing secret.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret), now: time.Now}
}

// WithClock overrides the time source. Used by tests to pin expiry boundaries.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Encode mints a signed token for the subject. Role is ignored for refresh
// tokens so a leaked refresh credential carries nothing but the subject id.
func (c *Codec) Encode(userID uuid.UUID, role string, kind Kind, lifetime time.Duration) (string, error) {
	now := c.now().UTC()
	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}
	if kind == KindAccess {
		claims.Role = role
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Decode verifies signature, expiry and kind. Expiry is strict: a token whose
// expiry equals the current instant is already expired, no leeway is applied.
func (c *Codec) Decode(tokenString string, expected Kind) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, shared.ErrTokenExpired
		}
		return nil, shared.ErrTokenMalformed
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, shared.ErrTokenMalformed
	}
	if claims.Kind != expected {
		return nil, shared.ErrWrongTokenKind
	}
	return claims, nil
}
