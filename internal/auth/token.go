// Package auth issues and checks bearer tokens. It is stateless: everything
// it needs is in the token and the server secret.
package auth

import (
	"errors"
	"time"

	apperr "eventcart/internal/errors"
	"eventcart/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the caller resolved from a token.
type Identity struct {
	Subject string
	Role    models.Role
	UserID  string
}

// Claims - полезная нагрузка токена
type Claims struct {
	Role   models.Role `json:"role"`
	UserID string      `json:"uid"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	cp := *m
	cp.now = now
	return &cp
}

// Issue signs a fresh token for id.
func (m *TokenManager) Issue(id Identity) (string, time.Time, error) {
	issued := m.now()
	expires := issued.Add(m.ttl)

	claims := Claims{
		Role:   id.Role,
		UserID: id.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.Internal, "failed to sign token", err)
	}
	return signed, expires, nil
}

func (m *TokenManager) keyFunc(*jwt.Token) (any, error) {
	return m.secret, nil
}

// Parse verifies signature and expiry. Expired tokens fail with AUTH_EXPIRED,
// anything else with AUTH_UNAUTHORIZED.
func (m *TokenManager) Parse(token string) (Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, apperr.New(apperr.AuthExpired, "token expired")
		}
		return Identity{}, apperr.New(apperr.AuthUnauthorized, "invalid token")
	}
	return claims.identity(), nil
}

// Refresh reissues a token with the same claims and a new expiry. Only the
// signature is checked: an expired token is accepted.
func (m *TokenManager) Refresh(token string) (string, time.Time, Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", time.Time{}, Identity{}, apperr.New(apperr.AuthUnauthorized, "invalid token")
	}

	id := claims.identity()
	if id.Subject == "" || id.Role == "" {
		return "", time.Time{}, Identity{}, apperr.New(apperr.AuthUnauthorized, "invalid token")
	}

	signed, expires, err := m.Issue(id)
	if err != nil {
		return "", time.Time{}, Identity{}, err
	}
	return signed, expires, id, nil
}

// IsTokenValid reports whether token is unexpired, correctly signed and was
// issued for subject.
func (m *TokenManager) IsTokenValid(token, subject string) bool {
	id, err := m.Parse(token)
	return err == nil && id.Subject == subject
}

func (c *Claims) identity() Identity {
	return Identity{Subject: c.Subject, Role: c.Role, UserID: c.UserID}
}
