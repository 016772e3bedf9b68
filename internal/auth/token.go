// Package auth issues and verifies the bearer tokens guarding the API's
// mutating routes. With no secret configured the API runs open.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every verification failure: bad signature, expired,
// malformed.
var ErrInvalidToken = errors.New("invalid token")

const issuer = "payflux"

// TokenService signs and verifies HS256 tokens.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a service from a shared secret. An empty secret
// yields a disabled service.
func NewTokenService(secret string) *TokenService {
	s := &TokenService{now: time.Now}
	if secret != "" {
		s.secret = []byte(secret)
	}
	return s
}

// Enabled reports whether tokens are configured at all.
func (s *TokenService) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Issue mints a token for the given subject, valid for ttl.
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", errors.New("token service is not configured")
	}
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks a token and returns its subject.
func (s *TokenService) Verify(token string) (string, error) {
	if !s.Enabled() {
		return "", ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return s.secret, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
