// Package auth parses backend access tokens and carries the session through context.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/billix-app/billix/internal/errs"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// Session is an authenticated backend session.
type Session struct {
	AccessToken string    `json:"access_token"`
	UserID      uuid.UUID `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Parse verifies an HS256 access token with the project secret and returns its session.
func Parse(token string, secret []byte) (Session, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, fmt.Errorf("%w: session expired", errs.ErrNotAuthenticated)
		}
		return Session{}, fmt.Errorf("%w: %w", errs.ErrNotAuthenticated, err)
	}
	return fromClaims(token, claims)
}

// ParseUnverified reads the session from a token without checking its signature.
// Used when the secret is not configured; the backend still verifies every call.
func ParseUnverified(token string) (Session, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Session{}, fmt.Errorf("%w: %w", errs.ErrNotAuthenticated, err)
	}
	return fromClaims(token, claims)
}

func fromClaims(token string, claims jwt.RegisteredClaims) (Session, error) {
	uid, err := uuid.FromString(claims.Subject)
	if err != nil {
		return Session{}, fmt.Errorf("%w: bad subject", errs.ErrNotAuthenticated)
	}
	s := Session{AccessToken: token, UserID: uid}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
