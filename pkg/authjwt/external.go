// Package authjwt mints and parses the two JWT flavors this platform uses:
// the external token Identity issues to end users, and the short-lived
// internal token a service mints to call another service. The two use
// different secrets and are never interchangeable.
package authjwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
)

// ExternalClaims is the payload of a user-facing access token.
type ExternalClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// MintExternal signs a one-hour (by default) external JWT for userID/email.
func MintExternal(secret []byte, userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ExternalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

// MintRefresh signs a long-lived refresh token. jti is the caller-chosen
// identifier used to look up (and later revoke) the matching server-side
// record; the claim carries no other state.
func MintRefresh(secret []byte, userID, jti string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        jti,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

// ParseRefreshSubjectAndID verifies a refresh token's signature and expiry
// and returns its subject (user ID) and jti.
func ParseRefreshSubjectAndID(secret []byte, tokenStr string) (userID, jti string, err error) {
	t, parseErr := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if parseErr != nil || !t.Valid {
		return "", "", ErrInvalidToken
	}
	claims, ok := t.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" || claims.ID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.ID, nil
}

// ParseExternal verifies signature, expiry, and the presence of sub/email.
func ParseExternal(secret []byte, tokenStr string) (*ExternalClaims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &ExternalClaims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !t.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := t.Claims.(*ExternalClaims)
	if !ok || claims.Subject == "" || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
