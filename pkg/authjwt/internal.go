package authjwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// InternalClaims marks a token minted by one service to call another.
// It carries no user identity — only proof that the caller holds the
// shared internal secret.
type InternalClaims struct {
	jwt.RegisteredClaims
	Internal bool `json:"internal"`
}

// MintInternal signs a short-lived (typically 60s) service-to-service token.
func MintInternal(secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := InternalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Internal: true,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

// ParseInternal verifies signature, expiry, and the internal flag.
func ParseInternal(secret []byte, tokenStr string) (*InternalClaims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &InternalClaims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !t.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := t.Claims.(*InternalClaims)
	if !ok || !claims.Internal {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
