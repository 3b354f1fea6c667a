// Package jwttest signs access tokens the way the sign-in provider does, for
// tests that exercise JWTAuth.
package jwttest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token returns an HS256 token for userID that expires after ttl. A negative
// ttl yields an already expired token.
func Token(t testing.TB, secret string, userID uuid.UUID, ttl time.Duration) string {
	t.Helper()

	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(ttl).Unix(),
		"iat":     time.Now().Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
