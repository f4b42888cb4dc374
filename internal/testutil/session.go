package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity-provider settings shared by handler tests.
const (
	SessionSecret   = "test-secret-key-12345678901234567890123456789012"
	SessionIssuer   = "shutter-idp"
	SessionAudience = "shutter-client"
)

// SessionToken mints a session token for subject the way the identity
// provider would, valid for one hour.
func SessionToken(t testing.TB, subject string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": SessionIssuer,
		"aud": SessionAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(SessionSecret))
	if err != nil {
		t.Fatalf("sign session token: %v", err)
	}
	return token
}
