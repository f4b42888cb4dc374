package middleware

import (
	"context"
	"errors"
	"strings"

	"shutter/internal/config"
	"shutter/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// LocalSubject is the Fiber locals key holding the verified identity-provider subject.
const LocalSubject = "subject"

var (
	ErrMissingToken    = errors.New("authorization required")
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrInvalidIssuer   = errors.New("invalid token issuer")
	ErrInvalidAudience = errors.New("invalid token audience")
	ErrInvalidSubject  = errors.New("invalid subject claim")
)

// IdentityVerifier validates session tokens minted by the identity provider.
type IdentityVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewIdentityVerifier builds a verifier from the auth section of the config.
func NewIdentityVerifier(cfg *config.Config) *IdentityVerifier {
	return &IdentityVerifier{
		secret:   []byte(cfg.AuthJWTSecret),
		issuer:   cfg.AuthIssuer,
		audience: cfg.AuthAudience,
	}
}

// Verify checks signature, expiry, issuer and audience and returns the subject.
func (v *IdentityVerifier) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	if v.issuer != "" {
		if issuer, err := claims.GetIssuer(); err != nil || issuer != v.issuer {
			return "", ErrInvalidIssuer
		}
	}
	if v.audience != "" {
		audiences, err := claims.GetAudience()
		if err != nil || !containsString(audiences, v.audience) {
			return "", ErrInvalidAudience
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", ErrInvalidSubject
	}
	return sub, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// SessionRequired rejects requests without a valid session before any handler
// runs, and stores the subject in locals and the request context.
func SessionRequired(v *IdentityVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject, err := v.Verify(BearerToken(c))
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError(unauthorizedMessage(err)))
		}

		SetSubject(c, subject)
		return c.Next()
	}
}

// OptionalSubject returns the caller's subject when a valid session is present.
func OptionalSubject(c *fiber.Ctx, v *IdentityVerifier) (string, bool) {
	if v == nil {
		return "", false
	}
	subject, err := v.Verify(BearerToken(c))
	if err != nil {
		return "", false
	}
	return subject, true
}

// SetSubject records the subject for handlers and the context-aware logger.
func SetSubject(c *fiber.Ctx, subject string) {
	c.Locals(LocalSubject, subject)
	ctx := context.WithValue(c.UserContext(), SubjectKey, subject)
	c.SetUserContext(ctx)
}

// SubjectFrom returns the subject stored by SessionRequired, or "".
func SubjectFrom(c *fiber.Ctx) string {
	subject, _ := c.Locals(LocalSubject).(string)
	return subject
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "Authorization required"
	case errors.Is(err, ErrInvalidIssuer):
		return "Invalid token issuer"
	case errors.Is(err, ErrInvalidAudience):
		return "Invalid token audience"
	case errors.Is(err, ErrInvalidSubject):
		return "Invalid subject claim"
	default:
		return "Invalid or expired token"
	}
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
