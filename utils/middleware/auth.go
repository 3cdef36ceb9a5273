package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/docuquery/docuquery/utils/response"
)

// TokenValidator checks a bearer token. The default implementation validates
// HS256 JWTs against a shared secret; deployments can swap in their own.
type TokenValidator func(token string) error

// JWTValidator returns a TokenValidator for HS256 tokens signed with secret.
func JWTValidator(secret string) TokenValidator {
	return func(token string) error {
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil {
			return err
		}
		if !parsed.Valid {
			return fmt.Errorf("invalid token")
		}
		return nil
	}
}

// RequireBearer gates a route behind a bearer token. When validate is nil
// the gate is disabled (useful for local development without a secret).
func RequireBearer(validate TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if validate == nil {
			return c.Next()
		}

		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return response.Unauthorized(c, "Bearer token required")
		}
		if err := validate(token); err != nil {
			return response.Unauthorized(c, "Invalid bearer token")
		}
		return c.Next()
	}
}
