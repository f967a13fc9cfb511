package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/tuition-api/model"
	"github.com/sahilchouksey/tuition-api/utils/auth"
	"github.com/sahilchouksey/tuition-api/utils/response"
)

const (
	localsPayer  = "payer"
	localsClaims = "claims"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	jwtManager *auth.JWTManager
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtManager *auth.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
	}
}

// Required is middleware that requires a valid JWT token. The payer
// identity is resolved here once and stored in Locals.
func (m *AuthMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Get token from Authorization header
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization token")
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return response.Unauthorized(c, "Invalid authorization format")
		}

		claims, err := m.jwtManager.ValidateToken(parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				return response.Unauthorized(c, "Token has expired")
			}
			return response.Unauthorized(c, "Invalid token")
		}

		if claims.TokenType != auth.TokenTypeAccess {
			return response.Unauthorized(c, "Invalid token type")
		}

		payer, err := claims.Payer()
		if err != nil {
			return response.Unauthorized(c, "Token has no valid role")
		}

		c.Locals(localsClaims, claims)
		c.Locals(localsPayer, payer)

		return c.Next()
	}
}

// RequireKind is middleware that requires one of the given payer kinds.
// It must run after Required.
func (m *AuthMiddleware) RequireKind(kinds ...model.PayerKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payer, ok := GetPayer(c)
		if !ok {
			return response.Forbidden(c, "Access denied")
		}

		for _, k := range kinds {
			if payer.Kind == k {
				return c.Next()
			}
		}

		return response.Forbidden(c, "Insufficient permissions")
	}
}

// GetPayer extracts the authenticated identity from context
func GetPayer(c *fiber.Ctx) (model.PayerIdentity, bool) {
	payer, ok := c.Locals(localsPayer).(model.PayerIdentity)
	if !ok || payer.IsZero() {
		return model.PayerIdentity{}, false
	}
	return payer, true
}

// GetClaims extracts full claims from context
func GetClaims(c *fiber.Ctx) (*auth.Claims, bool) {
	claims, ok := c.Locals(localsClaims).(*auth.Claims)
	return claims, ok
}
