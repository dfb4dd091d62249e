// Package middleware provides authentication, logging, rate limiting and
// tracing middleware for the HTTP surface.
package middleware

import (
	"errors"
	"strings"

	"gallery/internal/config"
	"gallery/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

var (
	errMissingHeader = errors.New("Authorization header required")
	errHeaderFormat  = errors.New("Invalid authorization header format")
	errInvalidToken  = errors.New("Invalid or expired token")
	errMissingSub    = errors.New("Invalid token structure - missing subject")
)

// AuthRequired is a middleware that enforces authentication for protected routes.
// The token subject is the caller's profile ID and is stored in c.Locals("userID").
func AuthRequired(c *fiber.Ctx) error {
	userID, err := userFromRequest(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	setUser(c, userID)
	return c.Next()
}

// setUser stores the caller in locals and syncs it to the user context for
// logging and downstream services.
func setUser(c *fiber.Ctx, userID string) {
	c.Locals("userID", userID)
	c.SetUserContext(observability.WithScope(c.UserContext(), observability.RequestScope{UserID: userID}))
}

// OptionalAuth resolves the caller when a valid bearer token is present and
// lets anonymous requests through otherwise.
func OptionalAuth(c *fiber.Ctx) error {
	if c.Get("Authorization") == "" {
		return c.Next()
	}
	if userID, err := userFromRequest(c); err == nil {
		setUser(c, userID)
	}
	return c.Next()
}

// UserID returns the authenticated caller, or "" when the request is anonymous.
func UserID(c *fiber.Ctx) string {
	if uid, ok := c.Locals("userID").(string); ok {
		return uid
	}
	return ""
}

func userFromRequest(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", errMissingHeader
	}

	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errHeaderFormat
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}

	// Subject claim per RFC 7519
	sub, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", errMissingSub
	}
	return sub, nil
}
