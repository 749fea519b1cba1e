/**
 * @description
 * Authentication middleware using locally issued JWTs.
 * The backend owns registration and login, so tokens are signed and verified
 * with a shared HS256 secret — access tokens for requests, refresh tokens to
 * mint new pairs.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: HTTP Context
 * - github.com/golang-jwt/jwt/v5: JWT signing and parsing
 *
 * @notes
 * - Requires JWT_SECRET to be set in configuration.
 */

package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/papertrade-project/backend/internal/config"
	"github.com/papertrade-project/backend/internal/logger"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AuthMiddlewareConfig holds the signing key and token lifetimes
type AuthMiddlewareConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

var mwConfig *AuthMiddlewareConfig

// InitAuthMiddleware stores the signing configuration. Should be called at startup.
func InitAuthMiddleware(cfg *config.Config) error {
	if cfg.Auth.JWTSecret == "" {
		logger.Info("⚠️ Warning: JWT_SECRET is empty. Tokens will be signed with an empty key.")
	}

	mwConfig = &AuthMiddlewareConfig{
		Secret:     []byte(cfg.Auth.JWTSecret),
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	}
	logger.Info("✅ Auth Middleware Initialized")
	return nil
}

// TokenPair is an access token plus its refresh token
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// GenerateTokenPair issues a fresh access/refresh pair for a user
func GenerateTokenPair(userID uuid.UUID) (*TokenPair, error) {
	if mwConfig == nil {
		return nil, errors.New("auth middleware not initialized")
	}

	access, err := signToken(userID, tokenTypeAccess, mwConfig.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := signToken(userID, tokenTypeRefresh, mwConfig.RefreshTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// ParseRefreshToken validates a refresh token and returns its subject
func ParseRefreshToken(tokenString string) (uuid.UUID, error) {
	userID, tokenType, err := parseToken(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	if tokenType != tokenTypeRefresh {
		return uuid.Nil, errors.New("not a refresh token")
	}
	return userID, nil
}

// Protected protects routes requiring authentication
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if mwConfig == nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Auth configuration not initialized",
			})
		}

		// 1. Get Token from Header
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing authorization header"})
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token format"})
		}

		// 2. Parse and Validate Token
		userID, tokenType, err := parseToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token: " + err.Error()})
		}
		if tokenType != tokenTypeAccess {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token type"})
		}

		// 3. Set User ID in Context
		c.Locals("user_id", userID.String())

		return c.Next()
	}
}

// GetUserID returns the authenticated user's ID from context
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	raw, ok := c.Locals("user_id").(string)
	if !ok {
		return uuid.Nil, errors.New("user id not found in context")
	}
	return uuid.Parse(raw)
}

func signToken(userID uuid.UUID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"type": tokenType,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(mwConfig.Secret)
}

func parseToken(tokenString string) (uuid.UUID, string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return mwConfig.Secret, nil
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	if !token.Valid {
		return uuid.Nil, "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, "", errors.New("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", errors.New("token missing subject")
	}

	tokenType, _ := claims["type"].(string)
	return userID, tokenType, nil
}
