/**
 * @description
 * Authentication API handlers: registration, login, token refresh and
 * email verification.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 * - backend/internal/api/middleware
 */

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/papertrade-project/backend/internal/api/middleware"
	"github.com/papertrade-project/backend/internal/logger"
	"github.com/papertrade-project/backend/internal/services"
)

type AuthHandler struct {
	Accounts *services.AccountService
}

func NewAuthHandler(accounts *services.AccountService) *AuthHandler {
	return &AuthHandler{Accounts: accounts}
}

// RegisterRequest defines the signup payload
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

// LoginRequest defines the login payload
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// Register creates a new user with a funded paper-trading account
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Password != req.Password2 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Password fields didn't match"})
	}

	user, err := h.Accounts.Register(c.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUsernameTaken), errors.Is(err, services.ErrEmailTaken):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		default:
			logger.Error("Register: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(user)
}

// Login authenticates a user and issues a token pair
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	user, err := h.Accounts.Authenticate(c.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid username or password"})
		}
		logger.Error("Login: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Login failed"})
	}

	pair, err := middleware.GenerateTokenPair(user.ID)
	if err != nil {
		logger.Error("Login: failed to issue tokens: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to issue tokens"})
	}

	return c.Status(fiber.StatusOK).JSON(pair)
}

// Refresh exchanges a refresh token for a fresh token pair
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	userID, err := middleware.ParseRefreshToken(req.Refresh)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid refresh token"})
	}

	pair, err := middleware.GenerateTokenPair(userID)
	if err != nil {
		logger.Error("Refresh: failed to issue tokens: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to issue tokens"})
	}

	return c.Status(fiber.StatusOK).JSON(pair)
}

// VerifyEmail validates the emailed token and marks the account verified
// GET /api/v1/auth/verify/:token
func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	token := c.Params("token")

	if err := h.Accounts.VerifyEmail(c.Context(), token); err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid or expired verification link"})
		}
		logger.Error("VerifyEmail: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Verification failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Email verified"})
}
