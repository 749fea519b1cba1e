package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/papertrade-project/backend/internal/config"
)

func setupAuth(t *testing.T) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.RefreshTokenTTL = 24 * time.Hour
	if err := InitAuthMiddleware(cfg); err != nil {
		t.Fatalf("failed to init middleware: %v", err)
	}
}

func protectedApp() *fiber.App {
	app := fiber.New()
	app.Get("/secure", Protected(), func(c *fiber.Ctx) error {
		userID, err := GetUserID(c)
		if err != nil {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.SendString(userID.String())
	})
	return app
}

func TestProtectedWithValidToken(t *testing.T) {
	setupAuth(t)

	userID := uuid.New()
	pair, err := GenerateTokenPair(userID)
	if err != nil {
		t.Fatalf("failed to generate token pair: %v", err)
	}

	app := protectedApp()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestProtectedRejectsRefreshToken(t *testing.T) {
	setupAuth(t)

	pair, err := GenerateTokenPair(uuid.New())
	if err != nil {
		t.Fatalf("failed to generate token pair: %v", err)
	}

	app := protectedApp()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Refresh)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestProtectedRejectsMissingOrMalformedHeader(t *testing.T) {
	setupAuth(t)
	app := protectedApp()

	for _, header := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/secure", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, resp.StatusCode)
		}
	}
}

func TestParseRefreshToken(t *testing.T) {
	setupAuth(t)

	userID := uuid.New()
	pair, err := GenerateTokenPair(userID)
	if err != nil {
		t.Fatalf("failed to generate token pair: %v", err)
	}

	parsed, err := ParseRefreshToken(pair.Refresh)
	if err != nil {
		t.Fatalf("failed to parse refresh token: %v", err)
	}
	if parsed != userID {
		t.Fatalf("expected %s, got %s", userID, parsed)
	}

	// An access token must not pass as a refresh token
	if _, err := ParseRefreshToken(pair.Access); err == nil {
		t.Fatal("access token accepted as refresh token")
	}
}
