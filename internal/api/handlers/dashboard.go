/**
 * @description
 * Dashboard API handler: portfolio history plus current holdings for the
 * authenticated user.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 * - backend/internal/api/middleware
 */

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/papertrade-project/backend/internal/api/middleware"
	"github.com/papertrade-project/backend/internal/logger"
	"github.com/papertrade-project/backend/internal/services"
)

type DashboardHandler struct {
	Portfolios *services.PortfolioService
	Accounts   *services.AccountService
}

func NewDashboardHandler(portfolios *services.PortfolioService, accounts *services.AccountService) *DashboardHandler {
	return &DashboardHandler{
		Portfolios: portfolios,
		Accounts:   accounts,
	}
}

// GetDashboard returns the valuation series and current holdings
// GET /api/v1/dashboard
func (h *DashboardHandler) GetDashboard(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	account, err := h.Accounts.AccountForUser(c.Context(), userID)
	if err != nil {
		logger.Error("Dashboard: failed to resolve account for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to resolve account"})
	}

	dashboard, err := h.Portfolios.GetDashboard(c.Context(), account.ID)
	if err != nil {
		logger.Error("Dashboard: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load dashboard"})
	}

	return c.Status(fiber.StatusOK).JSON(dashboard)
}
