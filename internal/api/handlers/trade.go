/**
 * @description
 * HTTP handlers for paper-trade execution.
 * Trade failures return a clear rejection reason before any balance is
 * touched; atomicity lives in the trade service.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 * - backend/internal/api/middleware
 * - github.com/shopspring/decimal
 */

package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/papertrade-project/backend/internal/api/middleware"
	"github.com/papertrade-project/backend/internal/logger"
	"github.com/papertrade-project/backend/internal/services"
	"github.com/shopspring/decimal"
)

type TradeHandler struct {
	Trades   *services.TradeService
	Accounts *services.AccountService
}

func NewTradeHandler(trades *services.TradeService, accounts *services.AccountService) *TradeHandler {
	return &TradeHandler{
		Trades:   trades,
		Accounts: accounts,
	}
}

// OrderRequest is the payload for both buy and sell.
// Quantity accepts a JSON number or string; decimals survive intact either way.
type OrderRequest struct {
	Ticker   string          `json:"ticker"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderResponse returns the account's cash after execution
type OrderResponse struct {
	CashRemaining decimal.Decimal `json:"cash_remaining"`
}

type tradeFunc func(ctx context.Context, accountID uuid.UUID, ticker string, quantity decimal.Decimal) (decimal.Decimal, error)

// Buy executes a market buy for the authenticated account
// POST /api/v1/trades/buy
func (h *TradeHandler) Buy(c *fiber.Ctx) error {
	return h.execute(c, h.Trades.ExecuteBuy)
}

// Sell executes a market sell for the authenticated account
// POST /api/v1/trades/sell
func (h *TradeHandler) Sell(c *fiber.Ctx) error {
	return h.execute(c, h.Trades.ExecuteSell)
}

func (h *TradeHandler) execute(c *fiber.Ctx, op tradeFunc) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req OrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	account, err := h.Accounts.AccountForUser(c.Context(), userID)
	if err != nil {
		logger.Error("Trade: failed to resolve account for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to resolve account"})
	}

	cash, err := op(c.Context(), account.ID, req.Ticker, req.Quantity)
	if err != nil {
		return tradeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(OrderResponse{CashRemaining: cash})
}

// tradeError maps the trade error taxonomy to HTTP statuses
func tradeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrUnknownInstrument):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown ticker"})
	case errors.Is(err, services.ErrPriceUnavailable):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Price currently unavailable"})
	case errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrInsufficientFunds),
		errors.Is(err, services.ErrInsufficientShares),
		errors.Is(err, services.ErrNoHolding):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		logger.Error("Trade failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Trade failed"})
	}
}
