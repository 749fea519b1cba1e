/**
 * @description
 * Stock catalog API handlers: ticker search, suggestions and the live
 * quote SSE stream.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/papertrade-project/backend/internal/logger"
	"github.com/papertrade-project/backend/internal/services"
)

type StockHandler struct {
	Stocks *services.StockService
	Hub    *services.QuoteStreamHub
}

func NewStockHandler(stocks *services.StockService, hub *services.QuoteStreamHub) *StockHandler {
	return &StockHandler{
		Stocks: stocks,
		Hub:    hub,
	}
}

// Search returns a stock's catalog entry with a fresh quote
// GET /api/v1/stocks/search/:ticker
func (h *StockHandler) Search(c *fiber.Ctx) error {
	quote, err := h.Stocks.Search(c.Context(), c.Params("ticker"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownInstrument):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown ticker"})
		case errors.Is(err, services.ErrPriceUnavailable):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Price currently unavailable"})
		default:
			logger.Error("Search: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Search failed"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(quote)
}

// Suggestions returns ticker/company-name completions
// GET /api/v1/stocks/suggestions?q=AA&limit=10
func (h *StockHandler) Suggestions(c *fiber.Ctx) error {
	stocks, err := h.Stocks.Suggest(c.Context(), c.Query("q"), c.QueryInt("limit"))
	if err != nil {
		logger.Error("Suggestions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch suggestions"})
	}

	return c.Status(fiber.StatusOK).JSON(stocks)
}

// StreamQuotes streams live quote updates over SSE
// GET /api/v1/stocks/stream
func (h *StockHandler) StreamQuotes(c *fiber.Ctx) error {
	if h.Hub == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Quote stream unavailable"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	requestCtx := c.Context()
	updates, unsubscribe := h.Hub.Subscribe()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		requestDone := requestCtx.Done()

		for {
			select {
			case <-requestDone:
				return
			case payload, ok := <-updates:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", payload)
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}
