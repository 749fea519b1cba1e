/**
 * @description
 * API Route definitions.
 * Sets up the router groups and assigns handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/api/handlers
 * - backend/internal/api/middleware
 * - backend/internal/services
 * - backend/internal/marketdata
 */

package api

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/papertrade-project/backend/internal/api/handlers"
	"github.com/papertrade-project/backend/internal/api/middleware"
	"github.com/papertrade-project/backend/internal/config"
	"github.com/papertrade-project/backend/internal/mailer"
	"github.com/papertrade-project/backend/internal/marketdata"
	"github.com/papertrade-project/backend/internal/services"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, db *gorm.DB, rdb *redis.Client, cfg *config.Config) {
	// 1. Initialize Middleware
	if err := middleware.InitAuthMiddleware(cfg); err != nil {
		log.Printf("Failed to init auth middleware: %v", err)
	}

	// 2. Initialize Services
	prices := marketdata.NewClient(cfg)
	accountService := services.NewAccountService(db, cfg, mailer.New(cfg))
	tradeService := services.NewTradeService(db, prices)
	stockService := services.NewStockService(db, rdb, prices)
	portfolioService := services.NewPortfolioService(db, prices)

	var hub *services.QuoteStreamHub
	if rdb != nil {
		hub = services.NewQuoteStreamHub(rdb, services.QuoteUpdateChannel)
	}

	// 3. Initialize Handlers
	authHandler := handlers.NewAuthHandler(accountService)
	stockHandler := handlers.NewStockHandler(stockService, hub)
	tradeHandler := handlers.NewTradeHandler(tradeService, accountService)
	dashboardHandler := handlers.NewDashboardHandler(portfolioService, accountService)

	// 4. Define Routes
	api := app.Group("/api")
	v1 := api.Group("/v1")

	// Public Routes
	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Auth Routes (Public)
	auth := v1.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)
	auth.Get("/verify/:token", authHandler.VerifyEmail)

	// Stock Catalog Routes (Public)
	stocks := v1.Group("/stocks")
	stocks.Get("/search/:ticker", stockHandler.Search)
	stocks.Get("/suggestions", stockHandler.Suggestions)
	stocks.Get("/stream", stockHandler.StreamQuotes)

	// Trade Routes (Protected)
	trades := v1.Group("/trades", middleware.Protected())
	trades.Post("/buy", tradeHandler.Buy)
	trades.Post("/sell", tradeHandler.Sell)

	// Dashboard (Protected)
	v1.Get("/dashboard", middleware.Protected(), dashboardHandler.GetDashboard)
}
