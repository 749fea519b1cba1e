/**
 * @description
 * Worker Service Entry Point.
 * Responsible for background tasks:
 * 1. Refreshing quotes for all held stocks and publishing them for the SSE stream.
 * 2. Recording the daily portfolio snapshot for every account shortly after
 *    each UTC day closes.
 *
 * @dependencies
 * - backend/internal/config
 * - backend/internal/db
 * - backend/internal/marketdata
 * - backend/internal/services
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/papertrade-project/backend/internal/config"
	"github.com/papertrade-project/backend/internal/db"
	"github.com/papertrade-project/backend/internal/logger"
	"github.com/papertrade-project/backend/internal/marketdata"
	"github.com/papertrade-project/backend/internal/models"
	"github.com/papertrade-project/backend/internal/services"
)

const (
	quoteRefreshInterval = 2 * time.Minute

	// Daily snapshots run a few minutes past midnight UTC for the day that
	// just ended, once closing prices are final.
	snapshotDelayAfterMidnight = 15 * time.Minute
)

func main() {
	logger.Info("🔥 Starting Papertrade Worker...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	// 2. Connect DBs
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Postgres connection failed: %v", err)
	}
	if err := db.Migrate(pgDB); err != nil {
		logger.Fatal("Schema migration failed: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Redis connection failed: %v", err)
	}

	// 3. Initialize Services
	prices := marketdata.NewClient(cfg)
	stockService := services.NewStockService(pgDB, redisClient, prices)
	portfolioService := services.NewPortfolioService(pgDB, prices)

	// 4. Context with Cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Quote Refresh Loop
	go func() {
		ticker := time.NewTicker(quoteRefreshInterval)
		defer ticker.Stop()

		if err := stockService.RefreshHeldQuotes(ctx); err != nil {
			logger.Error("Quote refresh failed: %v", err)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := stockService.RefreshHeldQuotes(ctx); err != nil {
					logger.Error("Quote refresh failed: %v", err)
				}
			}
		}
	}()

	// 6. Daily Snapshot Loop
	go func() {
		for {
			wait := untilNextSnapshot(time.Now())
			logger.Info("Next daily snapshot in %s", wait.Round(time.Second))

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				// Value the day that just ended
				yesterday := models.DateOnly(time.Now().UTC().AddDate(0, 0, -1))
				if err := portfolioService.RecordDailySnapshot(ctx, yesterday); err != nil {
					logger.Error("Daily snapshot run failed: %v", err)
				}
			}
		}
	}()

	// 7. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	time.Sleep(1 * time.Second) // Give in-flight work time to finish
	logger.Info("Worker exited.")
}

// untilNextSnapshot returns the wait until the next post-midnight-UTC run
func untilNextSnapshot(now time.Time) time.Duration {
	now = now.UTC()
	next := models.DateOnly(now).Add(24*time.Hour + snapshotDelayAfterMidnight)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
