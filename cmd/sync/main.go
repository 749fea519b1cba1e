/**
 * @description
 * Operational CLI for catalog and portfolio-history maintenance.
 * Mirrors the jobs an operator runs out-of-band from the API:
 *
 *   sync -import stocks.csv     Import/refresh the stock catalog
 *   sync -snapshot 2026-08-31   Record snapshots for all accounts on a date
 *   sync -backfill              Fill every account's missing snapshots
 *   sync -reset                 Wipe and rebuild all portfolio history
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
	"flag"
	"time"

	"github.com/papertrade-project/backend/internal/config"
	"github.com/papertrade-project/backend/internal/db"
	"github.com/papertrade-project/backend/internal/logger"
	"github.com/papertrade-project/backend/internal/marketdata"
	"github.com/papertrade-project/backend/internal/models"
	"github.com/papertrade-project/backend/internal/services"
)

func main() {
	importCSV := flag.String("import", "", "path to a stocks CSV (ticker,name) to import")
	snapshot := flag.String("snapshot", "", "record snapshots for all accounts on this date (YYYY-MM-DD or 'yesterday')")
	backfill := flag.Bool("backfill", false, "backfill missing snapshots for all accounts")
	reset := flag.Bool("reset", false, "delete and rebuild all portfolio history")
	flag.Parse()

	if *importCSV == "" && *snapshot == "" && !*backfill && !*reset {
		logger.Fatal("Nothing to do: pass -import, -snapshot, -backfill or -reset")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Postgres connection failed: %v", err)
	}
	if err := db.Migrate(pgDB); err != nil {
		logger.Fatal("Schema migration failed: %v", err)
	}

	prices := marketdata.NewClient(cfg)
	stockService := services.NewStockService(pgDB, nil, prices)
	portfolioService := services.NewPortfolioService(pgDB, prices)

	ctx := context.Background()

	if *importCSV != "" {
		created, err := stockService.ImportCSV(ctx, *importCSV)
		if err != nil {
			logger.Fatal("Import failed: %v", err)
		}
		logger.Info("Import completed. %d stocks written.", created)
	}

	if *snapshot != "" {
		date, err := parseSnapshotDate(*snapshot)
		if err != nil {
			logger.Fatal("Invalid -snapshot date: %v", err)
		}
		if err := portfolioService.RecordDailySnapshot(ctx, date); err != nil {
			logger.Fatal("Snapshot run failed: %v", err)
		}
		logger.Info("Snapshot run for %s completed.", date.Format("2006-01-02"))
	}

	if *reset {
		if err := portfolioService.ResetHistory(ctx); err != nil {
			logger.Fatal("Reset failed: %v", err)
		}
		logger.Info("Portfolio history reset and rebuilt.")
		return
	}

	if *backfill {
		if err := portfolioService.BackfillAll(ctx); err != nil {
			logger.Fatal("Backfill failed: %v", err)
		}
		logger.Info("Backfill completed.")
	}
}

func parseSnapshotDate(raw string) (time.Time, error) {
	if raw == "yesterday" {
		return models.DateOnly(time.Now().UTC().AddDate(0, 0, -1)), nil
	}
	return time.Parse("2006-01-02", raw)
}
