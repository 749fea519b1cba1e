package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/papertrade-project/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStockService(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	ctx := context.Background()

	t.Run("Search returns a quote and caches it", func(t *testing.T) {
		testDB.TruncateAll(t)
		redisClient := setupTestRedis(t)

		createTestStock(t, testDB, "AAPL", "Apple Inc.")

		prices := &fakePriceSource{current: map[string]decimal.Decimal{
			"AAPL": mustDecimal(t, "187.23"),
		}}
		service := NewStockService(testDB.DB, redisClient, prices)

		quote, err := service.Search(ctx, "aapl")
		require.NoError(t, err)
		assert.Equal(t, "AAPL", quote.Ticker)
		assert.Equal(t, "Apple Inc.", quote.CompanyName)
		assert.True(t, quote.CurrentPrice.Equal(mustDecimal(t, "187.23")))

		// The stock row keeps an opportunistic price cache
		var stock models.Stock
		require.NoError(t, testDB.Where("ticker = ?", "AAPL").First(&stock).Error)
		assert.True(t, stock.LastKnownPrice.Equal(mustDecimal(t, "187.23")))
		require.NotNil(t, stock.PriceUpdatedAt)

		// Second lookup is served from Redis even if the upstream dies
		prices.current = nil
		cached, err := service.Search(ctx, "AAPL")
		require.NoError(t, err)
		assert.True(t, cached.CurrentPrice.Equal(mustDecimal(t, "187.23")))
	})

	t.Run("Search maps unknown tickers", func(t *testing.T) {
		testDB.TruncateAll(t)

		service := NewStockService(testDB.DB, nil, &fakePriceSource{})

		_, err := service.Search(ctx, "NOPE")
		assert.ErrorIs(t, err, ErrUnknownInstrument)
	})

	t.Run("Search maps missing quotes", func(t *testing.T) {
		testDB.TruncateAll(t)

		createTestStock(t, testDB, "AAPL", "Apple Inc.")
		service := NewStockService(testDB.DB, nil, &fakePriceSource{})

		_, err := service.Search(ctx, "AAPL")
		assert.ErrorIs(t, err, ErrPriceUnavailable)
	})

	t.Run("Suggest matches ticker and company prefixes", func(t *testing.T) {
		testDB.TruncateAll(t)

		createTestStock(t, testDB, "AAPL", "Apple Inc.")
		createTestStock(t, testDB, "AMZN", "Amazon.com, Inc.")
		createTestStock(t, testDB, "MSFT", "Microsoft Corporation")

		service := NewStockService(testDB.DB, nil, &fakePriceSource{})

		stocks, err := service.Suggest(ctx, "a", 10)
		require.NoError(t, err)
		require.Len(t, stocks, 2)
		assert.Equal(t, "AAPL", stocks[0].Ticker)
		assert.Equal(t, "AMZN", stocks[1].Ticker)

		stocks, err = service.Suggest(ctx, "micro", 10)
		require.NoError(t, err)
		require.Len(t, stocks, 1)
		assert.Equal(t, "MSFT", stocks[0].Ticker)

		stocks, err = service.Suggest(ctx, "a", 1)
		require.NoError(t, err)
		assert.Len(t, stocks, 1)

		stocks, err = service.Suggest(ctx, "zzz", 10)
		require.NoError(t, err)
		assert.Empty(t, stocks)
	})

	t.Run("ImportCSV upserts the catalog", func(t *testing.T) {
		testDB.TruncateAll(t)

		service := NewStockService(testDB.DB, nil, &fakePriceSource{})

		path := filepath.Join(t.TempDir(), "stocks.csv")
		csv := "ticker,name\naapl,Apple Inc.\nMSFT,Microsoft Corporation\n,Missing Ticker\n"
		require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

		written, err := service.ImportCSV(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, 2, written)

		var stock models.Stock
		require.NoError(t, testDB.Where("ticker = ?", "AAPL").First(&stock).Error)
		assert.Equal(t, "Apple Inc.", stock.CompanyName)

		// Re-import with a renamed company updates in place
		csv = "ticker,name\nAAPL,Apple Incorporated\n"
		require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))
		_, err = service.ImportCSV(ctx, path)
		require.NoError(t, err)

		require.NoError(t, testDB.Where("ticker = ?", "AAPL").First(&stock).Error)
		assert.Equal(t, "Apple Incorporated", stock.CompanyName)

		var count int64
		require.NoError(t, testDB.Model(&models.Stock{}).Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})

	t.Run("ImportCSV rejects a malformed header", func(t *testing.T) {
		testDB.TruncateAll(t)

		service := NewStockService(testDB.DB, nil, &fakePriceSource{})

		path := filepath.Join(t.TempDir(), "bad.csv")
		require.NoError(t, os.WriteFile(path, []byte("symbol,label\nAAPL,Apple\n"), 0o644))

		_, err := service.ImportCSV(ctx, path)
		assert.Error(t, err)
	})

	t.Run("RefreshHeldQuotes publishes updates for held stocks", func(t *testing.T) {
		testDB.TruncateAll(t)
		redisClient := setupTestRedis(t)

		account := createTestAccount(t, testDB, "streamer")
		held := createTestStock(t, testDB, "AAPL", "Apple Inc.")
		createTestStock(t, testDB, "MSFT", "Microsoft Corporation") // not held

		require.NoError(t, testDB.Create(&models.Holding{
			AccountID:    account.ID,
			StockID:      held.ID,
			SharesOwned:  mustDecimal(t, "1"),
			AveragePrice: mustDecimal(t, "1"),
		}).Error)

		prices := &fakePriceSource{current: map[string]decimal.Decimal{
			"AAPL": mustDecimal(t, "190.00"),
			"MSFT": mustDecimal(t, "400.00"),
		}}
		service := NewStockService(testDB.DB, redisClient, prices)

		pubsub := redisClient.Subscribe(ctx, QuoteUpdateChannel)
		defer pubsub.Close()
		_, err := pubsub.Receive(ctx)
		require.NoError(t, err)

		require.NoError(t, service.RefreshHeldQuotes(ctx))

		select {
		case msg := <-pubsub.Channel():
			assert.Contains(t, msg.Payload, `"AAPL"`)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for quote update")
		}

		// Only the held stock was re-priced
		var stock models.Stock
		require.NoError(t, testDB.Where("ticker = ?", "AAPL").First(&stock).Error)
		assert.True(t, stock.LastKnownPrice.Equal(mustDecimal(t, "190.00")))
		require.NoError(t, testDB.Where("ticker = ?", "MSFT").First(&stock).Error)
		assert.True(t, stock.LastKnownPrice.IsZero())
	})
}
