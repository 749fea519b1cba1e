/**
 * @description
 * Service layer for the stock catalog.
 * Orchestrates ticker lookup, live quotes (Redis-cached), suggestions,
 * CSV imports and the periodic quote refresh used by the worker.
 *
 * @dependencies
 * - backend/internal/marketdata
 * - backend/internal/models
 * - gorm.io/gorm
 * - github.com/redis/go-redis/v9
 */

package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/papertrade-project/backend/internal/logger"
	"github.com/papertrade-project/backend/internal/marketdata"
	"github.com/papertrade-project/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	QuoteCacheTTL = 60 * time.Second

	// QuoteUpdateChannel carries live quote JSON for the SSE stream
	QuoteUpdateChannel = "stocks:quote_updates"

	defaultSuggestionLimit = 10
)

type StockService struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Prices marketdata.PriceSource
}

func NewStockService(db *gorm.DB, rdb *redis.Client, prices marketdata.PriceSource) *StockService {
	return &StockService{
		DB:     db,
		Redis:  rdb,
		Prices: prices,
	}
}

// Quote is a stock with its current price attached
type Quote struct {
	Ticker       string          `json:"ticker"`
	CompanyName  string          `json:"company_name"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	At           time.Time       `json:"at"`
}

func quoteCacheKey(ticker string) string {
	return fmt.Sprintf("stocks:quote:%s", ticker)
}

// Search returns the catalog entry for a ticker with a fresh-enough price.
// Quotes are cached in Redis for QuoteCacheTTL; a cache miss hits the price
// source and refreshes the stock row's last_known_price.
func (s *StockService) Search(ctx context.Context, ticker string) (*Quote, error) {
	stock, err := s.FindByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}

	if s.Redis != nil {
		if cached, err := s.Redis.Get(ctx, quoteCacheKey(stock.Ticker)).Result(); err == nil {
			var quote Quote
			if err := json.Unmarshal([]byte(cached), &quote); err == nil {
				return &quote, nil
			}
		}
	}

	price, err := s.Prices.GetCurrentPrice(ctx, stock.Ticker)
	if err != nil {
		if errors.Is(err, marketdata.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, stock.Ticker)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, stock.Ticker, err)
	}

	quote := &Quote{
		Ticker:       stock.Ticker,
		CompanyName:  stock.CompanyName,
		CurrentPrice: price,
		At:           time.Now().UTC(),
	}

	s.cacheQuote(ctx, quote)
	s.updateStockPrice(ctx, stock, price, quote.At)

	return quote, nil
}

// FindByTicker resolves a ticker to its catalog row
func (s *StockService) FindByTicker(ctx context.Context, ticker string) (*models.Stock, error) {
	var stock models.Stock
	err := s.DB.WithContext(ctx).Where("ticker = ?", normalizeTicker(ticker)).First(&stock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownInstrument
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up instrument: %w", err)
	}
	return &stock, nil
}

// Suggest returns up to limit catalog entries whose ticker or company name
// starts with the query
func (s *StockService) Suggest(ctx context.Context, query string, limit int) ([]models.Stock, error) {
	if limit <= 0 || limit > 50 {
		limit = defaultSuggestionLimit
	}

	query = strings.TrimSpace(query)
	var stocks []models.Stock
	q := s.DB.WithContext(ctx).Model(&models.Stock{}).Order("ticker ASC").Limit(limit)
	if query != "" {
		pattern := strings.ToUpper(query) + "%"
		q = q.Where("ticker LIKE ? OR UPPER(company_name) LIKE ?", pattern, pattern)
	}
	if err := q.Find(&stocks).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch suggestions: %w", err)
	}
	return stocks, nil
}

// ImportCSV upserts catalog rows from a CSV with `ticker` and `name` columns.
// Returns the number of rows written (created or refreshed).
func (s *StockService) ImportCSV(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read csv header: %w", err)
	}

	tickerCol, nameCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "ticker":
			tickerCol = i
		case "name", "company_name":
			nameCol = i
		}
	}
	if tickerCol < 0 || nameCol < 0 {
		return 0, fmt.Errorf("csv must have 'ticker' and 'name' columns")
	}

	created := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return created, fmt.Errorf("failed to read csv row: %w", err)
		}

		ticker := normalizeTicker(row[tickerCol])
		name := strings.TrimSpace(row[nameCol])
		if ticker == "" || name == "" {
			logger.Info("Skipping incomplete row: %v", row)
			continue
		}

		stock := models.Stock{Ticker: ticker, CompanyName: name}
		result := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ticker"}},
			DoUpdates: clause.AssignmentColumns([]string{"company_name", "updated_at"}),
		}).Create(&stock)
		if result.Error != nil {
			logger.Error("Failed to save stock %s: %v", ticker, result.Error)
			continue
		}
		if result.RowsAffected > 0 {
			created++
		}
	}

	return created, nil
}

// RefreshHeldQuotes re-prices every stock that at least one account holds and
// publishes each update for the SSE stream. Per-ticker failures are logged
// and skipped; the refresh is best-effort by design.
func (s *StockService) RefreshHeldQuotes(ctx context.Context) error {
	var stocks []models.Stock
	err := s.DB.WithContext(ctx).
		Joins("JOIN holdings ON holdings.stock_id = stocks.id").
		Distinct().
		Find(&stocks).Error
	if err != nil {
		return fmt.Errorf("failed to list held stocks: %w", err)
	}

	for _, stock := range stocks {
		price, err := s.Prices.GetCurrentPrice(ctx, stock.Ticker)
		if err != nil {
			logger.Error("Quote refresh failed for %s: %v", stock.Ticker, err)
			continue
		}

		now := time.Now().UTC()
		quote := &Quote{
			Ticker:       stock.Ticker,
			CompanyName:  stock.CompanyName,
			CurrentPrice: price,
			At:           now,
		}
		s.cacheQuote(ctx, quote)
		s.updateStockPrice(ctx, &stock, price, now)
		s.publishQuote(ctx, quote)
	}

	return nil
}

func (s *StockService) cacheQuote(ctx context.Context, quote *Quote) {
	if s.Redis == nil {
		return
	}
	payload, err := json.Marshal(quote)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, quoteCacheKey(quote.Ticker), payload, QuoteCacheTTL).Err(); err != nil {
		logger.Error("Failed to cache quote for %s: %v", quote.Ticker, err)
	}
}

func (s *StockService) publishQuote(ctx context.Context, quote *Quote) {
	if s.Redis == nil {
		return
	}
	payload, err := json.Marshal(quote)
	if err != nil {
		return
	}
	if err := s.Redis.Publish(ctx, QuoteUpdateChannel, payload).Err(); err != nil {
		logger.Error("Failed to publish quote for %s: %v", quote.Ticker, err)
	}
}

func (s *StockService) updateStockPrice(ctx context.Context, stock *models.Stock, price decimal.Decimal, at time.Time) {
	err := s.DB.WithContext(ctx).Model(stock).Updates(map[string]interface{}{
		"last_known_price": price,
		"price_updated_at": at,
	}).Error
	if err != nil {
		logger.Error("Failed to update cached price for %s: %v", stock.Ticker, err)
	}
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
