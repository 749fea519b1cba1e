/**
 * @description
 * Service for paper-trade execution.
 * Applies a single buy or sell order atomically against the account ledger,
 * the holdings table, and the append-only transaction log.
 *
 * Concurrency: the account row (and holding row, when present) is locked
 * FOR UPDATE inside one database transaction, so two concurrent orders on
 * the same account cannot interleave the read-modify-write of cash,
 * shares_owned and average_price. Different accounts proceed in parallel.
 *
 * @dependencies
 * - backend/internal/marketdata
 * - backend/internal/models
 * - gorm.io/gorm
 * - github.com/shopspring/decimal
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/papertrade-project/backend/internal/logger"
	"github.com/papertrade-project/backend/internal/marketdata"
	"github.com/papertrade-project/backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Money is rounded to 2 decimal places, share quantities and the
// volume-weighted average price to 4.
const (
	moneyScale    = 2
	quantityScale = 4
)

type TradeService struct {
	DB     *gorm.DB
	Prices marketdata.PriceSource
}

func NewTradeService(db *gorm.DB, prices marketdata.PriceSource) *TradeService {
	return &TradeService{
		DB:     db,
		Prices: prices,
	}
}

// ExecuteBuy buys quantity shares of ticker for the account and returns the
// resulting cash balance. No partial fills: the order either applies in full
// or leaves no state change.
func (s *TradeService) ExecuteBuy(ctx context.Context, accountID uuid.UUID, ticker string, quantity decimal.Decimal) (decimal.Decimal, error) {
	if err := validateQuantity(quantity); err != nil {
		return decimal.Zero, err
	}

	stock, price, err := s.refreshPrice(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}

	totalCost := quantity.Mul(price).Round(moneyScale)

	var cashAfter decimal.Decimal
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&account, "id = ?", accountID).Error; err != nil {
			return fmt.Errorf("failed to lock account: %w", err)
		}

		if account.Cash.LessThan(totalCost) {
			return ErrInsufficientFunds
		}

		var holding models.Holding
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ? AND stock_id = ?", account.ID, stock.ID).
			First(&holding).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			holding = models.Holding{
				AccountID:    account.ID,
				StockID:      stock.ID,
				SharesOwned:  quantity,
				AveragePrice: price.Round(quantityScale),
			}
			if err := tx.Create(&holding).Error; err != nil {
				return fmt.Errorf("failed to create holding: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to lock holding: %w", err)
		default:
			// Volume-weighted average cost: only buys move the basis
			costBefore := holding.SharesOwned.Mul(holding.AveragePrice)
			sharesAfter := holding.SharesOwned.Add(quantity)
			holding.AveragePrice = costBefore.Add(totalCost).Div(sharesAfter).Round(quantityScale)
			holding.SharesOwned = sharesAfter
			if err := tx.Model(&holding).Updates(map[string]interface{}{
				"shares_owned":  holding.SharesOwned,
				"average_price": holding.AveragePrice,
			}).Error; err != nil {
				return fmt.Errorf("failed to update holding: %w", err)
			}
		}

		account.Cash = account.Cash.Sub(totalCost)
		if err := tx.Model(&account).Update("cash", account.Cash).Error; err != nil {
			return fmt.Errorf("failed to debit cash: %w", err)
		}

		record := models.Transaction{
			AccountID:     account.ID,
			StockID:       stock.ID,
			Side:          models.TransactionSideBuy,
			Quantity:      quantity,
			PricePerShare: price,
			TotalAmount:   totalCost,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to record transaction: %w", err)
		}

		cashAfter = account.Cash
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	return cashAfter, nil
}

// ExecuteSell sells quantity shares of ticker for the account and returns the
// resulting cash balance. Selling the entire position deletes the holding;
// a partial sell leaves the average price untouched.
func (s *TradeService) ExecuteSell(ctx context.Context, accountID uuid.UUID, ticker string, quantity decimal.Decimal) (decimal.Decimal, error) {
	if err := validateQuantity(quantity); err != nil {
		return decimal.Zero, err
	}

	stock, price, err := s.refreshPrice(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}

	proceeds := quantity.Mul(price).Round(moneyScale)

	var cashAfter decimal.Decimal
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&account, "id = ?", accountID).Error; err != nil {
			return fmt.Errorf("failed to lock account: %w", err)
		}

		var holding models.Holding
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ? AND stock_id = ?", account.ID, stock.ID).
			First(&holding).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoHolding
		}
		if err != nil {
			return fmt.Errorf("failed to lock holding: %w", err)
		}

		if quantity.GreaterThan(holding.SharesOwned) {
			return ErrInsufficientShares
		}

		sharesAfter := holding.SharesOwned.Sub(quantity)
		if sharesAfter.IsZero() {
			// Zero-share rows never persist; a later buy starts a fresh basis
			if err := tx.Delete(&holding).Error; err != nil {
				return fmt.Errorf("failed to delete emptied holding: %w", err)
			}
		} else {
			if err := tx.Model(&holding).Update("shares_owned", sharesAfter).Error; err != nil {
				return fmt.Errorf("failed to update holding: %w", err)
			}
		}

		account.Cash = account.Cash.Add(proceeds)
		if err := tx.Model(&account).Update("cash", account.Cash).Error; err != nil {
			return fmt.Errorf("failed to credit cash: %w", err)
		}

		record := models.Transaction{
			AccountID:     account.ID,
			StockID:       stock.ID,
			Side:          models.TransactionSideSell,
			Quantity:      quantity,
			PricePerShare: price,
			TotalAmount:   proceeds,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to record transaction: %w", err)
		}

		cashAfter = account.Cash
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	return cashAfter, nil
}

// refreshPrice resolves the ticker and fetches a fresh quote immediately
// before costing. The cached price on the stock row is updated best-effort.
func (s *TradeService) refreshPrice(ctx context.Context, ticker string) (*models.Stock, decimal.Decimal, error) {
	var stock models.Stock
	if err := s.DB.WithContext(ctx).Where("ticker = ?", normalizeTicker(ticker)).First(&stock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, decimal.Zero, ErrUnknownInstrument
		}
		return nil, decimal.Zero, fmt.Errorf("failed to look up instrument: %w", err)
	}

	price, err := s.Prices.GetCurrentPrice(ctx, stock.Ticker)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, stock.Ticker, err)
	}

	now := time.Now()
	if err := s.DB.WithContext(ctx).Model(&stock).Updates(map[string]interface{}{
		"last_known_price": price,
		"price_updated_at": now,
	}).Error; err != nil {
		logger.Error("Failed to refresh cached price for %s: %v", stock.Ticker, err)
	}

	return &stock, price, nil
}

func validateQuantity(quantity decimal.Decimal) error {
	if quantity.Sign() <= 0 {
		return ErrInvalidQuantity
	}
	if !quantity.Equal(quantity.Round(quantityScale)) {
		return ErrInvalidQuantity
	}
	return nil
}
