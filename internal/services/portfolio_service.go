/**
 * @description
 * Valuation engine: computes daily portfolio snapshots (cash + mark-to-market
 * holdings) and serves the dashboard time series.
 *
 * Pricing policy: each valuation run keeps a per-stock cache of the last
 * resolved price. A date with no close for a stock falls back to that cache;
 * with no fallback available the holding contributes zero and the gap is
 * reported. Only a failed bulk history fetch aborts an account's backfill.
 *
 * Known limitation (inherited, intentional): backfill values historical dates
 * using the *current* holdings multiplied by historical prices. Transactions
 * are not replayed to reconstruct past share counts.
 *
 * @dependencies
 * - backend/internal/marketdata
 * - backend/internal/models
 * - gorm.io/gorm
 * - github.com/jackc/pgconn
 * - github.com/shopspring/decimal
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/papertrade-project/backend/internal/logger"
	"github.com/papertrade-project/backend/internal/marketdata"
	"github.com/papertrade-project/backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PortfolioService struct {
	DB     *gorm.DB
	Prices marketdata.PriceSource
}

func NewPortfolioService(db *gorm.DB, prices marketdata.PriceSource) *PortfolioService {
	return &PortfolioService{
		DB:     db,
		Prices: prices,
	}
}

// ValuationRun scopes the fallback price cache (and optional prefetched
// history) to one valuation pass over one account. Not persisted.
type ValuationRun struct {
	history      map[string]marketdata.History
	lastResolved map[uuid.UUID]decimal.Decimal
}

func NewValuationRun() *ValuationRun {
	return &ValuationRun{
		lastResolved: make(map[uuid.UUID]decimal.Decimal),
	}
}

// WithHistory attaches bulk-prefetched daily closes keyed by ticker, so the
// run resolves prices locally instead of querying per date.
func (r *ValuationRun) WithHistory(history map[string]marketdata.History) *ValuationRun {
	r.history = history
	return r
}

// ComputeValuation persists one snapshot for (account, date). Idempotent:
// an existing snapshot makes the call a no-op and returns created=false.
func (s *PortfolioService) ComputeValuation(ctx context.Context, account *models.Account, date time.Time, run *ValuationRun) (*models.PortfolioSnapshot, bool, error) {
	day := models.DateOnly(date)

	var existing models.PortfolioSnapshot
	err := s.DB.WithContext(ctx).
		Where("account_id = ? AND date = ?", account.ID, day).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to check existing snapshot: %w", err)
	}

	var holdings []models.Holding
	if err := s.DB.WithContext(ctx).
		Preload("Stock").
		Where("account_id = ?", account.ID).
		Find(&holdings).Error; err != nil {
		return nil, false, fmt.Errorf("failed to load holdings: %w", err)
	}

	total := account.Cash
	for _, holding := range holdings {
		if holding.Stock == nil {
			continue
		}
		price, ok := s.resolveClosingPrice(ctx, run, holding.Stock, day)
		if !ok {
			logger.Error("No price for %s on or before %s; holding contributes 0", holding.Stock.Ticker, day.Format("2006-01-02"))
			continue
		}
		total = total.Add(holding.SharesOwned.Mul(price).Round(moneyScale))
	}

	snapshot := models.PortfolioSnapshot{
		AccountID:  account.ID,
		Date:       day,
		TotalValue: total,
	}
	if err := s.DB.WithContext(ctx).Create(&snapshot).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent run; the existing row wins
			if err := s.DB.WithContext(ctx).
				Where("account_id = ? AND date = ?", account.ID, day).
				First(&existing).Error; err != nil {
				return nil, false, fmt.Errorf("failed to load winning snapshot: %w", err)
			}
			return &existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create snapshot: %w", err)
	}

	return &snapshot, true, nil
}

// resolveClosingPrice applies the single fallback policy: exact close for the
// date, else the last price resolved earlier in this run. Transport errors on
// individual dates are data gaps, not failures.
func (s *PortfolioService) resolveClosingPrice(ctx context.Context, run *ValuationRun, stock *models.Stock, day time.Time) (decimal.Decimal, bool) {
	if run.history != nil {
		if history, ok := run.history[stock.Ticker]; ok {
			if price, ok := history.On(day); ok {
				run.lastResolved[stock.ID] = price
				return price, true
			}
		}
	} else {
		price, err := s.Prices.GetClosingPrice(ctx, stock.Ticker, day)
		if err == nil {
			run.lastResolved[stock.ID] = price
			return price, true
		}
		if !errors.Is(err, marketdata.ErrUnavailable) {
			logger.Error("Closing price fetch failed for %s on %s: %v", stock.Ticker, day.Format("2006-01-02"), err)
		}
	}

	if price, ok := run.lastResolved[stock.ID]; ok {
		return price, true
	}
	return decimal.Zero, false
}

// BackfillRange fills every missing snapshot for the account across
// [from, to], ascending. One bulk history fetch covers the whole range; if
// that fetch fails outright the account's backfill aborts with
// ErrUpstreamUnavailable (other accounts are unaffected).
func (s *PortfolioService) BackfillRange(ctx context.Context, account *models.Account, from, to time.Time) error {
	from = models.DateOnly(from)
	to = models.DateOnly(to)
	if to.Before(from) {
		return nil
	}

	tickers, err := s.heldTickers(ctx, account.ID)
	if err != nil {
		return err
	}

	run := NewValuationRun()
	if len(tickers) > 0 {
		history, err := s.Prices.GetClosingPrices(ctx, tickers, from, to)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		run.WithHistory(history)
	}

	// Ascending order matters: later dates may depend on prices resolved
	// for earlier dates via the run cache.
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if _, _, err := s.ComputeValuation(ctx, account, day, run); err != nil {
			return err
		}
	}

	return nil
}

// RecordDailySnapshot values every account for the given date. Failures are
// isolated per account.
func (s *PortfolioService) RecordDailySnapshot(ctx context.Context, date time.Time) error {
	var accounts []models.Account
	if err := s.DB.WithContext(ctx).Find(&accounts).Error; err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	for i := range accounts {
		account := &accounts[i]
		if _, created, err := s.ComputeValuation(ctx, account, date, NewValuationRun()); err != nil {
			logger.Error("Snapshot failed for account %s: %v", account.ID, err)
		} else if created {
			logger.Info("Snapshot recorded for account %s on %s", account.ID, models.DateOnly(date).Format("2006-01-02"))
		}
	}

	return nil
}

// BackfillAll backfills every account from its earliest snapshot (falling
// back to the account's creation date) through today.
func (s *PortfolioService) BackfillAll(ctx context.Context) error {
	var accounts []models.Account
	if err := s.DB.WithContext(ctx).Find(&accounts).Error; err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	today := models.DateOnly(time.Now())
	for i := range accounts {
		account := &accounts[i]

		start := models.DateOnly(account.CreatedAt)
		var first models.PortfolioSnapshot
		err := s.DB.WithContext(ctx).
			Where("account_id = ?", account.ID).
			Order("date ASC").
			First(&first).Error
		if err == nil {
			start = models.DateOnly(first.Date)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Backfill skipped for account %s: %v", account.ID, err)
			continue
		}

		if err := s.BackfillRange(ctx, account, start, today); err != nil {
			logger.Error("Backfill failed for account %s: %v", account.ID, err)
		}
	}

	return nil
}

// ResetHistory wipes all snapshots and rebuilds each account's series from a
// fresh starting-cash baseline dated to account creation.
func (s *PortfolioService) ResetHistory(ctx context.Context) error {
	if err := s.DB.WithContext(ctx).
		Where("1 = 1").
		Delete(&models.PortfolioSnapshot{}).Error; err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	logger.Info("All portfolio snapshots deleted")

	var accounts []models.Account
	if err := s.DB.WithContext(ctx).Find(&accounts).Error; err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	for i := range accounts {
		account := &accounts[i]
		seed := models.PortfolioSnapshot{
			AccountID:  account.ID,
			Date:       models.DateOnly(account.CreatedAt),
			TotalValue: models.StartingCash,
		}
		if err := s.DB.WithContext(ctx).Create(&seed).Error; err != nil && !isUniqueViolation(err) {
			logger.Error("Failed to seed baseline for account %s: %v", account.ID, err)
		}
	}

	return s.BackfillAll(ctx)
}

// Dashboard aggregates everything the portfolio page needs
type Dashboard struct {
	Username         string             `json:"username"`
	Email            string             `json:"email"`
	Cash             decimal.Decimal    `json:"cash"`
	TotalValue       decimal.Decimal    `json:"total_value"`
	PortfolioHistory []HistoryPoint     `json:"portfolio_history"`
	Holdings         []DashboardHolding `json:"current_holdings"`
}

// HistoryPoint is one dated valuation in the dashboard series
type HistoryPoint struct {
	Date       string          `json:"date"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// DashboardHolding is one position marked to the cached market price
type DashboardHolding struct {
	Ticker       string          `json:"ticker"`
	CompanyName  string          `json:"company_name"`
	SharesOwned  decimal.Decimal `json:"shares_owned"`
	AveragePrice decimal.Decimal `json:"average_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

// GetDashboard returns the valuation history and current holdings for an
// account. Holdings are marked with the cached last_known_price (refreshed by
// the worker); stale reads are acceptable outside trade execution.
func (s *PortfolioService) GetDashboard(ctx context.Context, accountID uuid.UUID) (*Dashboard, error) {
	var account models.Account
	if err := s.DB.WithContext(ctx).
		Preload("User").
		First(&account, "id = ?", accountID).Error; err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	var snapshots []models.PortfolioSnapshot
	if err := s.DB.WithContext(ctx).
		Where("account_id = ?", account.ID).
		Order("date ASC").
		Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	var holdings []models.Holding
	if err := s.DB.WithContext(ctx).
		Preload("Stock").
		Where("account_id = ?", account.ID).
		Find(&holdings).Error; err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	dashboard := &Dashboard{
		Cash:             account.Cash,
		TotalValue:       account.Cash,
		PortfolioHistory: make([]HistoryPoint, 0, len(snapshots)),
		Holdings:         make([]DashboardHolding, 0, len(holdings)),
	}
	if account.User != nil {
		dashboard.Username = account.User.Username
		dashboard.Email = account.User.Email
	}

	for _, snapshot := range snapshots {
		dashboard.PortfolioHistory = append(dashboard.PortfolioHistory, HistoryPoint{
			Date:       models.DateOnly(snapshot.Date).Format("2006-01-02"),
			TotalValue: snapshot.TotalValue,
		})
	}

	for _, holding := range holdings {
		if holding.Stock == nil {
			continue
		}
		value := holding.SharesOwned.Mul(holding.Stock.LastKnownPrice).Round(moneyScale)
		dashboard.Holdings = append(dashboard.Holdings, DashboardHolding{
			Ticker:       holding.Stock.Ticker,
			CompanyName:  holding.Stock.CompanyName,
			SharesOwned:  holding.SharesOwned,
			AveragePrice: holding.AveragePrice,
			CurrentPrice: holding.Stock.LastKnownPrice,
			TotalValue:   value,
		})
		dashboard.TotalValue = dashboard.TotalValue.Add(value)
	}

	return dashboard, nil
}

func (s *PortfolioService) heldTickers(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	var tickers []string
	err := s.DB.WithContext(ctx).
		Model(&models.Holding{}).
		Joins("JOIN stocks ON stocks.id = holdings.stock_id").
		Where("holdings.account_id = ?", accountID).
		Distinct().
		Pluck("stocks.ticker", &tickers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list held tickers: %w", err)
	}
	return tickers, nil
}

// isUniqueViolation detects Postgres unique-index violations (SQLSTATE 23505)
// so duplicate snapshot inserts can be treated as benign no-ops.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// The pgx v5 driver surfaces its own PgError type; match on SQLSTATE
	var stater interface{ SQLState() string }
	if errors.As(err, &stater) {
		return stater.SQLState() == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
