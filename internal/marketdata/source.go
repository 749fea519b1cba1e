/**
 * @description
 * PriceSource interface consumed by the trade and portfolio services.
 * One fallback policy lives in the portfolio service; this package only
 * distinguishes "no data for that ticker/date" from transport failure.
 *
 * @dependencies
 * - github.com/shopspring/decimal
 */

package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable signals that the upstream has no price for the requested
// ticker or date (unknown symbol, non-trading day, data gap). Transport and
// decoding failures are returned as ordinary errors instead.
var ErrUnavailable = errors.New("marketdata: price unavailable")

// PriceSource supplies current and historical closing prices
type PriceSource interface {
	// GetCurrentPrice returns the latest trade price for a ticker
	GetCurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
	// GetClosingPrice returns the closing price for a ticker on a calendar date
	GetClosingPrice(ctx context.Context, ticker string, date time.Time) (decimal.Decimal, error)
	// GetClosingPrices bulk-fetches daily closes for a date range.
	// Partial results are allowed: tickers that fail are simply absent from
	// the map. An error is returned only when nothing could be fetched.
	GetClosingPrices(ctx context.Context, tickers []string, from, to time.Time) (map[string]History, error)
}

// History holds daily closing prices keyed by calendar date (midnight UTC)
type History map[time.Time]decimal.Decimal

// OnOrBefore returns the most recent close at or before date
func (h History) OnOrBefore(date time.Time) (decimal.Decimal, bool) {
	var (
		best      time.Time
		bestPrice decimal.Decimal
		found     bool
	)
	for d, p := range h {
		if d.After(date) {
			continue
		}
		if !found || d.After(best) {
			best = d
			bestPrice = p
			found = true
		}
	}
	return bestPrice, found
}

// On returns the close for exactly date
func (h History) On(date time.Time) (decimal.Decimal, bool) {
	p, ok := h[date]
	return p, ok
}
