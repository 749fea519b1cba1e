/**
 * @description
 * HTTP client for the Yahoo Finance v8 chart API.
 * Implements the PriceSource interface used by trade execution and valuation.
 *
 * @dependencies
 * - net/http
 * - encoding/json
 * - backend/internal/config
 * - github.com/shopspring/decimal
 */

package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/papertrade-project/backend/internal/config"
	"github.com/shopspring/decimal"
)

const (
	DefaultTimeout = 10 * time.Second

	userAgent = "papertrade-backend/1.0"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	timeout := cfg.MarketData.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: cfg.MarketData.BaseURL,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// chartParams holds query parameters for the chart endpoint
type chartParams struct {
	Interval string
	Range    string
	Period1  int64
	Period2  int64
}

// GetCurrentPrice returns the latest trade price for a ticker.
// Falls back to the last non-zero intraday close when the meta price is missing.
func (c *Client) GetCurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	result, err := c.fetchChart(ctx, ticker, chartParams{Interval: "1m", Range: "1d"})
	if err != nil {
		return decimal.Zero, err
	}

	price := result.Meta.RegularMarketPrice
	if price <= 0 {
		// Meta price can be absent outside market hours; walk backwards
		// through intraday closes.
		if len(result.Indicators.Quote) > 0 && len(result.Indicators.Quote[0].Close) == len(result.Timestamp) {
			closes := result.Indicators.Quote[0].Close
			for i := len(closes) - 1; i >= 0; i-- {
				if closes[i] > 0 {
					price = closes[i]
					break
				}
			}
		}
	}

	if price <= 0 {
		return decimal.Zero, ErrUnavailable
	}
	return decimal.NewFromFloat(price).Round(2), nil
}

// GetClosingPrice returns the closing price for a ticker on a calendar date
func (c *Client) GetClosingPrice(ctx context.Context, ticker string, date time.Time) (decimal.Decimal, error) {
	history, err := c.fetchDailyHistory(ctx, ticker, date, date)
	if err != nil {
		return decimal.Zero, err
	}

	day := dateKey(date)
	price, ok := history[day]
	if !ok {
		return decimal.Zero, ErrUnavailable
	}
	return price, nil
}

// GetClosingPrices bulk-fetches daily closes for all tickers across [from, to].
// Tickers that fail individually are skipped; an error is returned only when
// no ticker could be fetched at all.
func (c *Client) GetClosingPrices(ctx context.Context, tickers []string, from, to time.Time) (map[string]History, error) {
	results := make(map[string]History, len(tickers))
	var lastErr error

	for _, ticker := range tickers {
		history, err := c.fetchDailyHistory(ctx, ticker, from, to)
		if err != nil {
			lastErr = err
			continue
		}
		if len(history) > 0 {
			results[ticker] = history
		}
	}

	if len(results) == 0 && lastErr != nil {
		return nil, fmt.Errorf("bulk price fetch failed: %w", lastErr)
	}
	return results, nil
}

func (c *Client) fetchDailyHistory(ctx context.Context, ticker string, from, to time.Time) (History, error) {
	// period2 is exclusive upstream; extend by one day to include `to` itself
	params := chartParams{
		Interval: "1d",
		Period1:  dateKey(from).Unix(),
		Period2:  dateKey(to).Add(24 * time.Hour).Unix(),
	}

	result, err := c.fetchChart(ctx, ticker, params)
	if err != nil {
		return nil, err
	}

	history := make(History)
	if len(result.Indicators.Quote) == 0 {
		return history, nil
	}
	closes := result.Indicators.Quote[0].Close
	if len(closes) != len(result.Timestamp) {
		return history, nil
	}

	for i, ts := range result.Timestamp {
		if closes[i] <= 0 {
			continue
		}
		day := dateKey(time.Unix(ts, 0))
		history[day] = decimal.NewFromFloat(closes[i]).Round(2)
	}
	return history, nil
}

func (c *Client) fetchChart(ctx context.Context, ticker string, params chartParams) (*chartResult, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, ErrUnavailable
	}

	u, err := url.Parse(fmt.Sprintf("%s/v8/finance/chart/%s", c.BaseURL, url.PathEscape(ticker)))
	if err != nil {
		return nil, err
	}

	q := u.Query()
	if params.Interval != "" {
		q.Set("interval", params.Interval)
	}
	if params.Range != "" {
		q.Set("range", params.Range)
	}
	if params.Period1 > 0 {
		q.Set("period1", strconv.FormatInt(params.Period1, 10))
	}
	if params.Period2 > 0 {
		q.Set("period2", strconv.FormatInt(params.Period2, 10))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart api error: status %d", resp.StatusCode)
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	if payload.Chart.Error != nil {
		if payload.Chart.Error.Code == "Not Found" {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("chart api error: %s: %s", payload.Chart.Error.Code, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, ErrUnavailable
	}

	return &payload.Chart.Result[0], nil
}

func dateKey(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
