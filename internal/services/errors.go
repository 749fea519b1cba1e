/**
 * @description
 * Sentinel errors for the trading core.
 * Validation failures are returned synchronously and never mutate state;
 * handlers map them to HTTP codes with errors.Is.
 */

package services

import "errors"

var (
	// ErrUnknownInstrument is returned when a ticker has no catalog entry
	ErrUnknownInstrument = errors.New("unknown instrument")

	// ErrPriceUnavailable is returned when the price source cannot supply a
	// current price for a trade. Fatal to the operation, never retried here.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrInsufficientFunds is returned when a buy exceeds the cash balance
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientShares is returned when a sell exceeds the position
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrNoHolding is returned when selling a stock the account doesn't hold
	ErrNoHolding = errors.New("no holding for instrument")

	// ErrInvalidQuantity is returned for non-positive quantities or more
	// than four fractional digits
	ErrInvalidQuantity = errors.New("quantity must be positive with at most 4 decimal places")

	// ErrUpstreamUnavailable is returned when a bulk history fetch fails
	// entirely. Fatal for the current account's backfill only.
	ErrUpstreamUnavailable = errors.New("market data source unavailable")

	// ErrUsernameTaken and ErrEmailTaken are registration conflicts
	ErrUsernameTaken = errors.New("username is already taken")
	ErrEmailTaken    = errors.New("email is already registered")

	// ErrInvalidCredentials is returned on failed login
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidToken is returned for bad or expired verification tokens
	ErrInvalidToken = errors.New("invalid or expired token")
)
