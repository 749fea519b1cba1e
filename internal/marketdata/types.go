/**
 * @description
 * Wire types for the Yahoo Finance v8 chart API.
 *
 * @dependencies
 * - encoding/json (decoded by client.go)
 */

package marketdata

// chartResponse mirrors the subset of the v8 chart payload we consume
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		RegularMarketTime  int64   `json:"regularMarketTime"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}
