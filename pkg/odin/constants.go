package odin

import "github.com/shopspring/decimal"

// Fixed-point scales of the odin.fun trade feed. A trade's BTC-side value
// is price * (amount / AmountScale) / PriceScale; FiatScale is applied
// after multiplying by the fiat reference price.
var (
	AmountScale = decimal.New(1, 8)
	PriceScale  = decimal.New(1, 8)
	FiatScale   = decimal.New(1, 6)

	// TokenDivisor turns a native amount into whole tokens for display.
	TokenDivisor = decimal.New(1, 11)
	// PriceDivisor turns a native price into sats for display.
	PriceDivisor = decimal.New(1, 3)
)

const (
	// DefaultPageSize is large enough that one page holds every trade since
	// the watermark under normal volume. Pagination is not followed.
	DefaultPageSize = 9999

	// TimeLayout is the lower-bound timestamp format expected by time_min.
	TimeLayout = "2006-01-02T15:04:05.000Z"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)
