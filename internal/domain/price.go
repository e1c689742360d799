package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote represents a resolved USD price for an asset at a timestamp.
type PriceQuote struct {
	Symbol    string
	Timestamp time.Time
	USD       decimal.Decimal // >= 0
}
