package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Errors returned by price sources and the oracle.
var (
	// ErrPriceNotFound is returned by a Source when it has no data for
	// the requested (symbol, day) pair.
	ErrPriceNotFound = errors.New("price not found")

	// ErrPriceUnavailable is returned by the Oracle when neither the
	// requested asset nor the ETH fallback could be priced.
	ErrPriceUnavailable = errors.New("price unavailable")
)

// Source resolves a USD price for an asset symbol on a calendar day.
// Implementations do not retry beyond transport-level policy; the
// oracle treats any failure as a miss and applies its fallback.
type Source interface {
	// Lookup returns the USD price for symbol on the given day (UTC).
	// Returns ErrPriceNotFound when the source has no data.
	Lookup(ctx context.Context, symbol string, day time.Time) (decimal.Decimal, error)
}
