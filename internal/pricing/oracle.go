package pricing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"wallet-feature-lab/internal/domain"
	"wallet-feature-lab/internal/observability"
)

// FallbackSymbol is substituted when the requested asset cannot be priced.
const FallbackSymbol = "ETH"

// quoteKey identifies a cached quote by (symbol, calendar day).
type quoteKey struct {
	symbol string
	day    string
}

// Oracle resolves USD prices with per-(symbol, day) memoization and an
// ETH fallback. A given key resolves to at most one cached quote per
// process lifetime; entries are never invalidated mid-run. The cache is
// owned by whoever constructs the oracle and shared by handle across
// wallet tasks; concurrent use is safe.
type Oracle struct {
	source Source

	mu    sync.Mutex
	cache map[quoteKey]domain.PriceQuote
}

// NewOracle creates an oracle backed by the given source with an empty cache.
func NewOracle(source Source) *Oracle {
	return &Oracle{
		source: source,
		cache:  make(map[quoteKey]domain.PriceQuote),
	}
}

// Quote returns the USD price for symbol at the given instant.
// The first successful lookup for a (symbol, day) pair is memoized;
// later calls for the same key return the cached value without hitting
// the source. When the source has no data for the symbol, the ETH price
// for the same day is substituted. When ETH is also unavailable, Quote
// returns ErrPriceUnavailable.
func (o *Oracle) Quote(ctx context.Context, symbol string, at time.Time) (domain.PriceQuote, error) {
	day := at.UTC().Truncate(24 * time.Hour)
	key := quoteKey{symbol: strings.ToUpper(symbol), day: day.Format("2006-01-02")}

	o.mu.Lock()
	cached, ok := o.cache[key]
	o.mu.Unlock()
	if ok {
		observability.RecordPriceLookup("hit")
		return cached, nil
	}

	price, err := o.source.Lookup(ctx, key.symbol, day)
	if err != nil {
		if key.symbol == FallbackSymbol {
			observability.RecordPriceLookup("miss")
			return domain.PriceQuote{}, fmt.Errorf("%w: %s on %s: %v", ErrPriceUnavailable, key.symbol, key.day, err)
		}
		price, err = o.source.Lookup(ctx, FallbackSymbol, day)
		if err != nil {
			observability.RecordPriceLookup("miss")
			return domain.PriceQuote{}, fmt.Errorf("%w: %s on %s (ETH fallback failed: %v)", ErrPriceUnavailable, key.symbol, key.day, err)
		}
		observability.RecordPriceLookup("fallback")
	} else {
		observability.RecordPriceLookup("source")
	}

	quote := domain.PriceQuote{Symbol: key.symbol, Timestamp: day, USD: price}

	o.mu.Lock()
	// Concurrent builders may race to populate the same key; all writers
	// compute the same value from the same upstream snapshot, so keep the
	// first entry for bit-identical repeat reads.
	if existing, ok := o.cache[key]; ok {
		quote = existing
	} else {
		o.cache[key] = quote
		observability.DefaultMetrics.PriceCacheSize.Set(float64(len(o.cache)))
	}
	o.mu.Unlock()

	return quote, nil
}

// CacheSize returns the number of memoized quotes.
func (o *Oracle) CacheSize() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.cache)
}
