package pricing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemorySource is an in-memory Source for tests and offline runs.
type MemorySource struct {
	mu     sync.Mutex
	prices map[quoteKey]decimal.Decimal
}

// NewMemorySource creates an empty in-memory price source.
func NewMemorySource() *MemorySource {
	return &MemorySource{prices: make(map[quoteKey]decimal.Decimal)}
}

// Set records a price for (symbol, day).
func (s *MemorySource) Set(symbol string, day time.Time, price decimal.Decimal) {
	key := quoteKey{
		symbol: strings.ToUpper(symbol),
		day:    day.UTC().Truncate(24 * time.Hour).Format("2006-01-02"),
	}
	s.mu.Lock()
	s.prices[key] = price
	s.mu.Unlock()
}

// Lookup returns the recorded price or ErrPriceNotFound.
func (s *MemorySource) Lookup(_ context.Context, symbol string, day time.Time) (decimal.Decimal, error) {
	key := quoteKey{
		symbol: strings.ToUpper(symbol),
		day:    day.UTC().Truncate(24 * time.Hour).Format("2006-01-02"),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	price, ok := s.prices[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s on %s", ErrPriceNotFound, key.symbol, key.day)
	}
	return price, nil
}

var _ Source = (*MemorySource)(nil)
