package features

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"wallet-feature-lab/internal/domain"
)

// PriceQuoter resolves USD prices; satisfied by pricing.Oracle.
type PriceQuoter interface {
	Quote(ctx context.Context, symbol string, at time.Time) (domain.PriceQuote, error)
}

// WindowStats holds the aggregation result for one wallet.
type WindowStats struct {
	// Counts and Volumes are keyed by window label (1M, 3M, 6M, 12M).
	Counts  map[string]int
	Volumes map[string]decimal.Decimal

	// MonthlyTxAvg is the 12M count over a fixed 12 months.
	MonthlyTxAvg float64
	// MonthlyVolumeAvg is the 12M volume over a fixed 12 months.
	MonthlyVolumeAvg decimal.Decimal

	LastTxTime          *time.Time
	HoursBetweenLastTwo *float64

	GasFeeUSD decimal.Decimal
}

// Aggregate buckets a wallet's history into the trailing windows and
// computes count, volume, timing and gas statistics.
//
// Records with timestamps after now are excluded from every window
// (clock-skew guard). A pricing miss on a transfer contributes zero to
// the volume sums; a pricing miss on the ETH quote needed for the gas
// fee has no further fallback and fails the whole aggregation.
func Aggregate(ctx context.Context, transactions []domain.TransactionRecord, transfers []domain.TransferRecord, now time.Time, oracle PriceQuoter) (*WindowStats, error) {
	stats := &WindowStats{
		Counts:  make(map[string]int, len(domain.Windows)),
		Volumes: make(map[string]decimal.Decimal, len(domain.Windows)),
	}

	widest := domain.Windows[len(domain.Windows)-1]

	// Transfer USD values are shared across nested windows; resolve once,
	// and only for transfers inside the widest window.
	usdValues := make([]decimal.Decimal, len(transfers))
	for i, tr := range transfers {
		if tr.Amount.IsZero() || !widest.Contains(tr.Timestamp, now) {
			continue
		}
		quote, err := oracle.Quote(ctx, tr.Asset, tr.Timestamp)
		if err != nil {
			// Unpriceable transfer, contributes zero
			continue
		}
		usdValues[i] = tr.Amount.Mul(quote.USD)
	}

	for _, window := range domain.Windows {
		hashes := make(map[string]struct{})
		for _, tx := range transactions {
			if window.Contains(tx.Timestamp, now) {
				hashes[tx.Hash] = struct{}{}
			}
		}
		stats.Counts[window.Label] = len(hashes)

		volume := decimal.Zero
		for i, tr := range transfers {
			if window.Contains(tr.Timestamp, now) {
				volume = volume.Add(usdValues[i])
			}
		}
		stats.Volumes[window.Label] = volume
	}

	months := decimal.NewFromInt(domain.MonthsPerYear)
	stats.MonthlyTxAvg = float64(stats.Counts["12M"]) / domain.MonthsPerYear
	stats.MonthlyVolumeAvg = stats.Volumes["12M"].Div(months)

	latest, second := lastTwoTimestamps(transactions)
	if latest != nil {
		stats.LastTxTime = latest
	}
	if latest != nil && second != nil {
		hours := roundHours(latest.Sub(*second))
		stats.HoursBetweenLastTwo = &hours
	}

	gasFee, err := totalGasFeeUSD(ctx, transactions, oracle)
	if err != nil {
		return nil, err
	}
	stats.GasFeeUSD = gasFee

	return stats, nil
}

// lastTwoTimestamps returns the newest and second-newest transaction
// timestamps, unbounded by window.
func lastTwoTimestamps(transactions []domain.TransactionRecord) (*time.Time, *time.Time) {
	var latest, second *time.Time
	for i := range transactions {
		ts := transactions[i].Timestamp
		switch {
		case latest == nil || ts.After(*latest):
			second = latest
			t := ts
			latest = &t
		case second == nil || ts.After(*second):
			t := ts
			second = &t
		}
	}
	return latest, second
}

// totalGasFeeUSD sums the USD cost of gas across the full history.
// Only transactions carrying gas data contribute; the fetch layer leaves
// gas fields zero for transactions the wallet did not pay for.
func totalGasFeeUSD(ctx context.Context, transactions []domain.TransactionRecord, oracle PriceQuoter) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, tx := range transactions {
		feeETH := tx.GasFeeETH()
		if feeETH.IsZero() {
			continue
		}
		quote, err := oracle.Quote(ctx, "ETH", tx.Timestamp)
		if err != nil {
			return decimal.Zero, fmt.Errorf("gas fee pricing for %s: %w", tx.Hash, err)
		}
		total = total.Add(feeETH.Mul(quote.USD))
	}
	return total, nil
}

// roundHours converts a duration to hours with 2 decimal places.
func roundHours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}
