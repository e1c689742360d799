package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletFeatureRecord is the output row for one wallet. Created once per
// wallet and never mutated after construction. When Error is non-empty,
// processing failed for the wallet and every other field holds its zero
// value (batch isolation: errors are data, not control flow).
type WalletFeatureRecord struct {
	Wallet string

	// Distinct transaction counts per trailing window.
	TxCount1M  int
	TxCount3M  int
	TxCount6M  int
	TxCount12M int

	// MonthlyTxAvg is the 12M count divided by a fixed 12, 4 decimals.
	MonthlyTxAvg float64

	// USD transfer volume per trailing window.
	Volume1M  decimal.Decimal
	Volume3M  decimal.Decimal
	Volume6M  decimal.Decimal
	Volume12M decimal.Decimal

	// MonthlyVolumeAvg is the 12M volume divided by a fixed 12.
	MonthlyVolumeAvg decimal.Decimal

	// LastTxTime is the newest transaction timestamp across the full
	// fetched history. Nil when the wallet has no transactions.
	LastTxTime *time.Time

	// HoursBetweenLastTwo is the gap between the two newest transactions
	// in hours, rounded to 2 decimals. Nil with fewer than 2 transactions.
	HoursBetweenLastTwo *float64

	// Categories and TxTypes are sorted, deduplicated sets observed over
	// the most recent transfers (up to the classifier limit).
	Categories []string
	TxTypes    []string

	// GasFeeUSD is the total gas spend in USD over the full fetched
	// history, counting only transactions where the wallet paid gas.
	GasFeeUSD decimal.Decimal

	// Error holds a human-readable failure message, empty on success.
	Error string
}

// EmptyFeatureRecord returns a fully zeroed record for a wallet with no
// history. Empty history is not an error.
func EmptyFeatureRecord(wallet string) WalletFeatureRecord {
	return WalletFeatureRecord{Wallet: wallet}
}

// ErrorFeatureRecord returns a record carrying only the failure message.
func ErrorFeatureRecord(wallet, msg string) WalletFeatureRecord {
	return WalletFeatureRecord{Wallet: wallet, Error: msg}
}
