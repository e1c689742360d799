package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferRecord represents a single value movement of an asset.
// One transaction may carry zero or more transfers. Immutable once fetched.
type TransferRecord struct {
	Hash      string
	UniqueID  string // provider-assigned; falls back to hash when absent
	Timestamp time.Time
	Asset     string // asset symbol, e.g. "ETH", "USDC"
	// ContractAddress is empty for native-asset transfers.
	ContractAddress string
	Amount          decimal.Decimal // asset-native units
	// RawHint is the provider-supplied category hint ("external", "erc20", ...).
	// May be empty.
	RawHint string
	From    string
	To      string
}

// Native reports whether the transfer moves the chain's native asset.
func (t TransferRecord) Native() bool {
	return t.ContractAddress == ""
}

// Key returns the deduplication key for a transfer.
func (t TransferRecord) Key() string {
	if t.UniqueID != "" {
		return t.Hash + "::" + t.UniqueID
	}
	return t.Hash + "::" + t.Timestamp.UTC().Format(time.RFC3339)
}
