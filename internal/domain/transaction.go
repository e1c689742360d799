package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRecord represents a single on-chain transaction as fetched
// from the data provider. Immutable once fetched.
type TransactionRecord struct {
	Hash      string
	Timestamp time.Time // UTC
	From      string    // lower-cased hex address
	To        string    // lower-cased hex address, empty for contract creation
	GasUsed   uint64    // gas units consumed
	GasPrice  uint64    // effective gas price in wei
	Value     decimal.Decimal
}

// GasFeeETH returns the total gas cost of the transaction in ETH
// (gas used × gas price, scaled down from wei).
func (t TransactionRecord) GasFeeETH() decimal.Decimal {
	wei := new(big.Int).Mul(
		new(big.Int).SetUint64(t.GasUsed),
		new(big.Int).SetUint64(t.GasPrice),
	)
	return decimal.NewFromBigInt(wei, -18)
}
