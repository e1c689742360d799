package features

import (
	"context"
	"io"
	"log"
	"time"

	"wallet-feature-lab/internal/domain"
)

// Fetcher is the injected fetch capability; satisfied by ethereum.Fetcher.
type Fetcher interface {
	// FetchTransactions returns the wallet's transactions, newest first.
	FetchTransactions(ctx context.Context, address string) ([]domain.TransactionRecord, error)

	// FetchTransfers returns the wallet's transfers, newest first.
	FetchTransfers(ctx context.Context, address string) ([]domain.TransferRecord, error)
}

// Builder assembles one WalletFeatureRecord per wallet. Failures never
// escape Build: fetch and gas-pricing errors are converted into the
// record's error field so one bad wallet cannot abort a batch.
type Builder struct {
	fetcher Fetcher
	oracle  PriceQuoter
	limit   int
	logger  *log.Logger
}

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// ClassifyLimit overrides the recent-transfer classification depth.
	ClassifyLimit int
	// Logger receives per-wallet failure logs; nil discards them.
	Logger *log.Logger
}

// NewBuilder creates a builder over the given fetch and price capabilities.
func NewBuilder(fetcher Fetcher, oracle PriceQuoter, opts BuilderOptions) *Builder {
	b := &Builder{
		fetcher: fetcher,
		oracle:  oracle,
		limit:   opts.ClassifyLimit,
		logger:  opts.Logger,
	}
	if b.limit <= 0 {
		b.limit = DefaultClassifyLimit
	}
	if b.logger == nil {
		b.logger = log.New(io.Discard, "", 0)
	}
	return b
}

// Build computes the feature record for one wallet. The wallet address
// must already be validated and lower-cased. Build never returns an
// error: failures become the record's error field.
func (b *Builder) Build(ctx context.Context, wallet string, now time.Time) domain.WalletFeatureRecord {
	transfers, err := b.fetcher.FetchTransfers(ctx, wallet)
	if err != nil {
		b.logger.Printf("wallet %s: transfer fetch failed: %v", wallet, err)
		return domain.ErrorFeatureRecord(wallet, err.Error())
	}
	transactions, err := b.fetcher.FetchTransactions(ctx, wallet)
	if err != nil {
		b.logger.Printf("wallet %s: transaction fetch failed: %v", wallet, err)
		return domain.ErrorFeatureRecord(wallet, err.Error())
	}

	// Empty history is not an error
	if len(transactions) == 0 && len(transfers) == 0 {
		return domain.EmptyFeatureRecord(wallet)
	}

	stats, err := Aggregate(ctx, transactions, transfers, now, b.oracle)
	if err != nil {
		b.logger.Printf("wallet %s: aggregation failed: %v", wallet, err)
		return domain.ErrorFeatureRecord(wallet, err.Error())
	}

	categories, txTypes := Classify(wallet, transfers, b.limit)

	return domain.WalletFeatureRecord{
		Wallet:              wallet,
		TxCount1M:           stats.Counts["1M"],
		TxCount3M:           stats.Counts["3M"],
		TxCount6M:           stats.Counts["6M"],
		TxCount12M:          stats.Counts["12M"],
		MonthlyTxAvg:        stats.MonthlyTxAvg,
		Volume1M:            stats.Volumes["1M"],
		Volume3M:            stats.Volumes["3M"],
		Volume6M:            stats.Volumes["6M"],
		Volume12M:           stats.Volumes["12M"],
		MonthlyVolumeAvg:    stats.MonthlyVolumeAvg,
		LastTxTime:          stats.LastTxTime,
		HoursBetweenLastTwo: stats.HoursBetweenLastTwo,
		Categories:          categories,
		TxTypes:             txTypes,
		GasFeeUSD:           stats.GasFeeUSD,
	}
}
