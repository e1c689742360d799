package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"wallet-feature-lab/internal/domain"
	"wallet-feature-lab/internal/observability"
)

// Fetch defaults.
const (
	// DefaultHistoryDays bounds the deep fetch to the widest window.
	DefaultHistoryDays = 365
	// DefaultRecentLimit is the classifier depth fetched regardless of age.
	DefaultRecentLimit = 250
	// NativeSymbol is the asset symbol for value transfers without a contract.
	NativeSymbol = "ETH"
)

// FetcherOptions configures Fetcher behavior.
type FetcherOptions struct {
	// HistoryDays bounds paginated fetching; 0 uses DefaultHistoryDays.
	HistoryDays int
	// RecentLimit is the recent-transfer depth; 0 uses DefaultRecentLimit.
	RecentLimit int
}

// Fetcher retrieves wallet history from an RPCClient and normalizes it
// into domain records. Receipt and token metadata lookups are memoized
// for the fetcher lifetime; a Fetcher is safe for concurrent use across
// wallet tasks.
type Fetcher struct {
	client      RPCClient
	historyDays int
	recentLimit int

	mu        sync.Mutex
	transfers map[string][]domain.TransferRecord
	receipts  map[string]*Receipt
	metadata  map[string]*TokenMetadata
}

// NewFetcher creates a fetcher over the given client.
func NewFetcher(client RPCClient, opts FetcherOptions) *Fetcher {
	f := &Fetcher{
		client:      client,
		historyDays: opts.HistoryDays,
		recentLimit: opts.RecentLimit,
		transfers:   make(map[string][]domain.TransferRecord),
		receipts:    make(map[string]*Receipt),
		metadata:    make(map[string]*TokenMetadata),
	}
	if f.historyDays <= 0 {
		f.historyDays = DefaultHistoryDays
	}
	if f.recentLimit <= 0 {
		f.recentLimit = DefaultRecentLimit
	}
	return f
}

// FetchTransfers returns the wallet's normalized transfers, newest first.
// The result merges a history-window fetch with a recent-depth fetch so
// both the window aggregation and the recent-transfer classification see
// every record they need. Results are memoized per wallet.
func (f *Fetcher) FetchTransfers(ctx context.Context, address string) ([]domain.TransferRecord, error) {
	address = strings.ToLower(address)

	f.mu.Lock()
	cached, ok := f.transfers[address]
	f.mu.Unlock()
	if ok {
		out := make([]domain.TransferRecord, len(cached))
		copy(out, cached)
		return out, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -f.historyDays)

	deep, err := f.fetchBothDirections(ctx, address, cutoff, 0)
	if err != nil {
		observability.RecordFetchError("transfers")
		return nil, fmt.Errorf("fetch transfers for %s: %w", address, err)
	}
	recent, err := f.fetchBothDirections(ctx, address, time.Time{}, f.recentLimit)
	if err != nil {
		observability.RecordFetchError("transfers")
		return nil, fmt.Errorf("fetch recent transfers for %s: %w", address, err)
	}

	merged := dedupeTransfers(append(deep, recent...))
	records := make([]domain.TransferRecord, 0, len(merged))
	for _, raw := range merged {
		record, err := f.normalize(ctx, raw)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	sortTransfersDesc(records)
	observability.DefaultMetrics.TransfersFetched.Add(float64(len(records)))

	f.mu.Lock()
	f.transfers[address] = records
	f.mu.Unlock()

	out := make([]domain.TransferRecord, len(records))
	copy(out, records)
	return out, nil
}

// FetchTransactions returns one TransactionRecord per distinct transaction
// hash in the wallet's transfer history, newest first. Gas fields are
// populated from receipts only for transactions the wallet sent; gas paid
// by other parties is not attributed to this wallet.
func (f *Fetcher) FetchTransactions(ctx context.Context, address string) ([]domain.TransactionRecord, error) {
	address = strings.ToLower(address)

	transfers, err := f.FetchTransfers(ctx, address)
	if err != nil {
		return nil, err
	}

	byHash := make(map[string]*domain.TransactionRecord)
	order := make([]string, 0)
	for _, tr := range transfers {
		tx, ok := byHash[tr.Hash]
		if !ok {
			tx = &domain.TransactionRecord{Hash: tr.Hash, Timestamp: tr.Timestamp}
			byHash[tr.Hash] = tx
			order = append(order, tr.Hash)
		}
		if tr.Timestamp.After(tx.Timestamp) {
			tx.Timestamp = tr.Timestamp
		}
		if tx.From == "" && tr.From != "" {
			tx.From = tr.From
		}
		if tx.To == "" && tr.To != "" {
			tx.To = tr.To
		}
		if tr.Native() && tx.Value.IsZero() {
			tx.Value = tr.Amount
		}
	}

	records := make([]domain.TransactionRecord, 0, len(order))
	for _, hash := range order {
		tx := byHash[hash]
		if tx.From == address {
			receipt, err := f.receipt(ctx, hash)
			if err != nil {
				return nil, fmt.Errorf("fetch receipt %s: %w", hash, err)
			}
			if receipt != nil {
				tx.GasUsed = receipt.GasUsed
				tx.GasPrice = receipt.EffectiveGasPrice
			}
		}
		records = append(records, *tx)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].Hash < records[j].Hash
	})
	return records, nil
}

// fetchBothDirections paginates outgoing then incoming transfers.
// A non-zero cutoff stops paging once a page's oldest entry predates it;
// a non-zero limit stops each direction at that many entries.
func (f *Fetcher) fetchBothDirections(ctx context.Context, address string, cutoff time.Time, limit int) ([]AssetTransfer, error) {
	var all []AssetTransfer
	for _, outgoing := range []bool{true, false} {
		transfers, err := f.fetchDirection(ctx, address, outgoing, cutoff, limit)
		if err != nil {
			return nil, err
		}
		all = append(all, transfers...)
	}
	return all, nil
}

func (f *Fetcher) fetchDirection(ctx context.Context, address string, outgoing bool, cutoff time.Time, limit int) ([]AssetTransfer, error) {
	var all []AssetTransfer
	pageKey := ""
	for {
		page, err := f.client.AssetTransfers(ctx, TransfersOpts{
			Address:  address,
			Outgoing: outgoing,
			PageKey:  pageKey,
		})
		if err != nil {
			return nil, err
		}
		observability.DefaultMetrics.TransferPagesRead.Inc()
		all = append(all, page.Transfers...)

		if limit > 0 && len(all) >= limit {
			all = all[:limit]
			break
		}
		if !cutoff.IsZero() && len(page.Transfers) > 0 {
			oldest := page.Transfers[len(page.Transfers)-1]
			if oldest.BlockTimestamp > 0 && time.Unix(oldest.BlockTimestamp, 0).Before(cutoff) {
				break
			}
		}
		if page.PageKey == "" {
			break
		}
		pageKey = page.PageKey
	}
	return all, nil
}

// normalize converts a raw provider transfer into a domain record,
// decoding the raw hex amount via token metadata when the provider did
// not decode the value itself.
func (f *Fetcher) normalize(ctx context.Context, raw AssetTransfer) (domain.TransferRecord, error) {
	record := domain.TransferRecord{
		Hash:            raw.Hash,
		UniqueID:        raw.UniqueID,
		Timestamp:       time.Unix(raw.BlockTimestamp, 0).UTC(),
		Asset:           raw.Asset,
		ContractAddress: raw.RawContract.Address,
		RawHint:         raw.Category,
		From:            raw.From,
		To:              raw.To,
	}
	if record.Asset == "" && record.Native() {
		record.Asset = NativeSymbol
	}

	switch {
	case raw.Value != nil:
		record.Amount = decimal.NewFromFloat(*raw.Value)
	case raw.RawContract.Value != "":
		amount, err := f.decodeRawAmount(ctx, raw)
		if err != nil {
			return domain.TransferRecord{}, err
		}
		record.Amount = amount
	}
	return record, nil
}

func (f *Fetcher) decodeRawAmount(ctx context.Context, raw AssetTransfer) (decimal.Decimal, error) {
	value, ok := new(big.Int).SetString(strings.TrimPrefix(raw.RawContract.Value, "0x"), 16)
	if !ok {
		return decimal.Zero, nil
	}

	decimals := 18
	if raw.RawContract.Decimal != "" {
		decimals = int(parseHexUint(raw.RawContract.Decimal))
	} else if raw.RawContract.Address != "" {
		meta, err := f.tokenMetadata(ctx, raw.RawContract.Address)
		if err != nil {
			return decimal.Zero, fmt.Errorf("fetch metadata %s: %w", raw.RawContract.Address, err)
		}
		if meta != nil {
			decimals = meta.Decimals
		}
	}
	return decimal.NewFromBigInt(value, -int32(decimals)), nil
}

func (f *Fetcher) receipt(ctx context.Context, hash string) (*Receipt, error) {
	f.mu.Lock()
	cached, ok := f.receipts[hash]
	f.mu.Unlock()
	if ok {
		return cached, nil
	}

	receipt, err := f.client.TransactionReceipt(ctx, hash)
	if err != nil {
		observability.RecordFetchError("receipt")
		return nil, err
	}
	observability.DefaultMetrics.ReceiptsFetched.Inc()
	if receipt != nil {
		f.mu.Lock()
		f.receipts[hash] = receipt
		f.mu.Unlock()
	}
	return receipt, nil
}

func (f *Fetcher) tokenMetadata(ctx context.Context, contract string) (*TokenMetadata, error) {
	f.mu.Lock()
	cached, ok := f.metadata[contract]
	f.mu.Unlock()
	if ok {
		return cached, nil
	}

	meta, err := f.client.TokenMetadata(ctx, contract)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		f.mu.Lock()
		f.metadata[contract] = meta
		f.mu.Unlock()
	}
	return meta, nil
}

// dedupeTransfers keeps the first entry per dedupe key.
func dedupeTransfers(transfers []AssetTransfer) []AssetTransfer {
	seen := make(map[string]struct{}, len(transfers))
	out := make([]AssetTransfer, 0, len(transfers))
	for _, tr := range transfers {
		key := tr.Hash + "::" + tr.UniqueID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tr)
	}
	return out
}

// sortTransfersDesc orders newest first with hash order breaking ties.
func sortTransfersDesc(records []domain.TransferRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		if records[i].Hash != records[j].Hash {
			return records[i].Hash < records[j].Hash
		}
		return records[i].UniqueID < records[j].UniqueID
	})
}
