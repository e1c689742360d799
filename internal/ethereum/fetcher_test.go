package ethereum_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wallet-feature-lab/internal/ethereum"
	"wallet-feature-lab/internal/ethereum/stub"
)

const wallet = "0x1111111111111111111111111111111111111111"

func float(v float64) *float64 { return &v }

func TestFetcherFetchTransfers(t *testing.T) {
	client := stub.NewRPCClient()
	now := time.Now().UTC()

	client.AddTransfer(ethereum.AssetTransfer{
		Hash: "0xaaa1", UniqueID: "0xaaa1:external",
		From: wallet, To: "0x2222222222222222222222222222222222222222",
		Value: float(1.5), Asset: "ETH", Category: "external",
		BlockTimestamp: now.Add(-time.Hour).Unix(),
	})
	client.AddTransfer(ethereum.AssetTransfer{
		Hash: "0xbbb2", UniqueID: "0xbbb2:log:0",
		From: "0x3333333333333333333333333333333333333333", To: wallet,
		Value: float(100), Asset: "USDC", Category: "erc20",
		RawContract:    ethereum.RawContract{Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"},
		BlockTimestamp: now.Add(-48 * time.Hour).Unix(),
	})

	fetcher := ethereum.NewFetcher(client, ethereum.FetcherOptions{})

	transfers, err := fetcher.FetchTransfers(context.Background(), wallet)
	if err != nil {
		t.Fatalf("FetchTransfers: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(transfers))
	}

	// Newest first
	if transfers[0].Hash != "0xaaa1" {
		t.Errorf("expected newest transfer first, got %s", transfers[0].Hash)
	}
	if !transfers[0].Native() {
		t.Errorf("expected ETH transfer to be native")
	}
	if transfers[1].Native() {
		t.Errorf("expected USDC transfer to be non-native")
	}
	if !transfers[0].Amount.Equal(decimal.NewFromFloat(1.5)) {
		t.Errorf("expected amount 1.5, got %s", transfers[0].Amount)
	}
}

func TestFetcherDeduplicatesAcrossDirections(t *testing.T) {
	client := stub.NewRPCClient()
	now := time.Now().UTC()

	// Self-transfer matches both the outgoing and the incoming fetch.
	client.AddTransfer(ethereum.AssetTransfer{
		Hash: "0xselfself", UniqueID: "0xselfself:external",
		From: wallet, To: wallet,
		Value: float(1), Asset: "ETH", Category: "external",
		BlockTimestamp: now.Add(-time.Hour).Unix(),
	})

	fetcher := ethereum.NewFetcher(client, ethereum.FetcherOptions{})

	transfers, err := fetcher.FetchTransfers(context.Background(), wallet)
	if err != nil {
		t.Fatalf("FetchTransfers: %v", err)
	}
	if len(transfers) != 1 {
		t.Errorf("expected deduplicated single transfer, got %d", len(transfers))
	}
}

func TestFetcherDecodesRawAmountWithMetadata(t *testing.T) {
	client := stub.NewRPCClient()
	now := time.Now().UTC()
	contract := "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"

	client.AddTransfer(ethereum.AssetTransfer{
		Hash: "0xccc3", UniqueID: "0xccc3:log:1",
		From: "0x3333333333333333333333333333333333333333", To: wallet,
		Asset: "USDC", Category: "erc20",
		// 2500000 raw units with 6 decimals = 2.5
		RawContract:    ethereum.RawContract{Address: contract, Value: "0x2625a0"},
		BlockTimestamp: now.Add(-time.Hour).Unix(),
	})
	client.Metadata[contract] = &ethereum.TokenMetadata{Symbol: "USDC", Decimals: 6}

	fetcher := ethereum.NewFetcher(client, ethereum.FetcherOptions{})

	transfers, err := fetcher.FetchTransfers(context.Background(), wallet)
	if err != nil {
		t.Fatalf("FetchTransfers: %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(transfers))
	}
	if !transfers[0].Amount.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("expected decoded amount 2.5, got %s", transfers[0].Amount)
	}
}

func TestFetcherFetchTransactions(t *testing.T) {
	client := stub.NewRPCClient()
	now := time.Now().UTC()
	other := "0x2222222222222222222222222222222222222222"

	// Outgoing tx: wallet pays gas.
	client.AddTransfer(ethereum.AssetTransfer{
		Hash: "0xaaa1", UniqueID: "0xaaa1:external",
		From: wallet, To: other,
		Value: float(1), Asset: "ETH", Category: "external",
		BlockTimestamp: now.Add(-time.Hour).Unix(),
	})
	client.AddReceipt(&ethereum.Receipt{
		TransactionHash: "0xaaa1", From: wallet, To: other,
		GasUsed: 21000, EffectiveGasPrice: 1000000000, Status: 1,
	})
	// Incoming tx: someone else pays gas.
	client.AddTransfer(ethereum.AssetTransfer{
		Hash: "0xbbb2", UniqueID: "0xbbb2:external",
		From: other, To: wallet,
		Value: float(2), Asset: "ETH", Category: "external",
		BlockTimestamp: now.Add(-2 * time.Hour).Unix(),
	})

	fetcher := ethereum.NewFetcher(client, ethereum.FetcherOptions{})

	txs, err := fetcher.FetchTransactions(context.Background(), wallet)
	if err != nil {
		t.Fatalf("FetchTransactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}

	if txs[0].Hash != "0xaaa1" {
		t.Errorf("expected newest transaction first, got %s", txs[0].Hash)
	}
	if txs[0].GasUsed != 21000 || txs[0].GasPrice != 1000000000 {
		t.Errorf("expected gas fields from receipt, got used=%d price=%d", txs[0].GasUsed, txs[0].GasPrice)
	}
	if txs[1].GasUsed != 0 {
		t.Errorf("incoming transaction must not attribute gas to wallet, got %d", txs[1].GasUsed)
	}
}

func TestFetcherPagination(t *testing.T) {
	client := stub.NewRPCClient()
	client.PageSize = 2
	now := time.Now().UTC()
	other := "0x2222222222222222222222222222222222222222"

	hashes := []string{"0xaaa1", "0xbbb2", "0xccc3", "0xddd4", "0xeee5"}
	for i, hash := range hashes {
		client.AddTransfer(ethereum.AssetTransfer{
			Hash: hash, UniqueID: hash + ":external",
			From: wallet, To: other,
			Value: float(1), Asset: "ETH", Category: "external",
			BlockTimestamp: now.Add(-time.Duration(i+1) * time.Hour).Unix(),
		})
	}

	fetcher := ethereum.NewFetcher(client, ethereum.FetcherOptions{})

	transfers, err := fetcher.FetchTransfers(context.Background(), wallet)
	if err != nil {
		t.Fatalf("FetchTransfers: %v", err)
	}
	if len(transfers) != len(hashes) {
		t.Errorf("expected %d transfers across pages, got %d", len(hashes), len(transfers))
	}
}

func TestFetcherMemoizesPerWallet(t *testing.T) {
	client := stub.NewRPCClient()
	now := time.Now().UTC()

	client.AddTransfer(ethereum.AssetTransfer{
		Hash: "0xaaa1", UniqueID: "0xaaa1:external",
		From: wallet, To: "0x2222222222222222222222222222222222222222",
		Value: float(1), Asset: "ETH", Category: "external",
		BlockTimestamp: now.Add(-time.Hour).Unix(),
	})

	fetcher := ethereum.NewFetcher(client, ethereum.FetcherOptions{})

	first, err := fetcher.FetchTransfers(context.Background(), wallet)
	if err != nil {
		t.Fatalf("FetchTransfers: %v", err)
	}

	// Mutating the stub after the first fetch must not change results.
	client.Transfers[wallet] = nil

	second, err := fetcher.FetchTransfers(context.Background(), wallet)
	if err != nil {
		t.Fatalf("FetchTransfers (cached): %v", err)
	}
	if len(first) != len(second) {
		t.Errorf("expected cached result, got %d then %d", len(first), len(second))
	}
}

func TestFetcherPropagatesProviderFailure(t *testing.T) {
	client := stub.NewRPCClient()
	client.FailAddresses[wallet] = true

	fetcher := ethereum.NewFetcher(client, ethereum.FetcherOptions{})

	if _, err := fetcher.FetchTransfers(context.Background(), wallet); err == nil {
		t.Fatal("expected provider failure to propagate")
	}
}
