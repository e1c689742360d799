package ethereum

import "context"

// RPCClient defines the Alchemy-flavoured Ethereum JSON-RPC interface.
type RPCClient interface {
	// AssetTransfers retrieves one page of asset transfers for an address.
	AssetTransfers(ctx context.Context, opts TransfersOpts) (*TransferPage, error)

	// TransactionReceipt retrieves a receipt by transaction hash.
	// Returns nil when the transaction is unknown.
	TransactionReceipt(ctx context.Context, hash string) (*Receipt, error)

	// TokenMetadata retrieves ERC-20 metadata for a contract address.
	// Returns nil when the provider has no metadata.
	TokenMetadata(ctx context.Context, contract string) (*TokenMetadata, error)

	// ResolveENS resolves an ENS name to a lowercase hex address.
	ResolveENS(ctx context.Context, name string) (string, error)
}

// TransfersOpts defines parameters for alchemy_getAssetTransfers.
type TransfersOpts struct {
	// Address is the wallet being queried.
	Address string
	// Outgoing selects fromAddress filtering; incoming otherwise.
	Outgoing bool
	// MaxCount is the page size (provider maximum 1000).
	MaxCount int
	// PageKey continues a previous page when non-empty.
	PageKey string
	// Categories restricts transfer categories; defaults to all.
	Categories []string
}

// TransferPage is one page of alchemy_getAssetTransfers results.
type TransferPage struct {
	Transfers []AssetTransfer
	PageKey   string
}

// AssetTransfer is a raw provider transfer entry.
type AssetTransfer struct {
	Hash     string
	UniqueID string
	From     string
	To       string
	// Value is the decoded amount in asset units; nil when the provider
	// could not decode it.
	Value *float64
	// Asset is the token symbol; empty when unknown.
	Asset string
	// Category is the provider hint (external, internal, erc20, ...).
	Category string
	// RawContract carries the undecoded contract-level view.
	RawContract RawContract
	// BlockTimestamp is the mined time; zero when metadata was absent.
	BlockTimestamp int64
}

// RawContract is the raw contract section of a transfer entry.
type RawContract struct {
	Address string
	// Value is the hex-encoded raw amount.
	Value string
	// Decimal is the hex-encoded decimal count.
	Decimal string
}

// Receipt holds the gas fields of eth_getTransactionReceipt.
type Receipt struct {
	TransactionHash   string
	From              string
	To                string
	GasUsed           uint64
	EffectiveGasPrice uint64
	Status            uint64
}

// TokenMetadata is the alchemy_getTokenMetadata result.
type TokenMetadata struct {
	Name     string
	Symbol   string
	Decimals int
	Logo     string
}
