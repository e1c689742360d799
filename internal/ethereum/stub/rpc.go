package stub

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"wallet-feature-lab/internal/ethereum"
)

// ErrUnavailable simulates a provider failure.
var ErrUnavailable = errors.New("provider unavailable")

// RPCClient implements ethereum.RPCClient for testing.
type RPCClient struct {
	Transfers map[string][]ethereum.AssetTransfer
	Receipts  map[string]*ethereum.Receipt
	Metadata  map[string]*ethereum.TokenMetadata
	ENS       map[string]string

	// FailAddresses forces AssetTransfers errors for these wallets.
	FailAddresses map[string]bool

	// PageSize splits transfer results into pages when > 0.
	PageSize int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transfers:     make(map[string][]ethereum.AssetTransfer),
		Receipts:      make(map[string]*ethereum.Receipt),
		Metadata:      make(map[string]*ethereum.TokenMetadata),
		ENS:           make(map[string]string),
		FailAddresses: make(map[string]bool),
	}
}

// AssetTransfers returns the stubbed transfers matching the direction filter.
func (c *RPCClient) AssetTransfers(_ context.Context, opts ethereum.TransfersOpts) (*ethereum.TransferPage, error) {
	address := strings.ToLower(opts.Address)
	if c.FailAddresses[address] {
		return nil, ErrUnavailable
	}

	var matched []ethereum.AssetTransfer
	for _, tr := range c.Transfers[address] {
		if opts.Outgoing && tr.From == address {
			matched = append(matched, tr)
		}
		if !opts.Outgoing && tr.To == address {
			matched = append(matched, tr)
		}
	}

	if c.PageSize <= 0 {
		return &ethereum.TransferPage{Transfers: matched}, nil
	}

	start := 0
	if opts.PageKey != "" {
		start = parsePageKey(opts.PageKey)
	}
	if start >= len(matched) {
		return &ethereum.TransferPage{}, nil
	}
	end := start + c.PageSize
	pageKey := ""
	if end < len(matched) {
		pageKey = formatPageKey(end)
	} else {
		end = len(matched)
	}
	return &ethereum.TransferPage{Transfers: matched[start:end], PageKey: pageKey}, nil
}

// TransactionReceipt returns a stubbed receipt or nil.
func (c *RPCClient) TransactionReceipt(_ context.Context, hash string) (*ethereum.Receipt, error) {
	return c.Receipts[strings.ToLower(hash)], nil
}

// TokenMetadata returns stubbed metadata or nil.
func (c *RPCClient) TokenMetadata(_ context.Context, contract string) (*ethereum.TokenMetadata, error) {
	return c.Metadata[strings.ToLower(contract)], nil
}

// ResolveENS resolves a stubbed ENS name.
func (c *RPCClient) ResolveENS(_ context.Context, name string) (string, error) {
	address, ok := c.ENS[strings.ToLower(name)]
	if !ok {
		return "", errors.New("ENS name not found")
	}
	return address, nil
}

// AddTransfer registers a transfer under both endpoint addresses.
func (c *RPCClient) AddTransfer(tr ethereum.AssetTransfer) {
	if tr.From != "" {
		c.Transfers[tr.From] = append(c.Transfers[tr.From], tr)
	}
	if tr.To != "" && tr.To != tr.From {
		c.Transfers[tr.To] = append(c.Transfers[tr.To], tr)
	}
}

// AddReceipt registers a receipt by transaction hash.
func (c *RPCClient) AddReceipt(r *ethereum.Receipt) {
	c.Receipts[strings.ToLower(r.TransactionHash)] = r
}

var _ ethereum.RPCClient = (*RPCClient)(nil)

func parsePageKey(key string) int {
	n, err := strconv.Atoi(key)
	if err != nil {
		return 0
	}
	return n
}

func formatPageKey(n int) string {
	return strconv.Itoa(n)
}
