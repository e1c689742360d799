package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"wallet-feature-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultNetwork     = "eth-mainnet"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultPageSize    = 100
)

// TransferCategories is the full set requested from the provider.
var TransferCategories = []string{"external", "internal", "erc20", "erc721", "erc1155", "specialnft"}

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// Endpoint builds the Alchemy HTTPS endpoint for a network and API key.
func Endpoint(network, apiKey string) string {
	return fmt.Sprintf("https://%s.g.alchemy.com/v2/%s", network, apiKey)
}

// NewHTTPClient creates a new Ethereum RPC HTTP client for the endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// AssetTransfers retrieves one page of transfers via alchemy_getAssetTransfers.
func (c *HTTPClient) AssetTransfers(ctx context.Context, opts TransfersOpts) (*TransferPage, error) {
	categories := opts.Categories
	if len(categories) == 0 {
		categories = TransferCategories
	}
	maxCount := opts.MaxCount
	if maxCount <= 0 {
		maxCount = DefaultPageSize
	}

	config := map[string]interface{}{
		"fromBlock":    "0x0",
		"category":     categories,
		"withMetadata": true,
		"maxCount":     "0x" + strconv.FormatInt(int64(maxCount), 16),
		"order":        "desc",
	}
	if opts.Outgoing {
		config["fromAddress"] = opts.Address
	} else {
		config["toAddress"] = opts.Address
	}
	if opts.PageKey != "" {
		config["pageKey"] = opts.PageKey
	}

	var result assetTransfersResult
	if err := c.call(ctx, "alchemy_getAssetTransfers", []interface{}{config}, &result); err != nil {
		return nil, err
	}

	page := &TransferPage{PageKey: result.PageKey}
	for _, raw := range result.Transfers {
		transfer := AssetTransfer{
			Hash:     strings.ToLower(raw.Hash),
			UniqueID: raw.UniqueID,
			From:     strings.ToLower(raw.From),
			To:       strings.ToLower(raw.To),
			Value:    raw.Value,
			Asset:    raw.Asset,
			Category: strings.ToLower(raw.Category),
			RawContract: RawContract{
				Address: strings.ToLower(raw.RawContract.Address),
				Value:   raw.RawContract.Value,
				Decimal: raw.RawContract.Decimal,
			},
		}
		if raw.Metadata.BlockTimestamp != "" {
			if ts, err := time.Parse(time.RFC3339, raw.Metadata.BlockTimestamp); err == nil {
				transfer.BlockTimestamp = ts.Unix()
			}
		}
		page.Transfers = append(page.Transfers, transfer)
	}

	return page, nil
}

// assetTransfersResult is the raw RPC response for alchemy_getAssetTransfers.
type assetTransfersResult struct {
	Transfers []rawAssetTransfer `json:"transfers"`
	PageKey   string             `json:"pageKey"`
}

type rawAssetTransfer struct {
	Hash        string          `json:"hash"`
	UniqueID    string          `json:"uniqueId"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Value       *float64        `json:"value"`
	Asset       string          `json:"asset"`
	Category    string          `json:"category"`
	RawContract rawContractJSON `json:"rawContract"`
	Metadata    struct {
		BlockTimestamp string `json:"blockTimestamp"`
	} `json:"metadata"`
}

type rawContractJSON struct {
	Address string `json:"address"`
	Value   string `json:"value"`
	Decimal string `json:"decimal"`
}

// TransactionReceipt retrieves a receipt via eth_getTransactionReceipt.
// Returns nil for unknown transactions.
func (c *HTTPClient) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	var result *receiptResult
	if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{hash}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	receipt := &Receipt{
		TransactionHash: strings.ToLower(result.TransactionHash),
		From:            strings.ToLower(result.From),
		To:              strings.ToLower(result.To),
	}
	receipt.GasUsed = parseHexUint(result.GasUsed)
	if result.EffectiveGasPrice != "" {
		receipt.EffectiveGasPrice = parseHexUint(result.EffectiveGasPrice)
	} else {
		receipt.EffectiveGasPrice = parseHexUint(result.GasPrice)
	}
	receipt.Status = parseHexUint(result.Status)

	return receipt, nil
}

// receiptResult is the raw RPC response for eth_getTransactionReceipt.
type receiptResult struct {
	TransactionHash   string `json:"transactionHash"`
	From              string `json:"from"`
	To                string `json:"to"`
	GasUsed           string `json:"gasUsed"`
	EffectiveGasPrice string `json:"effectiveGasPrice"`
	GasPrice          string `json:"gasPrice"`
	Status            string `json:"status"`
}

// TokenMetadata retrieves token metadata via alchemy_getTokenMetadata.
func (c *HTTPClient) TokenMetadata(ctx context.Context, contract string) (*TokenMetadata, error) {
	var result *tokenMetadataResult
	if err := c.call(ctx, "alchemy_getTokenMetadata", []interface{}{contract}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	meta := &TokenMetadata{
		Name:     result.Name,
		Symbol:   result.Symbol,
		Decimals: 18,
		Logo:     result.Logo,
	}
	if result.Decimals != nil {
		meta.Decimals = *result.Decimals
	}
	return meta, nil
}

type tokenMetadataResult struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals *int   `json:"decimals"`
	Logo     string `json:"logo"`
}

// ResolveENS resolves an ENS name via alchemy_getAddressFromENS.
func (c *HTTPClient) ResolveENS(ctx context.Context, name string) (string, error) {
	var result string
	if err := c.call(ctx, "alchemy_getAddressFromENS", []interface{}{name}, &result); err != nil {
		return "", err
	}
	if !strings.HasPrefix(result, "0x") {
		return "", fmt.Errorf("ENS name %q did not resolve", name)
	}
	return strings.ToLower(result), nil
}

// parseHexUint parses a 0x-prefixed quantity; malformed input yields 0.
func parseHexUint(s string) uint64 {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0
	}
	return v
}
