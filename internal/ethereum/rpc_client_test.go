package ethereum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPClient_AssetTransfers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		if req.Method != "alchemy_getAssetTransfers" {
			t.Errorf("expected method alchemy_getAssetTransfers, got %s", req.Method)
		}
		config, ok := req.Params[0].(map[string]interface{})
		if !ok {
			t.Fatalf("expected params object, got %T", req.Params[0])
		}
		if config["fromAddress"] != "0xabc" {
			t.Errorf("expected fromAddress 0xabc, got %v", config["fromAddress"])
		}
		if config["withMetadata"] != true {
			t.Errorf("expected withMetadata true")
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]interface{}{
				"pageKey": "next-page",
				"transfers": []map[string]interface{}{
					{
						"hash":     "0xAAA1",
						"uniqueId": "0xaaa1:log:0",
						"from":     "0xABC",
						"to":       "0xDEF",
						"value":    1.5,
						"asset":    "ETH",
						"category": "external",
						"rawContract": map[string]interface{}{
							"value":   "0x14d1120d7b160000",
							"address": nil,
							"decimal": "0x12",
						},
						"metadata": map[string]interface{}{
							"blockTimestamp": "2026-03-15T12:00:00Z",
						},
					},
				},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	page, err := client.AssetTransfers(ctx, TransfersOpts{Address: "0xabc", Outgoing: true})
	if err != nil {
		t.Fatalf("AssetTransfers: %v", err)
	}

	if page.PageKey != "next-page" {
		t.Errorf("expected pageKey next-page, got %s", page.PageKey)
	}
	if len(page.Transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(page.Transfers))
	}

	tr := page.Transfers[0]
	if tr.Hash != "0xaaa1" {
		t.Errorf("expected lowercased hash, got %s", tr.Hash)
	}
	if tr.From != "0xabc" || tr.To != "0xdef" {
		t.Errorf("expected lowercased addresses, got %s / %s", tr.From, tr.To)
	}
	if tr.Value == nil || *tr.Value != 1.5 {
		t.Errorf("expected value 1.5, got %v", tr.Value)
	}
	want := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC).Unix()
	if tr.BlockTimestamp != want {
		t.Errorf("expected timestamp %d, got %d", want, tr.BlockTimestamp)
	}
}

func TestHTTPClient_TransactionReceipt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		if req.Method != "eth_getTransactionReceipt" {
			t.Errorf("expected method eth_getTransactionReceipt, got %s", req.Method)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]interface{}{
				"transactionHash":   "0xAAA1",
				"from":              "0xabc",
				"to":                "0xdef",
				"gasUsed":           "0x5208",
				"effectiveGasPrice": "0x3b9aca00",
				"status":            "0x1",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	receipt, err := client.TransactionReceipt(context.Background(), "0xaaa1")
	if err != nil {
		t.Fatalf("TransactionReceipt: %v", err)
	}
	if receipt == nil {
		t.Fatal("expected receipt, got nil")
	}
	if receipt.GasUsed != 21000 {
		t.Errorf("expected gasUsed 21000, got %d", receipt.GasUsed)
	}
	if receipt.EffectiveGasPrice != 1000000000 {
		t.Errorf("expected effectiveGasPrice 1 gwei, got %d", receipt.EffectiveGasPrice)
	}
	if receipt.Status != 1 {
		t.Errorf("expected status 1, got %d", receipt.Status)
	}
}

func TestHTTPClient_TransactionReceiptUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": nil}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	receipt, err := client.TransactionReceipt(context.Background(), "0xunknown")
	if err != nil {
		t.Fatalf("TransactionReceipt: %v", err)
	}
	if receipt != nil {
		t.Errorf("expected nil receipt for unknown hash, got %+v", receipt)
	}
}

func TestHTTPClient_ResolveENS(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Method != "alchemy_getAddressFromENS" {
			t.Errorf("expected method alchemy_getAddressFromENS, got %s", req.Method)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0xD8dA6BF26964aF9D7eEd9e03E53415D37aA96045",
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	address, err := client.ResolveENS(context.Background(), "vitalik.eth")
	if err != nil {
		t.Fatalf("ResolveENS: %v", err)
	}
	if address != "0xd8da6bf26964af9d7eed9e03e53415d37aa96045" {
		t.Errorf("expected lowercased address, got %s", address)
	}
}

func TestHTTPClient_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0x1"}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithMaxRetries(2), WithRetryDelay(time.Millisecond))

	_, err := client.ResolveENS(context.Background(), "vitalik.eth")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		calls.Add(1)
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32602, "message": "invalid params"},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond))

	_, err := client.AssetTransfers(context.Background(), TransfersOpts{Address: "bad"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("RPC errors must not be retried, got %d calls", calls.Load())
	}
}

func TestParseHexUint(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"0x5208", 21000},
		{"0x0", 0},
		{"0x", 0},
		{"", 0},
		{"garbage", 0},
	}
	for _, tc := range cases {
		if got := parseHexUint(tc.in); got != tc.want {
			t.Errorf("parseHexUint(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
