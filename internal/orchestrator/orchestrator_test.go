package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wallet-feature-lab/internal/domain"
	"wallet-feature-lab/internal/storage/memory"
)

// slowBuilder finishes wallets in reverse submission order to expose any
// ordering bugs in result collection.
type slowBuilder struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	delays      map[string]time.Duration
	fail        map[string]string
}

func (b *slowBuilder) Build(_ context.Context, wallet string, _ time.Time) domain.WalletFeatureRecord {
	b.mu.Lock()
	b.inFlight++
	if b.inFlight > b.maxInFlight {
		b.maxInFlight = b.inFlight
	}
	delay := b.delays[wallet]
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()

	if msg, ok := b.fail[wallet]; ok {
		return domain.ErrorFeatureRecord(wallet, msg)
	}
	record := domain.EmptyFeatureRecord(wallet)
	record.TxCount12M = 1
	return record
}

type stubTransferSource struct {
	transfers map[string][]domain.TransferRecord
	err       map[string]error
	calls     []string
}

func (s *stubTransferSource) FetchTransfers(_ context.Context, wallet string) ([]domain.TransferRecord, error) {
	s.calls = append(s.calls, wallet)
	if err := s.err[wallet]; err != nil {
		return nil, err
	}
	return s.transfers[wallet], nil
}

func TestRunPreservesInputOrder(t *testing.T) {
	wallets := []string{"0xaaa", "0xbbb", "0xccc", "0xddd"}

	// Earlier wallets finish last
	builder := &slowBuilder{
		delays: map[string]time.Duration{
			"0xaaa": 40 * time.Millisecond,
			"0xbbb": 30 * time.Millisecond,
			"0xccc": 20 * time.Millisecond,
			"0xddd": 10 * time.Millisecond,
		},
	}

	o, err := New(Options{Builder: builder, Concurrency: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := o.Run(context.Background(), "run-order", wallets)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Records) != len(wallets) {
		t.Fatalf("expected %d records, got %d", len(wallets), len(result.Records))
	}
	for i, wallet := range wallets {
		if result.Records[i].Wallet != wallet {
			t.Errorf("record %d: expected wallet %s, got %s", i, wallet, result.Records[i].Wallet)
		}
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var wallets []string
	delays := make(map[string]time.Duration)
	for i := 0; i < 12; i++ {
		w := fmt.Sprintf("0x%040d", i)
		wallets = append(wallets, w)
		delays[w] = 10 * time.Millisecond
	}

	builder := &slowBuilder{delays: delays}
	o, err := New(Options{Builder: builder, Concurrency: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := o.Run(context.Background(), "run-bound", wallets); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if builder.maxInFlight > 3 {
		t.Errorf("expected at most 3 concurrent builds, saw %d", builder.maxInFlight)
	}
}

func TestRunCountsErrorRecords(t *testing.T) {
	builder := &slowBuilder{
		fail: map[string]string{"0xbad": "fetch transfers: rate limited"},
	}
	o, err := New(Options{Builder: builder})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := o.Run(context.Background(), "run-errs", []string{"0xgood", "0xbad"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.WalletsProcessed != 2 {
		t.Errorf("expected 2 wallets processed, got %d", result.WalletsProcessed)
	}
	if result.ErrorRecords != 1 {
		t.Errorf("expected 1 error record, got %d", result.ErrorRecords)
	}
	if result.Records[1].Error != "fetch transfers: rate limited" {
		t.Errorf("unexpected error field: %q", result.Records[1].Error)
	}
	// Build failures are reported in the record, not the run errors
	if len(result.Errors) != 0 {
		t.Errorf("expected no run errors, got %v", result.Errors)
	}
}

func TestRunPersistsFeatureRecords(t *testing.T) {
	builder := &slowBuilder{}
	store := memory.NewFeatureRecordStore()

	o, err := New(Options{Builder: builder, FeatureStore: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = o.Run(context.Background(), "run-persist", []string{"0xbbb", "0xaaa"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored, err := store.GetByRun(context.Background(), "run-persist")
	if err != nil {
		t.Fatalf("GetByRun: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored records, got %d", len(stored))
	}

	// Rerunning the same run id is a no-op, not a failure
	if _, err := o.Run(context.Background(), "run-persist", []string{"0xbbb", "0xaaa"}); err != nil {
		t.Errorf("rerun of stored run id: %v", err)
	}
}

func TestRunArchivesTransfers(t *testing.T) {
	ts := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	source := &stubTransferSource{
		transfers: map[string][]domain.TransferRecord{
			"0xgood": {{
				Hash:      "0x1",
				Timestamp: ts,
				Asset:     "ETH",
				Amount:    decimal.NewFromInt(1),
				From:      "0xgood",
				To:        "0xother",
			}},
		},
	}
	archive := memory.NewTransferArchiveStore()
	builder := &slowBuilder{
		fail: map[string]string{"0xbad": "boom"},
	}

	o, err := New(Options{
		Builder:        builder,
		TransferStore:  archive,
		TransferSource: source,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := o.Run(context.Background(), "run-archive", []string{"0xgood", "0xbad"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Failed wallets are not archived
	if len(source.calls) != 1 || source.calls[0] != "0xgood" {
		t.Errorf("expected archive fetch only for 0xgood, got %v", source.calls)
	}

	archived, err := archive.GetByWallet(context.Background(), "0xgood")
	if err != nil {
		t.Fatalf("GetByWallet: %v", err)
	}
	if len(archived) != 1 || archived[0].Hash != "0x1" {
		t.Errorf("unexpected archived transfers: %v", archived)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no run errors, got %v", result.Errors)
	}

	// Re-archiving the same history is silently skipped
	if _, err := o.Run(context.Background(), "run-archive-2", []string{"0xgood"}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	archived, _ = archive.GetByWallet(context.Background(), "0xgood")
	if len(archived) != 1 {
		t.Errorf("expected 1 archived transfer after rerun, got %d", len(archived))
	}
}

func TestRunArchiveFetchFailureCollected(t *testing.T) {
	source := &stubTransferSource{
		err: map[string]error{"0xflaky": fmt.Errorf("rpc timeout")},
	}
	builder := &slowBuilder{}

	o, err := New(Options{
		Builder:        builder,
		TransferStore:  memory.NewTransferArchiveStore(),
		TransferSource: source,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := o.Run(context.Background(), "run-flaky", []string{"0xflaky"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "rpc timeout") {
		t.Errorf("expected archive error to be collected, got %v", result.Errors)
	}
	// Archive failures never poison the record itself
	if result.Records[0].Error != "" {
		t.Errorf("record error should stay empty, got %q", result.Records[0].Error)
	}
}

func TestRunEmptyWallets(t *testing.T) {
	o, err := New(Options{Builder: &slowBuilder{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := o.Run(context.Background(), "run-empty", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Records) != 0 || result.WalletsProcessed != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestNewRequiresBuilder(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error for missing builder")
	}
}

func TestRunRequiresRunID(t *testing.T) {
	o, err := New(Options{Builder: &slowBuilder{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := o.Run(context.Background(), "", []string{"0xaaa"}); err == nil {
		t.Error("expected error for empty run id")
	}
}
