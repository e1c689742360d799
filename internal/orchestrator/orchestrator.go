// Package orchestrator coordinates batch feature runs.
// Flow: build features per wallet → persist records → archive transfers
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"wallet-feature-lab/internal/domain"
	"wallet-feature-lab/internal/observability"
	"wallet-feature-lab/internal/storage"
)

// DefaultConcurrency bounds how many wallets are processed at once.
const DefaultConcurrency = 10

// FeatureBuilder computes one wallet's feature record. Failures are
// reported through the record's Error field, never as a returned error.
type FeatureBuilder interface {
	Build(ctx context.Context, wallet string, now time.Time) domain.WalletFeatureRecord
}

// TransferSource exposes the fetched transfer history for archiving.
// Satisfied by ethereum.Fetcher, which memoizes per wallet so archiving
// reuses the build phase's fetch.
type TransferSource interface {
	FetchTransfers(ctx context.Context, wallet string) ([]domain.TransferRecord, error)
}

// Orchestrator runs feature extraction over a batch of wallets.
type Orchestrator struct {
	builder     FeatureBuilder
	concurrency int

	// Optional persistence
	featureStore   storage.FeatureRecordStore
	transferStore  storage.TransferArchiveStore
	transferSource TransferSource

	verbose bool
}

// Options for creating Orchestrator.
type Options struct {
	// Builder is required.
	Builder FeatureBuilder

	// Concurrency bounds parallel wallet processing. Defaults to DefaultConcurrency.
	Concurrency int

	// FeatureStore, when set, receives the computed records.
	FeatureStore storage.FeatureRecordStore

	// TransferStore and TransferSource, when both set, archive each
	// wallet's fetched transfers after a successful build.
	TransferStore  storage.TransferArchiveStore
	TransferSource TransferSource

	Verbose bool
}

// New creates a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Builder == nil {
		return nil, errors.New("orchestrator: builder is required")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Orchestrator{
		builder:        opts.Builder,
		concurrency:    concurrency,
		featureStore:   opts.FeatureStore,
		transferStore:  opts.TransferStore,
		transferSource: opts.TransferSource,
		verbose:        opts.Verbose,
	}, nil
}

// RunResult contains results from one batch run.
type RunResult struct {
	RunID            string
	WalletsProcessed int
	ErrorRecords     int

	// Records holds one record per input wallet, in input order.
	Records []domain.WalletFeatureRecord

	// Errors collects persistence failures. Build failures are not
	// listed here, they live in the records' Error fields.
	Errors []string
}

// Run computes feature records for all wallets. Every wallet gets exactly
// one record at the same index as its input position. All wallets share a
// single reference instant taken at the start of the run.
func (o *Orchestrator) Run(ctx context.Context, runID string, wallets []string) (*RunResult, error) {
	if runID == "" {
		return nil, errors.New("orchestrator: run id is required")
	}

	now := time.Now().UTC()
	result := &RunResult{
		RunID:   runID,
		Records: make([]domain.WalletFeatureRecord, len(wallets)),
	}

	o.log("Run %s: processing %d wallets (concurrency %d)", runID, len(wallets), o.concurrency)

	if len(wallets) == 0 {
		return result, nil
	}

	// Phase 1: build features, bounded by a semaphore
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup
	for i, wallet := range wallets {
		wg.Add(1)
		go func(idx int, w string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			result.Records[idx] = o.builder.Build(ctx, w, now)
			observability.DefaultMetrics.WalletBuildDuration.Observe(time.Since(start).Seconds())
			observability.RecordWalletProcessed()
		}(i, wallet)
	}
	wg.Wait()

	result.WalletsProcessed = len(wallets)
	for i := range result.Records {
		if result.Records[i].Error != "" {
			result.ErrorRecords++
			observability.RecordErrorRecord()
		}
	}
	o.log("  Built %d records (%d with errors)", result.WalletsProcessed, result.ErrorRecords)

	// Phase 2: persist feature records
	if o.featureStore != nil {
		o.log("Persisting %d feature records...", len(result.Records))
		if err := o.persistRecords(ctx, runID, result); err != nil {
			return nil, fmt.Errorf("persist feature records: %w", err)
		}
	}

	// Phase 3: archive transfers
	if o.transferStore != nil && o.transferSource != nil {
		o.log("Archiving transfers...")
		o.archiveTransfers(ctx, wallets, result)
	}

	o.log("Run %s completed: %d wallets, %d errors", runID, result.WalletsProcessed, result.ErrorRecords)

	return result, nil
}

// persistRecords stores the batch. A duplicate run is not an error, reruns
// over an already stored run id are skipped.
func (o *Orchestrator) persistRecords(ctx context.Context, runID string, result *RunResult) error {
	records := make([]*domain.WalletFeatureRecord, len(result.Records))
	for i := range result.Records {
		records[i] = &result.Records[i]
	}

	err := o.featureStore.InsertBulk(ctx, runID, records)
	if errors.Is(err, storage.ErrDuplicateKey) {
		o.log("  Run %s already stored, skipping", runID)
		return nil
	}
	return err
}

// archiveTransfers archives each successfully built wallet's history.
// Archive failures don't fail the run, they are collected in Errors.
func (o *Orchestrator) archiveTransfers(ctx context.Context, wallets []string, result *RunResult) {
	for i, wallet := range wallets {
		if result.Records[i].Error != "" {
			continue
		}

		transfers, err := o.transferSource.FetchTransfers(ctx, wallet)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("archive %s: fetch transfers: %v", wallet, err))
			continue
		}
		if len(transfers) == 0 {
			continue
		}

		batch := make([]*domain.TransferRecord, len(transfers))
		for j := range transfers {
			batch[j] = &transfers[j]
		}
		err = o.transferStore.InsertBulk(ctx, wallet, batch)
		if err != nil {
			// Already archived from an earlier run
			if errors.Is(err, storage.ErrDuplicateKey) {
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("archive %s: %v", wallet, err))
		}
	}
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		log.Printf("[orchestrator] "+format, args...)
	}
}
