// Package reporting renders feature runs as CSV and Markdown outputs.
package reporting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"wallet-feature-lab/internal/domain"
	"wallet-feature-lab/internal/storage"
)

// Report is the assembled output of one feature run.
type Report struct {
	RunID       string
	GeneratedAt time.Time

	// Records in input-wallet order (or wallet ASC when loaded from a store).
	Records []domain.WalletFeatureRecord

	// Errors holds persistence failures collected during the run.
	Errors []string

	Summary Summary
}

// Summary aggregates a run for the Markdown header.
type Summary struct {
	TotalWallets  int
	ErrorRecords  int
	ActiveWallets int // wallets with at least one tx in the last 12 months
	TotalVolume   decimal.Decimal
	TotalGasFee   decimal.Decimal
}

// BuildReport assembles a report from in-memory run output.
func BuildReport(runID string, records []domain.WalletFeatureRecord, runErrors []string, generatedAt time.Time) *Report {
	return &Report{
		RunID:       runID,
		GeneratedAt: generatedAt,
		Records:     records,
		Errors:      runErrors,
		Summary:     summarize(records),
	}
}

// Generator produces reports from stored feature records.
type Generator struct {
	featureStore storage.FeatureRecordStore
	now          func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(featureStore storage.FeatureRecordStore) *Generator {
	return &Generator{
		featureStore: featureStore,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate loads a stored run and assembles its report.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	stored, err := g.featureStore.GetByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	records := make([]domain.WalletFeatureRecord, len(stored))
	for i, r := range stored {
		records[i] = *r
	}

	return BuildReport(runID, records, nil, g.now()), nil
}

func summarize(records []domain.WalletFeatureRecord) Summary {
	s := Summary{TotalWallets: len(records)}
	for i := range records {
		r := &records[i]
		if r.Error != "" {
			s.ErrorRecords++
			continue
		}
		if r.TxCount12M > 0 {
			s.ActiveWallets++
		}
		s.TotalVolume = s.TotalVolume.Add(r.Volume12M)
		s.TotalGasFee = s.TotalGasFee.Add(r.GasFeeUSD)
	}
	return s
}
