package storage

import (
	"context"
	"time"

	"wallet-feature-lab/internal/domain"
)

// FeatureRecordStore provides access to computed wallet feature rows.
// Records are keyed by (run_id, wallet); one batch run produces one row
// per input wallet.
type FeatureRecordStore interface {
	// Insert adds one record. Returns ErrDuplicateKey if (run_id, wallet) exists.
	Insert(ctx context.Context, runID string, record *domain.WalletFeatureRecord) error

	// InsertBulk adds a whole run atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, runID string, records []*domain.WalletFeatureRecord) error

	// GetByRun retrieves all records of a run, ordered by wallet ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.WalletFeatureRecord, error)

	// GetByWallet retrieves one record. Returns ErrNotFound if not exists.
	GetByWallet(ctx context.Context, runID, wallet string) (*domain.WalletFeatureRecord, error)
}

// TransferArchiveStore provides an append-only archive of fetched
// transfers, kept for audit and replay of feature runs.
type TransferArchiveStore interface {
	// InsertBulk archives a wallet's transfers. Fails entire batch on
	// duplicate (wallet, hash, unique_id).
	InsertBulk(ctx context.Context, wallet string, transfers []*domain.TransferRecord) error

	// GetByWallet retrieves archived transfers, ordered by timestamp DESC.
	GetByWallet(ctx context.Context, wallet string) ([]*domain.TransferRecord, error)

	// GetByTimeRange retrieves archived transfers within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, wallet string, start, end time.Time) ([]*domain.TransferRecord, error)
}
