package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"wallet-feature-lab/internal/domain"
	"wallet-feature-lab/internal/observability"
	"wallet-feature-lab/internal/storage"
)

// TransferArchiveStore implements storage.TransferArchiveStore using ClickHouse.
// Amounts are stored as strings to keep full decimal precision.
type TransferArchiveStore struct {
	conn *Conn
}

// NewTransferArchiveStore creates a new TransferArchiveStore.
func NewTransferArchiveStore(conn *Conn) *TransferArchiveStore {
	return &TransferArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransferArchiveStore = (*TransferArchiveStore)(nil)

// InsertBulk archives a wallet's transfers. Fails entire batch on
// duplicate (wallet, hash, unique_id).
func (s *TransferArchiveStore) InsertBulk(ctx context.Context, wallet string, transfers []*domain.TransferRecord) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_bulk", time.Since(start).Seconds(), err)
	}()

	if wallet == "" {
		return storage.ErrInvalidInput
	}
	if len(transfers) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(transfers))
	for _, tr := range transfers {
		if tr == nil || tr.Hash == "" {
			return storage.ErrInvalidInput
		}
		k := tr.Key()
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows.
	// ClickHouse MergeTree doesn't enforce uniqueness at insert time.
	for _, tr := range transfers {
		exists, err := s.exists(ctx, wallet, tr.Hash, tr.UniqueID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO transfer_archive (
			wallet, hash, unique_id, ts, asset, contract_address,
			amount, raw_hint, from_address, to_address
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, tr := range transfers {
		err = batch.Append(
			wallet, tr.Hash, tr.UniqueID, tr.Timestamp.UTC(), tr.Asset, tr.ContractAddress,
			tr.Amount.String(), tr.RawHint, tr.From, tr.To,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByWallet retrieves archived transfers, ordered by timestamp DESC.
func (s *TransferArchiveStore) GetByWallet(ctx context.Context, wallet string) ([]*domain.TransferRecord, error) {
	query := `
		SELECT hash, unique_id, ts, asset, contract_address,
		       amount, raw_hint, from_address, to_address
		FROM transfer_archive
		WHERE wallet = ?
		ORDER BY ts DESC, hash ASC, unique_id ASC
	`

	rows, err := s.conn.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("query by wallet: %w", err)
	}
	defer rows.Close()

	return scanTransferArchive(rows)
}

// GetByTimeRange retrieves archived transfers within [start, end] (inclusive).
func (s *TransferArchiveStore) GetByTimeRange(ctx context.Context, wallet string, start, end time.Time) ([]*domain.TransferRecord, error) {
	query := `
		SELECT hash, unique_id, ts, asset, contract_address,
		       amount, raw_hint, from_address, to_address
		FROM transfer_archive
		WHERE wallet = ? AND ts >= ? AND ts <= ?
		ORDER BY ts DESC, hash ASC, unique_id ASC
	`

	rows, err := s.conn.Query(ctx, query, wallet, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanTransferArchive(rows)
}

// exists checks if a transfer with the given key exists.
func (s *TransferArchiveStore) exists(ctx context.Context, wallet, hash, uniqueID string) (bool, error) {
	query := `
		SELECT count(*) FROM transfer_archive
		WHERE wallet = ? AND hash = ? AND unique_id = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, wallet, hash, uniqueID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanTransferArchive scans multiple rows into a slice of TransferRecord.
func scanTransferArchive(rows chRows) ([]*domain.TransferRecord, error) {
	var transfers []*domain.TransferRecord

	for rows.Next() {
		var tr domain.TransferRecord
		var ts time.Time
		var amount string

		err := rows.Scan(
			&tr.Hash, &tr.UniqueID, &ts, &tr.Asset, &tr.ContractAddress,
			&amount, &tr.RawHint, &tr.From, &tr.To,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transfer archive row: %w", err)
		}

		tr.Timestamp = ts.UTC()
		tr.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse archived amount %q: %w", amount, err)
		}
		transfers = append(transfers, &tr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer archive rows: %w", err)
	}

	return transfers, nil
}
