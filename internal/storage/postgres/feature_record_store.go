package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"wallet-feature-lab/internal/domain"
	"wallet-feature-lab/internal/observability"
	"wallet-feature-lab/internal/storage"
)

// FeatureRecordStore implements storage.FeatureRecordStore using PostgreSQL.
type FeatureRecordStore struct {
	pool *Pool
}

// NewFeatureRecordStore creates a new FeatureRecordStore.
func NewFeatureRecordStore(pool *Pool) *FeatureRecordStore {
	return &FeatureRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeatureRecordStore = (*FeatureRecordStore)(nil)

const featureRecordInsertQuery = `
	INSERT INTO feature_records (
		run_id, wallet,
		tx_count_1m, tx_count_3m, tx_count_6m, tx_count_12m, monthly_tx_avg,
		volume_1m, volume_3m, volume_6m, volume_12m, monthly_volume_avg,
		last_tx_time, hours_between_last_two,
		categories, tx_types, gas_fee_usd, error
	) VALUES (
		$1, $2,
		$3, $4, $5, $6, $7,
		$8, $9, $10, $11, $12,
		$13, $14,
		$15, $16, $17, $18
	)
`

const featureRecordSelectColumns = `
	wallet,
	tx_count_1m, tx_count_3m, tx_count_6m, tx_count_12m, monthly_tx_avg,
	volume_1m, volume_3m, volume_6m, volume_12m, monthly_volume_avg,
	last_tx_time, hours_between_last_two,
	categories, tx_types, gas_fee_usd, error
`

// Insert adds one record. Returns ErrDuplicateKey if (run_id, wallet) exists.
func (s *FeatureRecordStore) Insert(ctx context.Context, runID string, record *domain.WalletFeatureRecord) error {
	if runID == "" || record == nil || record.Wallet == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, featureRecordInsertQuery, insertArgs(runID, record)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert feature record: %w", err)
	}
	return nil
}

// InsertBulk adds a whole run atomically. Fails entire batch on any duplicate.
func (s *FeatureRecordStore) InsertBulk(ctx context.Context, runID string, records []*domain.WalletFeatureRecord) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "insert_bulk", time.Since(start).Seconds(), err)
	}()

	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		if r == nil || r.Wallet == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, featureRecordInsertQuery, insertArgs(runID, r)...)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert feature record in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByRun retrieves all records of a run, ordered by wallet ASC.
func (s *FeatureRecordStore) GetByRun(ctx context.Context, runID string) (records []*domain.WalletFeatureRecord, err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "get_by_run", time.Since(start).Seconds(), err)
	}()

	query := `
		SELECT ` + featureRecordSelectColumns + `
		FROM feature_records
		WHERE run_id = $1
		ORDER BY wallet ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get feature records by run: %w", err)
	}
	defer rows.Close()

	return scanFeatureRecords(rows)
}

// GetByWallet retrieves one record. Returns ErrNotFound if not exists.
func (s *FeatureRecordStore) GetByWallet(ctx context.Context, runID, wallet string) (*domain.WalletFeatureRecord, error) {
	query := `
		SELECT ` + featureRecordSelectColumns + `
		FROM feature_records
		WHERE run_id = $1 AND wallet = $2
	`

	row := s.pool.QueryRow(ctx, query, runID, wallet)
	r, err := scanFeatureRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get feature record by wallet: %w", err)
	}
	return r, nil
}

func insertArgs(runID string, r *domain.WalletFeatureRecord) []any {
	return []any{
		runID, r.Wallet,
		r.TxCount1M, r.TxCount3M, r.TxCount6M, r.TxCount12M, r.MonthlyTxAvg,
		r.Volume1M, r.Volume3M, r.Volume6M, r.Volume12M, r.MonthlyVolumeAvg,
		r.LastTxTime, r.HoursBetweenLastTwo,
		r.Categories, r.TxTypes, r.GasFeeUSD, r.Error,
	}
}

// scanFeatureRecord scans a single row into a WalletFeatureRecord.
func scanFeatureRecord(row pgx.Row) (*domain.WalletFeatureRecord, error) {
	var r domain.WalletFeatureRecord

	err := row.Scan(
		&r.Wallet,
		&r.TxCount1M, &r.TxCount3M, &r.TxCount6M, &r.TxCount12M, &r.MonthlyTxAvg,
		&r.Volume1M, &r.Volume3M, &r.Volume6M, &r.Volume12M, &r.MonthlyVolumeAvg,
		&r.LastTxTime, &r.HoursBetweenLastTwo,
		&r.Categories, &r.TxTypes, &r.GasFeeUSD, &r.Error,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// scanFeatureRecords scans multiple rows into a slice of WalletFeatureRecord.
func scanFeatureRecords(rows pgx.Rows) ([]*domain.WalletFeatureRecord, error) {
	var records []*domain.WalletFeatureRecord

	for rows.Next() {
		var r domain.WalletFeatureRecord

		err := rows.Scan(
			&r.Wallet,
			&r.TxCount1M, &r.TxCount3M, &r.TxCount6M, &r.TxCount12M, &r.MonthlyTxAvg,
			&r.Volume1M, &r.Volume3M, &r.Volume6M, &r.Volume12M, &r.MonthlyVolumeAvg,
			&r.LastTxTime, &r.HoursBetweenLastTwo,
			&r.Categories, &r.TxTypes, &r.GasFeeUSD, &r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan feature record row: %w", err)
		}

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature record rows: %w", err)
	}

	return records, nil
}
