package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-feature-lab/internal/domain"
	"wallet-feature-lab/internal/storage"
)

// FeatureRecordStore is an in-memory implementation of storage.FeatureRecordStore.
type FeatureRecordStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*domain.WalletFeatureRecord // run_id -> wallet -> record
}

// NewFeatureRecordStore creates a new in-memory feature record store.
func NewFeatureRecordStore() *FeatureRecordStore {
	return &FeatureRecordStore{
		data: make(map[string]map[string]*domain.WalletFeatureRecord),
	}
}

// Insert adds one record. Returns ErrDuplicateKey if (run_id, wallet) exists.
func (s *FeatureRecordStore) Insert(_ context.Context, runID string, record *domain.WalletFeatureRecord) error {
	if runID == "" || record == nil || record.Wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.data[runID]
	if !ok {
		run = make(map[string]*domain.WalletFeatureRecord)
		s.data[runID] = run
	}
	if _, exists := run[record.Wallet]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *record
	run[record.Wallet] = &copy
	return nil
}

// InsertBulk adds a whole run atomically. Fails entire batch on any duplicate.
func (s *FeatureRecordStore) InsertBulk(_ context.Context, runID string, records []*domain.WalletFeatureRecord) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.data[runID]
	if !ok {
		run = make(map[string]*domain.WalletFeatureRecord)
		s.data[runID] = run
	}

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.Wallet == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := run[r.Wallet]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.Wallet]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.Wallet] = struct{}{}
	}

	for _, r := range records {
		copy := *r
		run[r.Wallet] = &copy
	}
	return nil
}

// GetByRun retrieves all records of a run, ordered by wallet ASC.
func (s *FeatureRecordStore) GetByRun(_ context.Context, runID string) ([]*domain.WalletFeatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run := s.data[runID]
	result := make([]*domain.WalletFeatureRecord, 0, len(run))
	for _, r := range run {
		copy := *r
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Wallet < result[j].Wallet
	})
	return result, nil
}

// GetByWallet retrieves one record. Returns ErrNotFound if not exists.
func (s *FeatureRecordStore) GetByWallet(_ context.Context, runID, wallet string) (*domain.WalletFeatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[runID][wallet]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *r
	return &copy, nil
}

var _ storage.FeatureRecordStore = (*FeatureRecordStore)(nil)
