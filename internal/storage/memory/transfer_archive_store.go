package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"wallet-feature-lab/internal/domain"
	"wallet-feature-lab/internal/storage"
)

// TransferArchiveStore is an in-memory implementation of storage.TransferArchiveStore.
type TransferArchiveStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*domain.TransferRecord // wallet -> dedupe key -> record
}

// NewTransferArchiveStore creates a new in-memory transfer archive store.
func NewTransferArchiveStore() *TransferArchiveStore {
	return &TransferArchiveStore{
		data: make(map[string]map[string]*domain.TransferRecord),
	}
}

// InsertBulk archives a wallet's transfers. Fails entire batch on duplicate.
func (s *TransferArchiveStore) InsertBulk(_ context.Context, wallet string, transfers []*domain.TransferRecord) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}
	if len(transfers) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	archive, ok := s.data[wallet]
	if !ok {
		archive = make(map[string]*domain.TransferRecord)
		s.data[wallet] = archive
	}

	batchKeys := make(map[string]struct{}, len(transfers))
	for _, tr := range transfers {
		if tr == nil || tr.Hash == "" {
			return storage.ErrInvalidInput
		}
		key := tr.Key()
		if _, exists := archive[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, tr := range transfers {
		copy := *tr
		archive[tr.Key()] = &copy
	}
	return nil
}

// GetByWallet retrieves archived transfers, ordered by timestamp DESC.
func (s *TransferArchiveStore) GetByWallet(_ context.Context, wallet string) ([]*domain.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	archive := s.data[wallet]
	result := make([]*domain.TransferRecord, 0, len(archive))
	for _, tr := range archive {
		copy := *tr
		result = append(result, &copy)
	}

	sortArchiveDesc(result)
	return result, nil
}

// GetByTimeRange retrieves archived transfers within [start, end] (inclusive).
func (s *TransferArchiveStore) GetByTimeRange(_ context.Context, wallet string, start, end time.Time) ([]*domain.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransferRecord
	for _, tr := range s.data[wallet] {
		if tr.Timestamp.Before(start) || tr.Timestamp.After(end) {
			continue
		}
		copy := *tr
		result = append(result, &copy)
	}

	sortArchiveDesc(result)
	return result, nil
}

func sortArchiveDesc(transfers []*domain.TransferRecord) {
	sort.Slice(transfers, func(i, j int) bool {
		if !transfers[i].Timestamp.Equal(transfers[j].Timestamp) {
			return transfers[i].Timestamp.After(transfers[j].Timestamp)
		}
		return transfers[i].Key() < transfers[j].Key()
	})
}

var _ storage.TransferArchiveStore = (*TransferArchiveStore)(nil)
