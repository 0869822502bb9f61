package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/finance-categorizer/internal/domain"
)

// RecordStore is an in-memory RecordStore.
// It is safe for concurrent use. Data is lost on restart.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]*domain.TransactionRecord
	now     func() time.Time
}

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[string]*domain.TransactionRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PutBatch inserts records whose id is not stored yet. Existing records are
// left untouched, so a re-delivered batch never regresses a status. Records
// without an id fail and are reported, the rest of the batch is still stored.
func (s *RecordStore) PutBatch(ctx context.Context, records []*domain.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []string
	for i, r := range records {
		if r == nil || r.TransactionID == "" {
			failed = append(failed, fmt.Sprintf("#%d", i))
			continue
		}
		if _, exists := s.records[r.TransactionID]; exists {
			continue
		}
		s.records[r.TransactionID] = r.Clone()
	}

	if len(failed) > 0 {
		return domain.NewPersistenceError(failed, fmt.Errorf("records without transaction_id"))
	}
	return nil
}

// Get returns a copy of the record.
func (s *RecordStore) Get(ctx context.Context, transactionID string) (*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[transactionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, transactionID)
	}
	return r.Clone(), nil
}

// FindByUserAndStatus returns matching records ordered by date#transaction_id.
func (s *RecordStore) FindByUserAndStatus(ctx context.Context, userID string, status domain.Status) ([]*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransactionRecord
	for _, r := range s.records {
		if r.UserID == userID && r.Status == status {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SortKey() < result[j].SortKey()
	})
	return result, nil
}

// UpdateStatus applies u atomically if the record exists and is not terminal.
func (s *RecordStore) UpdateStatus(ctx context.Context, u domain.StatusUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[u.TransactionID]
	if !ok {
		return fmt.Errorf("%w: %w: %s", domain.ErrStaleTransition, domain.ErrRecordNotFound, u.TransactionID)
	}
	return r.Apply(u, s.now())
}
