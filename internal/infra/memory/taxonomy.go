package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dvloznov/finance-categorizer/internal/domain"
)

// TaxonomyStore keeps per-user category pairs in memory.
type TaxonomyStore struct {
	mu    sync.RWMutex
	pairs map[string][]domain.CategoryPair
}

// NewTaxonomyStore creates an empty store.
func NewTaxonomyStore() *TaxonomyStore {
	return &TaxonomyStore{pairs: make(map[string][]domain.CategoryPair)}
}

// Put adds pairs for userID, skipping pairs that already exist.
func (s *TaxonomyStore) Put(ctx context.Context, userID string, pairs []domain.CategoryPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.pairs[userID]
	for _, p := range pairs {
		if !slices.Contains(existing, p) {
			existing = append(existing, p)
		}
	}
	s.pairs[userID] = existing
	return nil
}

// Get returns the grouped taxonomy, or nil when the user has none.
func (s *TaxonomyStore) Get(ctx context.Context, userID string) (*domain.TaxonomyModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pairs, ok := s.pairs[userID]
	if !ok {
		return nil, nil
	}
	return domain.NewTaxonomyModel(userID, pairs), nil
}
