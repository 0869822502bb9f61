package sqlite

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaxonomyStore keeps per-user category pairs in the categories table.
type TaxonomyStore struct {
	db *gorm.DB
}

// Get returns the user's taxonomy in insertion order, or nil when the user
// has no rows.
func (s *TaxonomyStore) Get(ctx context.Context, userID string) (*domain.TaxonomyModel, error) {
	var rows []categoryModel
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: TaxonomyStore.Get: %w", domain.ErrTaxonomyUnavailable, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	pairs := make([]domain.CategoryPair, 0, len(rows))
	for _, r := range rows {
		pairs = append(pairs, domain.CategoryPair{Category: r.Category, Subcategory: r.Subcategory})
	}
	return domain.NewTaxonomyModel(userID, pairs), nil
}

// Put adds pairs for userID, skipping pairs that already exist.
func (s *TaxonomyStore) Put(ctx context.Context, userID string, pairs []domain.CategoryPair) error {
	if len(pairs) == 0 {
		return nil
	}

	rows := make([]categoryModel, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, categoryModel{UserID: userID, Category: p.Category, Subcategory: p.Subcategory})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("TaxonomyStore.Put: %w", err)
	}
	return nil
}
