package mongo

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type categoryDoc struct {
	UserID      string `bson:"user_id"`
	Category    string `bson:"category"`
	Subcategory string `bson:"subcategory"`
}

// TaxonomyStore reads one document per (user, category, subcategory).
type TaxonomyStore struct {
	coll Collection
}

// NewTaxonomyStore creates a store over coll.
func NewTaxonomyStore(coll Collection) *TaxonomyStore {
	return &TaxonomyStore{coll: coll}
}

// Get returns the user's taxonomy, or nil when the user has no documents.
func (s *TaxonomyStore) Get(ctx context.Context, userID string) (*domain.TaxonomyModel, error) {
	// ObjectIds grow with insertion, which keeps the order pairs were added in.
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: TaxonomyStore.Get: %w", domain.ErrTaxonomyUnavailable, err)
	}

	var docs []categoryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: TaxonomyStore.Get: decoding: %w", domain.ErrTaxonomyUnavailable, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	pairs := make([]domain.CategoryPair, 0, len(docs))
	for _, d := range docs {
		pairs = append(pairs, domain.CategoryPair{Category: d.Category, Subcategory: d.Subcategory})
	}
	return domain.NewTaxonomyModel(userID, pairs), nil
}

// Put stores pairs for userID, skipping pairs that already exist.
func (s *TaxonomyStore) Put(ctx context.Context, userID string, pairs []domain.CategoryPair) error {
	if len(pairs) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(pairs))
	for _, p := range pairs {
		doc := categoryDoc{UserID: userID, Category: p.Category, Subcategory: p.Subcategory}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"user_id": userID, "category": p.Category, "subcategory": p.Subcategory}).
			SetUpdate(bson.M{"$setOnInsert": doc}).
			SetUpsert(true))
	}

	if _, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("TaxonomyStore.Put: %w", err)
	}
	return nil
}
