package pipeline

import (
	"context"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/dvloznov/finance-categorizer/internal/logger"
)

// FallbackTaxonomyStore serves a configured default taxonomy to users who
// never set up their own. It is only installed when the deployment opts in;
// the pipeline itself treats an absent taxonomy as fatal.
type FallbackTaxonomyStore struct {
	Store    TaxonomyStore
	Defaults []domain.CategoryGroup
}

// Get returns the user's taxonomy, or the defaults when it is absent.
// Transport errors are never masked.
func (f *FallbackTaxonomyStore) Get(ctx context.Context, userID string) (*domain.TaxonomyModel, error) {
	t, err := f.Store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !t.IsEmpty() {
		return t, nil
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("user_id", userID).
		Msg("No taxonomy configured for user, using default taxonomy")

	return domain.NewTaxonomyFromGroups(userID, f.Defaults), nil
}
