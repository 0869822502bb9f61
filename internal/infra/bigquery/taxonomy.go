package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-categorizer/internal/domain"
	"google.golang.org/api/iterator"
)

// TaxonomyStore reads per-user category pairs from a BigQuery table. The
// table carries a created_ts column alongside the pair.
type TaxonomyStore struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewTaxonomyStore creates a store over dataset.table.
func NewTaxonomyStore(client *bigquery.Client, dataset, table string) *TaxonomyStore {
	return &TaxonomyStore{client: client, dataset: dataset, table: table}
}

// Get returns the user's taxonomy, or nil when the user has no rows.
func (s *TaxonomyStore) Get(ctx context.Context, userID string) (*domain.TaxonomyModel, error) {
	q := s.client.Query(taxonomySQL(s.dataset, s.table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: TaxonomyStore.Get: query read: %w", domain.ErrTaxonomyUnavailable, err)
	}

	var rows []CategoryRow
	for {
		var r CategoryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: TaxonomyStore.Get: iter next: %w", domain.ErrTaxonomyUnavailable, err)
		}
		rows = append(rows, r)
	}

	if len(rows) == 0 {
		return nil, nil
	}
	return domain.NewTaxonomyModel(userID, categoryPairs(rows)), nil
}

// taxonomySQL lists a user's pairs in the order they were added. Pairs
// created together fall back to name order.
func taxonomySQL(dataset, table string) string {
	return fmt.Sprintf(`
		SELECT
		  user_id,
		  category_name,
		  subcategory_name
		FROM %s
		WHERE user_id = @user_id
		ORDER BY created_ts, category_name, subcategory_name
	`, tableRef(dataset, table))
}
