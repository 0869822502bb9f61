package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// Stores bundles the BigQuery-backed stores around one shared client.
type Stores struct {
	client   *bigquery.Client
	Records  *RecordStore
	Taxonomy *TaxonomyStore
}

// Open creates a BigQuery client for projectID and the stores over
// dataset.transactionsTable and dataset.categoriesTable.
func Open(ctx context.Context, projectID, dataset, transactionsTable, categoriesTable string) (*Stores, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("Open: creating client: %w", err)
	}
	return &Stores{
		client:   client,
		Records:  NewRecordStore(client, dataset, transactionsTable),
		Taxonomy: NewTaxonomyStore(client, dataset, categoriesTable),
	}, nil
}

// Close closes the BigQuery client connection.
func (s *Stores) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
