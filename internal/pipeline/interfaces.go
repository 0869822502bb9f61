package pipeline

import (
	"context"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/dvloznov/finance-categorizer/internal/source"
)

// RawFileIngestor fetches an uploaded file and returns its data rows in file order.
type RawFileIngestor interface {
	Read(ctx context.Context, loc source.Location) ([]domain.Row, error)
}

// RecordStore persists and queries transaction records.
// Implementations must be safe for concurrent use by independent batches.
type RecordStore interface {
	// PutBatch inserts records keyed by transaction_id. Re-putting an existing
	// id is a no-op. Partial failure is reported as *domain.PersistenceError.
	PutBatch(ctx context.Context, records []*domain.TransactionRecord) error

	// Get returns the record or domain.ErrRecordNotFound.
	Get(ctx context.Context, transactionID string) (*domain.TransactionRecord, error)

	// FindByUserAndStatus serves diagnostics and recovery tooling only.
	FindByUserAndStatus(ctx context.Context, userID string, status domain.Status) ([]*domain.TransactionRecord, error)

	// UpdateStatus applies u only if the record exists and is not terminal,
	// failing with domain.ErrStaleTransition otherwise.
	UpdateStatus(ctx context.Context, u domain.StatusUpdate) error
}

// TaxonomyStore retrieves a user's category taxonomy. A user who never
// configured categories yields (nil, nil); transport failures wrap
// domain.ErrTaxonomyUnavailable.
type TaxonomyStore interface {
	Get(ctx context.Context, userID string) (*domain.TaxonomyModel, error)
}

// ModelClient sends a prompt to a generative model and returns its raw text.
type ModelClient interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}
