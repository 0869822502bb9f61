package report

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-categorizer/internal/domain"
)

// RecordFinder is the read side of a record store.
type RecordFinder interface {
	FindByUserAndStatus(ctx context.Context, userID string, status domain.Status) ([]*domain.TransactionRecord, error)
}

// Load collects a user's records across every known status.
func Load(ctx context.Context, finder RecordFinder, userID string) ([]*domain.TransactionRecord, error) {
	var all []*domain.TransactionRecord
	for _, status := range statusOrder {
		recs, err := finder.FindByUserAndStatus(ctx, userID, status)
		if err != nil {
			return nil, fmt.Errorf("Load %s: %w", status, err)
		}
		all = append(all, recs...)
	}
	return all, nil
}
