package pipeline

import "github.com/dvloznov/finance-categorizer/internal/domain"

// Reconciliation is the outcome of matching model entries to a batch.
type Reconciliation struct {
	// Matched holds one result per known id that the model answered, in batch order.
	Matched []domain.CategorizationResult
	// UnmatchedKnown lists batch ids the model never returned, in batch order.
	UnmatchedKnown []string
	// UnmatchedResults are entries carrying ids outside the batch (hallucinated).
	UnmatchedResults []domain.CategorizationResult
}

// Reconcile matches results to knownIDs by exact transaction_id. When the
// model returns an id more than once the last entry wins.
func Reconcile(results []domain.CategorizationResult, knownIDs []string) Reconciliation {
	known := make(map[string]bool, len(knownIDs))
	for _, id := range knownIDs {
		known[id] = true
	}

	var rec Reconciliation
	byID := make(map[string]domain.CategorizationResult, len(results))
	for _, r := range results {
		if !known[r.TransactionID] {
			rec.UnmatchedResults = append(rec.UnmatchedResults, r)
			continue
		}
		byID[r.TransactionID] = r
	}

	seen := make(map[string]bool, len(knownIDs))
	for _, id := range knownIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if r, ok := byID[id]; ok {
			rec.Matched = append(rec.Matched, r)
		} else {
			rec.UnmatchedKnown = append(rec.UnmatchedKnown, id)
		}
	}

	return rec
}
