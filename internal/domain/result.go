package domain

import (
	"fmt"
	"strings"
)

// CategorizationResult is one entry the model returned for a transaction.
// It is ephemeral: produced by the response parser, consumed by reconciliation.
type CategorizationResult struct {
	TransactionID string
	Category      string
	Subcategory   string
	Confidence    float64
}

// StatusUpdate is the conditional write applied to a record when it leaves PENDING.
type StatusUpdate struct {
	TransactionID string
	Category      *string
	Subcategory   *string
	Confidence    *float64
	Status        Status
}

// CompleteUpdate builds the COMPLETE transition for a matched result.
// A blank category or subcategory (model was unsure) is stored as null.
func CompleteUpdate(r CategorizationResult) StatusUpdate {
	conf := r.Confidence
	return StatusUpdate{
		TransactionID: r.TransactionID,
		Category:      optionalString(r.Category),
		Subcategory:   optionalString(r.Subcategory),
		Confidence:    &conf,
		Status:        StatusComplete,
	}
}

// FailedUpdate builds the CATEGORIZATION_FAILED transition.
func FailedUpdate(transactionID string) StatusUpdate {
	return StatusUpdate{
		TransactionID: transactionID,
		Status:        StatusCategorizationFailed,
	}
}

// Validate checks that the update targets a record and a terminal status.
func (u StatusUpdate) Validate() error {
	if u.TransactionID == "" {
		return fmt.Errorf("status update: transaction_id is required")
	}
	if !u.Status.IsTerminal() {
		return fmt.Errorf("status update %s: target status %q is not terminal", u.TransactionID, u.Status)
	}
	if u.Confidence != nil && (*u.Confidence < 0 || *u.Confidence > 1) {
		return fmt.Errorf("status update %s: confidence %v outside [0,1]", u.TransactionID, *u.Confidence)
	}
	return nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
