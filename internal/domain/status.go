package domain

import (
	"fmt"
	"strings"
)

// Status is the categorization state of a transaction record.
type Status string

const (
	// StatusPending is set at ingest, before the model has been asked.
	StatusPending Status = "PENDING"
	// StatusComplete means category, subcategory and confidence were recorded.
	StatusComplete Status = "COMPLETE"
	// StatusCategorizationFailed means the model call failed for the batch
	// or the model never returned an entry for this record.
	StatusCategorizationFailed Status = "CATEGORIZATION_FAILED"
)

// TerminalStatuses lists the statuses no transition may leave.
var TerminalStatuses = []Status{StatusComplete, StatusCategorizationFailed}

// IsTerminal reports whether s permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusCategorizationFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusComplete, StatusCategorizationFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether a record in status s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	return s.Valid() && !s.IsTerminal() && next.IsTerminal()
}

// ParseStatus converts user input (any case) into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", v)
	}
	return s, nil
}
