package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds of the categorization pipeline. Callers match them with errors.Is.
var (
	ErrSourceUnavailable   = errors.New("source unavailable")
	ErrMalformedInput      = errors.New("malformed input")
	ErrPersistence         = errors.New("persistence error")
	ErrStaleTransition     = errors.New("stale transition")
	ErrTaxonomyUnavailable = errors.New("taxonomy unavailable")
	ErrTaxonomyAbsent      = errors.New("taxonomy absent")
	ErrModelInvocation     = errors.New("model invocation error")
	ErrModelTimeout        = errors.New("model timeout")
	ErrUnparsableResponse  = errors.New("unparsable response")
)

// PersistenceError reports which records a store failed to write.
type PersistenceError struct {
	FailedIDs []string
	Err       error
}

// NewPersistenceError wraps err with the ids that failed.
func NewPersistenceError(failedIDs []string, err error) *PersistenceError {
	return &PersistenceError{FailedIDs: failedIDs, Err: err}
}

func (e *PersistenceError) Error() string {
	const maxListed = 10
	ids := e.FailedIDs
	suffix := ""
	if len(ids) > maxListed {
		suffix = fmt.Sprintf(" (+%d more)", len(ids)-maxListed)
		ids = ids[:maxListed]
	}
	msg := fmt.Sprintf("%s: %d record(s) failed [%s]%s", ErrPersistence, len(e.FailedIDs), strings.Join(ids, ", "), suffix)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the ErrPersistence kind and the underlying cause.
func (e *PersistenceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPersistence}
	}
	return []error{ErrPersistence, e.Err}
}

// FailedIDs extracts the failed record ids from err, if it carries any.
func FailedIDs(err error) []string {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return pe.FailedIDs
	}
	return nil
}

// IsRetryable reports whether re-delivering the whole batch can make
// progress. Bad input and a missing taxonomy fail the same way again, and a
// failed model call has already moved every record to CATEGORIZATION_FAILED.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrMalformedInput), errors.Is(err, ErrTaxonomyAbsent):
		return false
	case errors.Is(err, ErrModelInvocation), errors.Is(err, ErrModelTimeout):
		return false
	}
	return true
}
