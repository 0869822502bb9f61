package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Row is one data row of an ingested file, keyed by (lower-cased) header name.
type Row map[string]string

// Recognized input columns. Anything else in the file is ignored.
const (
	FieldDate        = "date"
	FieldAmount      = "amount"
	FieldMerchant    = "merchant"
	FieldDescription = "description"
)

// ErrRecordNotFound is returned by RecordStore.Get for an unknown transaction_id.
var ErrRecordNotFound = errors.New("transaction record not found")

// TransactionRecord is the canonical representation of one ingested transaction
// together with its categorization state.
//
// TransactionID is assigned once at ingest and is the only key used to
// correlate model output back to the record.
type TransactionRecord struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`

	Date        string `json:"date"`   // verbatim from the source file
	Amount      string `json:"amount"` // decimal-as-text, verbatim from the source file
	Merchant    string `json:"merchant"`
	Description string `json:"description"`

	Category    *string  `json:"category"`    // nil until categorized
	Subcategory *string  `json:"subcategory"` // nil until categorized
	Confidence  *float64 `json:"confidence"`  // in [0,1], nil until categorized

	Status Status `json:"status"`

	SourceURI string    `json:"source_uri"` // file the record was ingested from
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPendingRecord builds a PENDING record from a parsed source row.
// Missing recognized columns become empty strings.
func NewPendingRecord(transactionID, userID, sourceURI string, row Row, now time.Time) (*TransactionRecord, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, fmt.Errorf("NewPendingRecord: transaction_id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("NewPendingRecord: user_id is required")
	}

	return &TransactionRecord{
		TransactionID: transactionID,
		UserID:        userID,
		Date:          row[FieldDate],
		Amount:        row[FieldAmount],
		Merchant:      row[FieldMerchant],
		Description:   row[FieldDescription],
		Status:        StatusPending,
		SourceURI:     sourceURI,
		CreatedAt:     now,
	}, nil
}

// SortKey returns the composite "date#transaction_id" key used for range queries.
func (r *TransactionRecord) SortKey() string {
	return SortKey(r.Date, r.TransactionID)
}

// SortKey joins a date and a transaction id into the composite range key.
func SortKey(date, transactionID string) string {
	return date + "#" + transactionID
}

// Clone returns a deep copy so stores never share pointers with callers.
func (r *TransactionRecord) Clone() *TransactionRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Category != nil {
		v := *r.Category
		c.Category = &v
	}
	if r.Subcategory != nil {
		v := *r.Subcategory
		c.Subcategory = &v
	}
	if r.Confidence != nil {
		v := *r.Confidence
		c.Confidence = &v
	}
	return &c
}

// Apply performs a conditional status transition in place. It fails with
// ErrStaleTransition when the record is already terminal.
func (r *TransactionRecord) Apply(u StatusUpdate, now time.Time) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if !r.Status.CanTransitionTo(u.Status) {
		return fmt.Errorf("%w: %s is %s", ErrStaleTransition, r.TransactionID, r.Status)
	}
	r.Category = u.Category
	r.Subcategory = u.Subcategory
	r.Confidence = u.Confidence
	r.Status = u.Status
	r.UpdatedAt = now
	return nil
}
