package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-categorizer/internal/domain"
)

// TransactionRow mirrors the finance.transactions table.
type TransactionRow struct {
	TransactionID     string `bigquery:"transaction_id"`      // REQUIRED
	UserID            string `bigquery:"user_id"`             // REQUIRED
	TransactionDateID string `bigquery:"transaction_date_id"` // REQUIRED, "date#transaction_id"

	Date        string `bigquery:"date"`        // verbatim from the source file
	Amount      string `bigquery:"amount"`      // decimal-as-text, verbatim
	Merchant    string `bigquery:"merchant"`    // NULLABLE in schema, "" when missing
	Description string `bigquery:"description"` // NULLABLE in schema, "" when missing

	Category    bigquery.NullString  `bigquery:"category"`    // NULLABLE
	Subcategory bigquery.NullString  `bigquery:"subcategory"` // NULLABLE
	Confidence  bigquery.NullFloat64 `bigquery:"confidence"`  // NULLABLE

	Status    string `bigquery:"status"`     // REQUIRED
	SourceURI string `bigquery:"source_uri"` // NULLABLE

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

// CategoryRow is one (category, subcategory) pair of finance.categories.
type CategoryRow struct {
	UserID          string              `bigquery:"user_id"`          // REQUIRED
	CategoryName    string              `bigquery:"category_name"`    // REQUIRED
	SubcategoryName bigquery.NullString `bigquery:"subcategory_name"` // NULLABLE
}

func toTransactionRow(r *domain.TransactionRecord) *TransactionRow {
	row := &TransactionRow{
		TransactionID:     r.TransactionID,
		UserID:            r.UserID,
		TransactionDateID: r.SortKey(),
		Date:              r.Date,
		Amount:            r.Amount,
		Merchant:          r.Merchant,
		Description:       r.Description,
		Category:          nullString(r.Category),
		Subcategory:       nullString(r.Subcategory),
		Status:            string(r.Status),
		SourceURI:         r.SourceURI,
		CreatedTS:         r.CreatedAt,
	}
	if r.Confidence != nil {
		row.Confidence = bigquery.NullFloat64{Float64: *r.Confidence, Valid: true}
	}
	if !r.UpdatedAt.IsZero() {
		row.UpdatedTS = bigquery.NullTimestamp{Timestamp: r.UpdatedAt, Valid: true}
	}
	return row
}

func (row *TransactionRow) toRecord() *domain.TransactionRecord {
	rec := &domain.TransactionRecord{
		TransactionID: row.TransactionID,
		UserID:        row.UserID,
		Date:          row.Date,
		Amount:        row.Amount,
		Merchant:      row.Merchant,
		Description:   row.Description,
		Category:      stringPtr(row.Category),
		Subcategory:   stringPtr(row.Subcategory),
		Status:        domain.Status(row.Status),
		SourceURI:     row.SourceURI,
		CreatedAt:     row.CreatedTS,
	}
	if row.Confidence.Valid {
		v := row.Confidence.Float64
		rec.Confidence = &v
	}
	if row.UpdatedTS.Valid {
		rec.UpdatedAt = row.UpdatedTS.Timestamp
	}
	return rec
}

func categoryPairs(rows []CategoryRow) []domain.CategoryPair {
	pairs := make([]domain.CategoryPair, 0, len(rows))
	for _, r := range rows {
		p := domain.CategoryPair{Category: r.CategoryName}
		if r.SubcategoryName.Valid {
			p.Subcategory = r.SubcategoryName.StringVal
		}
		pairs = append(pairs, p)
	}
	return pairs
}

func nullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}

func stringPtr(ns bigquery.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.StringVal
	return &v
}
