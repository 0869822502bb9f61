package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-categorizer/internal/domain"
	"google.golang.org/api/iterator"
)

const transactionColumns = `
		transaction_id,
		user_id,
		transaction_date_id,
		date,
		amount,
		merchant,
		description,
		category,
		subcategory,
		confidence,
		status,
		source_uri,
		created_ts,
		updated_ts`

// RecordStore is the RecordStore backed by a BigQuery table.
// It holds a shared client; the caller closes it.
type RecordStore struct {
	client  *bigquery.Client
	dataset string
	table   string
	now     func() time.Time
}

// NewRecordStore creates a store over dataset.table.
func NewRecordStore(client *bigquery.Client, dataset, table string) *RecordStore {
	return &RecordStore{
		client:  client,
		dataset: dataset,
		table:   table,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PutBatch inserts records whose transaction_id is not stored yet in a single
// MERGE statement. The statement is atomic, so a failure names every record.
func (s *RecordStore) PutBatch(ctx context.Context, records []*domain.TransactionRecord) error {
	rows, invalid := uniqueRows(records)
	if len(rows) > 0 {
		q := s.client.Query(mergeInsertSQL(s.dataset, s.table))
		q.Parameters = []bigquery.QueryParameter{
			{Name: "rows", Value: rows},
		}

		if _, err := runDML(ctx, q); err != nil {
			ids := make([]string, 0, len(rows))
			for _, r := range rows {
				ids = append(ids, r.TransactionID)
			}
			return domain.NewPersistenceError(append(ids, invalid...), fmt.Errorf("PutBatch: %w", err))
		}
	}

	if len(invalid) > 0 {
		return domain.NewPersistenceError(invalid, errors.New("PutBatch: records without transaction_id"))
	}
	return nil
}

// Get returns one record by id.
func (s *RecordStore) Get(ctx context.Context, transactionID string) (*domain.TransactionRecord, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE transaction_id = @transaction_id
		LIMIT 1
	`, transactionColumns, tableRef(s.dataset, s.table)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: transactionID},
	}

	rows, err := readTransactionRows(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, transactionID)
	}
	return rows[0].toRecord(), nil
}

// FindByUserAndStatus lists a user's records in one status, ordered by
// transaction_date_id.
func (s *RecordStore) FindByUserAndStatus(ctx context.Context, userID string, status domain.Status) ([]*domain.TransactionRecord, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE user_id = @user_id
		  AND status = @status
		ORDER BY transaction_date_id
	`, transactionColumns, tableRef(s.dataset, s.table)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "status", Value: string(status)},
	}

	rows, err := readTransactionRows(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("FindByUserAndStatus: %w", err)
	}

	records := make([]*domain.TransactionRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toRecord())
	}
	return records, nil
}

// UpdateStatus runs a DML UPDATE guarded by the current status. Zero affected
// rows means the record is missing or already terminal.
func (s *RecordStore) UpdateStatus(ctx context.Context, u domain.StatusUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}

	q := s.client.Query(updateStatusSQL(s.dataset, s.table))
	q.Parameters = updateStatusParams(u, s.now())

	affected, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("UpdateStatus %s: %w", u.TransactionID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s is missing or already terminal", domain.ErrStaleTransition, u.TransactionID)
	}
	return nil
}

func mergeInsertSQL(dataset, table string) string {
	return fmt.Sprintf(`
		MERGE %s T
		USING UNNEST(@rows) S
		ON T.transaction_id = S.transaction_id
		WHEN NOT MATCHED THEN
		  INSERT (%s)
		  VALUES (
			S.transaction_id,
			S.user_id,
			S.transaction_date_id,
			S.date,
			S.amount,
			S.merchant,
			S.description,
			S.category,
			S.subcategory,
			S.confidence,
			S.status,
			S.source_uri,
			S.created_ts,
			S.updated_ts
		  )
	`, tableRef(dataset, table), transactionColumns)
}

func updateStatusSQL(dataset, table string) string {
	return fmt.Sprintf(`
		UPDATE %s
		SET category = @category,
		    subcategory = @subcategory,
		    confidence = @confidence,
		    status = @status,
		    updated_ts = @updated_ts
		WHERE transaction_id = @transaction_id
		  AND status NOT IN UNNEST(@terminal_statuses)
	`, tableRef(dataset, table))
}

func updateStatusParams(u domain.StatusUpdate, now time.Time) []bigquery.QueryParameter {
	terminal := make([]string, 0, len(domain.TerminalStatuses))
	for _, st := range domain.TerminalStatuses {
		terminal = append(terminal, string(st))
	}

	confidence := bigquery.NullFloat64{}
	if u.Confidence != nil {
		confidence = bigquery.NullFloat64{Float64: *u.Confidence, Valid: true}
	}

	return []bigquery.QueryParameter{
		{Name: "category", Value: nullString(u.Category)},
		{Name: "subcategory", Value: nullString(u.Subcategory)},
		{Name: "confidence", Value: confidence},
		{Name: "status", Value: string(u.Status)},
		{Name: "updated_ts", Value: now},
		{Name: "transaction_id", Value: u.TransactionID},
		{Name: "terminal_statuses", Value: terminal},
	}
}

// uniqueRows converts records to rows, keeping the first record of each id.
// Records without an id are returned separately by batch position.
func uniqueRows(records []*domain.TransactionRecord) ([]*TransactionRow, []string) {
	seen := make(map[string]bool, len(records))
	var rows []*TransactionRow
	var invalid []string
	for i, r := range records {
		if r == nil || r.TransactionID == "" {
			invalid = append(invalid, fmt.Sprintf("#%d", i))
			continue
		}
		if seen[r.TransactionID] {
			continue
		}
		seen[r.TransactionID] = true
		rows = append(rows, toTransactionRow(r))
	}
	return rows, invalid
}

func tableRef(dataset, table string) string {
	return fmt.Sprintf("`%s.%s`", dataset, table)
}

// runDML runs a statement to completion and returns the affected row count.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}
	return affectedRows(status), nil
}

func affectedRows(status *bigquery.JobStatus) int64 {
	if status == nil || status.Statistics == nil {
		return 0
	}
	qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics)
	if !ok {
		return 0
	}
	return qs.NumDMLAffectedRows
}

func readTransactionRows(ctx context.Context, q *bigquery.Query) ([]*TransactionRow, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}
