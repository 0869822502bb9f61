package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordStore keeps transaction records in the transactions table.
type RecordStore struct {
	db  *gorm.DB
	now func() time.Time
}

func (s *RecordStore) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// putChunk keeps each INSERT under SQLite's bound-variable limit.
const putChunk = 500

// PutBatch inserts the records in chunks inside one transaction, ignoring ids
// that are already stored. A failure rolls back every chunk, so it names every
// record.
func (s *RecordStore) PutBatch(ctx context.Context, records []*domain.TransactionRecord) error {
	var (
		models  []transactionModel
		ids     []string
		invalid []string
	)
	for i, r := range records {
		if r == nil || r.TransactionID == "" {
			invalid = append(invalid, fmt.Sprintf("#%d", i))
			continue
		}
		models = append(models, toModel(r))
		ids = append(ids, r.TransactionID)
	}

	if len(models) > 0 {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Clauses(clause.OnConflict{DoNothing: true}).
				CreateInBatches(&models, putChunk).Error
		})
		if err != nil {
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
	var m transactionModel
	err := s.db.WithContext(ctx).First(&m, "transaction_id = ?", transactionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, transactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return m.toRecord(), nil
}

// FindByUserAndStatus lists a user's records in one status, ordered by
// transaction_date_id.
func (s *RecordStore) FindByUserAndStatus(ctx context.Context, userID string, status domain.Status) ([]*domain.TransactionRecord, error) {
	var models []transactionModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, string(status)).
		Order("transaction_date_id").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("FindByUserAndStatus: %w", err)
	}

	records := make([]*domain.TransactionRecord, 0, len(models))
	for _, m := range models {
		records = append(records, m.toRecord())
	}
	return records, nil
}

// UpdateStatus applies u only while the stored status is not terminal.
func (s *RecordStore) UpdateStatus(ctx context.Context, u domain.StatusUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}

	terminal := make([]string, 0, len(domain.TerminalStatuses))
	for _, st := range domain.TerminalStatuses {
		terminal = append(terminal, string(st))
	}

	res := s.db.WithContext(ctx).
		Model(&transactionModel{}).
		Where("transaction_id = ? AND status NOT IN ?", u.TransactionID, terminal).
		Updates(map[string]interface{}{
			"category":    u.Category,
			"subcategory": u.Subcategory,
			"confidence":  u.Confidence,
			"status":      string(u.Status),
			"updated_ts":  s.clock(),
		})
	if res.Error != nil {
		return fmt.Errorf("UpdateStatus %s: %w", u.TransactionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s is missing or already terminal", domain.ErrStaleTransition, u.TransactionID)
	}
	return nil
}
