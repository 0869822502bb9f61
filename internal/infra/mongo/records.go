package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type transactionDoc struct {
	ID                string     `bson:"_id,omitempty"`
	UserID            string     `bson:"user_id"`
	TransactionDateID string     `bson:"transaction_date_id"`
	Date              string     `bson:"date"`
	Amount            string     `bson:"amount"`
	Merchant          string     `bson:"merchant"`
	Description       string     `bson:"description"`
	Category          *string    `bson:"category"`
	Subcategory       *string    `bson:"subcategory"`
	Confidence        *float64   `bson:"confidence"`
	Status            string     `bson:"status"`
	SourceURI         string     `bson:"source_uri"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         *time.Time `bson:"updated_at,omitempty"`
}

func toDoc(r *domain.TransactionRecord) transactionDoc {
	d := transactionDoc{
		ID:                r.TransactionID,
		UserID:            r.UserID,
		TransactionDateID: r.SortKey(),
		Date:              r.Date,
		Amount:            r.Amount,
		Merchant:          r.Merchant,
		Description:       r.Description,
		Category:          r.Category,
		Subcategory:       r.Subcategory,
		Confidence:        r.Confidence,
		Status:            string(r.Status),
		SourceURI:         r.SourceURI,
		CreatedAt:         r.CreatedAt,
	}
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		d.UpdatedAt = &t
	}
	return d
}

func (d transactionDoc) toRecord() *domain.TransactionRecord {
	r := &domain.TransactionRecord{
		TransactionID: d.ID,
		UserID:        d.UserID,
		Date:          d.Date,
		Amount:        d.Amount,
		Merchant:      d.Merchant,
		Description:   d.Description,
		Category:      d.Category,
		Subcategory:   d.Subcategory,
		Confidence:    d.Confidence,
		Status:        domain.Status(d.Status),
		SourceURI:     d.SourceURI,
		CreatedAt:     d.CreatedAt.UTC(),
	}
	if d.UpdatedAt != nil {
		r.UpdatedAt = d.UpdatedAt.UTC()
	}
	return r
}

// RecordStore keeps transaction records in a collection keyed by
// transaction_id.
type RecordStore struct {
	coll Collection
	now  func() time.Time
}

// NewRecordStore creates a store over coll.
func NewRecordStore(coll Collection) *RecordStore {
	return &RecordStore{
		coll: coll,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// PutBatch upserts each record with $setOnInsert in one unordered bulk write,
// so stored records are never overwritten. Per-document write errors are
// reported by transaction_id; the other records are still written.
func (s *RecordStore) PutBatch(ctx context.Context, records []*domain.TransactionRecord) error {
	var (
		models []mongo.WriteModel
		ids    []string
		failed []string
	)
	for i, r := range records {
		if r == nil || r.TransactionID == "" {
			failed = append(failed, fmt.Sprintf("#%d", i))
			continue
		}
		doc := toDoc(r)
		doc.ID = ""
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": r.TransactionID}).
			SetUpdate(bson.M{"$setOnInsert": doc}).
			SetUpsert(true))
		ids = append(ids, r.TransactionID)
	}

	var causes []error
	if len(failed) > 0 {
		causes = append(causes, errors.New("records without transaction_id"))
	}

	if len(models) > 0 {
		_, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
		if err != nil {
			writeFailed, werr := failedWrites(err, ids)
			failed = append(failed, writeFailed...)
			if werr != nil {
				causes = append(causes, werr)
			}
		}
	}

	if len(failed) > 0 {
		return domain.NewPersistenceError(failed, fmt.Errorf("PutBatch: %w", errors.Join(causes...)))
	}
	return nil
}

// failedWrites maps a bulk write error to the ids that were not stored.
// Duplicate key errors mean another writer inserted the id first, which
// satisfies insert-if-absent.
func failedWrites(err error, ids []string) ([]string, error) {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return ids, err
	}

	var failed []string
	for _, we := range bwe.WriteErrors {
		if isDuplicateKey(we.Code) {
			continue
		}
		if we.Index >= 0 && we.Index < len(ids) {
			failed = append(failed, ids[we.Index])
		}
	}
	if len(failed) == 0 {
		return nil, nil
	}
	return failed, err
}

func isDuplicateKey(code int) bool {
	return code == 11000 || code == 11001 || code == 12582
}

// Get returns one record by id.
func (s *RecordStore) Get(ctx context.Context, transactionID string) (*domain.TransactionRecord, error) {
	var doc transactionDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": transactionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, transactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return doc.toRecord(), nil
}

// FindByUserAndStatus lists a user's records in one status, ordered by
// transaction_date_id.
func (s *RecordStore) FindByUserAndStatus(ctx context.Context, userID string, status domain.Status) ([]*domain.TransactionRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "transaction_date_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"user_id": userID, "status": string(status)}, opts)
	if err != nil {
		return nil, fmt.Errorf("FindByUserAndStatus: %w", err)
	}

	var docs []transactionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("FindByUserAndStatus: decoding: %w", err)
	}

	records := make([]*domain.TransactionRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, d.toRecord())
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

	filter := bson.M{
		"_id":    u.TransactionID,
		"status": bson.M{"$nin": terminal},
	}
	update := bson.M{"$set": bson.M{
		"category":    u.Category,
		"subcategory": u.Subcategory,
		"confidence":  u.Confidence,
		"status":      string(u.Status),
		"updated_at":  s.now(),
	}}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("UpdateStatus %s: %w", u.TransactionID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s is missing or already terminal", domain.ErrStaleTransition, u.TransactionID)
	}
	return nil
}
