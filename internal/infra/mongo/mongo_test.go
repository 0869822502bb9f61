package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mockCollection struct {
	BulkWriteFunc func(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	FindOneFunc   func(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	FindFunc      func(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOneFunc func(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

func (m *mockCollection) BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	return m.BulkWriteFunc(ctx, models, opts...)
}

func (m *mockCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	return m.FindOneFunc(ctx, filter, opts...)
}

func (m *mockCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	return m.FindFunc(ctx, filter, opts...)
}

func (m *mockCollection) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return m.UpdateOneFunc(ctx, filter, update, opts...)
}

var created = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func pending(id string) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		TransactionID: id,
		UserID:        "u1",
		Date:          "2024-02-29",
		Amount:        "-4.20",
		Status:        domain.StatusPending,
		CreatedAt:     created,
	}
}

func TestPutBatch_UpsertsWithSetOnInsert(t *testing.T) {
	var got []mongo.WriteModel
	var ordered *bool
	coll := &mockCollection{
		BulkWriteFunc: func(_ context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
			got = models
			ordered = opts[0].Ordered
			return &mongo.BulkWriteResult{UpsertedCount: int64(len(models))}, nil
		},
	}

	err := NewRecordStore(coll).PutBatch(context.Background(), []*domain.TransactionRecord{pending("a"), pending("b")})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, ordered)
	assert.False(t, *ordered)

	m, ok := got[0].(*mongo.UpdateOneModel)
	require.True(t, ok)
	assert.Equal(t, bson.M{"_id": "a"}, m.Filter)
	require.NotNil(t, m.Upsert)
	assert.True(t, *m.Upsert)

	update := m.Update.(bson.M)
	doc, ok := update["$setOnInsert"].(transactionDoc)
	require.True(t, ok)
	assert.Empty(t, doc.ID)
	assert.Equal(t, "2024-02-29#a", doc.TransactionDateID)
	assert.Equal(t, "PENDING", doc.Status)
}

func TestPutBatch_PartialFailure(t *testing.T) {
	coll := &mockCollection{
		BulkWriteFunc: func(context.Context, []mongo.WriteModel, ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
			return nil, mongo.BulkWriteException{
				WriteErrors: []mongo.BulkWriteError{
					{WriteError: mongo.WriteError{Index: 1, Code: 121, Message: "document failed validation"}},
					{WriteError: mongo.WriteError{Index: 2, Code: 11000, Message: "E11000 duplicate key error"}},
				},
			}
		},
	}

	err := NewRecordStore(coll).PutBatch(context.Background(), []*domain.TransactionRecord{pending("a"), pending("b"), pending("c"), nil})

	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ElementsMatch(t, []string{"#3", "b"}, perr.FailedIDs)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestPutBatch_TransportErrorFailsAll(t *testing.T) {
	coll := &mockCollection{
		BulkWriteFunc: func(context.Context, []mongo.WriteModel, ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
			return nil, errors.New("server selection timeout")
		},
	}

	err := NewRecordStore(coll).PutBatch(context.Background(), []*domain.TransactionRecord{pending("a"), pending("b")})
	assert.ElementsMatch(t, []string{"a", "b"}, domain.FailedIDs(err))
}

func TestGet(t *testing.T) {
	conf := 0.9
	cat := "Food"
	stored := toDoc(&domain.TransactionRecord{
		TransactionID: "a",
		UserID:        "u1",
		Date:          "2024-02-29",
		Amount:        "1",
		Category:      &cat,
		Confidence:    &conf,
		Status:        domain.StatusComplete,
		CreatedAt:     created,
		UpdatedAt:     created.Add(time.Minute),
	})

	t.Run("found", func(t *testing.T) {
		coll := &mockCollection{
			FindOneFunc: func(_ context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
				assert.Equal(t, bson.M{"_id": "a"}, filter)
				return mongo.NewSingleResultFromDocument(stored, nil, nil)
			},
		}
		rec, err := NewRecordStore(coll).Get(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, "Food", *rec.Category)
		assert.Nil(t, rec.Subcategory)
		assert.Equal(t, 0.9, *rec.Confidence)
		assert.Equal(t, domain.StatusComplete, rec.Status)
		assert.True(t, rec.UpdatedAt.Equal(created.Add(time.Minute)))
	})

	t.Run("missing", func(t *testing.T) {
		coll := &mockCollection{
			FindOneFunc: func(context.Context, interface{}, ...*options.FindOneOptions) *mongo.SingleResult {
				return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
			},
		}
		_, err := NewRecordStore(coll).Get(context.Background(), "zzz")
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	})
}

func TestFindByUserAndStatus(t *testing.T) {
	coll := &mockCollection{
		FindFunc: func(_ context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
			assert.Equal(t, bson.M{"user_id": "u1", "status": "PENDING"}, filter)
			assert.Equal(t, bson.D{{Key: "transaction_date_id", Value: 1}}, opts[0].Sort)
			return mongo.NewCursorFromDocuments([]interface{}{
				toDoc(pending("a")),
				toDoc(pending("b")),
			}, nil, nil)
		},
	}

	recs, err := NewRecordStore(coll).FindByUserAndStatus(context.Background(), "u1", domain.StatusPending)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].TransactionID)
	assert.Equal(t, "b", recs[1].TransactionID)
}

func TestUpdateStatus(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		coll := &mockCollection{
			UpdateOneFunc: func(_ context.Context, filter interface{}, update interface{}, _ ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
				f := filter.(bson.M)
				assert.Equal(t, "a", f["_id"])
				assert.Equal(t, bson.M{"$nin": []string{"COMPLETE", "CATEGORIZATION_FAILED"}}, f["status"])
				set := update.(bson.M)["$set"].(bson.M)
				assert.Equal(t, "CATEGORIZATION_FAILED", set["status"])
				return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
			},
		}
		require.NoError(t, NewRecordStore(coll).UpdateStatus(context.Background(), domain.FailedUpdate("a")))
	})

	t.Run("terminal or missing is stale", func(t *testing.T) {
		coll := &mockCollection{
			UpdateOneFunc: func(context.Context, interface{}, interface{}, ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
				return &mongo.UpdateResult{}, nil
			},
		}
		err := NewRecordStore(coll).UpdateStatus(context.Background(), domain.FailedUpdate("a"))
		assert.ErrorIs(t, err, domain.ErrStaleTransition)
	})

	t.Run("invalid update never reaches the collection", func(t *testing.T) {
		err := NewRecordStore(&mockCollection{}).UpdateStatus(context.Background(), domain.StatusUpdate{TransactionID: "a", Status: domain.StatusPending})
		assert.Error(t, err)
	})
}

func TestTaxonomyStore_Get(t *testing.T) {
	t.Run("grouped", func(t *testing.T) {
		coll := &mockCollection{
			FindFunc: func(_ context.Context, _ interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
				assert.Equal(t, bson.D{{Key: "_id", Value: 1}}, opts[0].Sort)
				return mongo.NewCursorFromDocuments([]interface{}{
					categoryDoc{UserID: "u1", Category: "Income"},
					categoryDoc{UserID: "u1", Category: "Food", Subcategory: "Groceries"},
					categoryDoc{UserID: "u1", Category: "Food", Subcategory: "Dining"},
				}, nil, nil)
			},
		}
		tax, err := NewTaxonomyStore(coll).Get(context.Background(), "u1")
		require.NoError(t, err)
		require.Len(t, tax.Groups, 2)
		assert.Equal(t, "Income", tax.Groups[0].Category)
		assert.Equal(t, "Food", tax.Groups[1].Category)
		assert.Equal(t, []string{"Groceries", "Dining"}, tax.Groups[1].Subcategories)
	})

	t.Run("absent", func(t *testing.T) {
		coll := &mockCollection{
			FindFunc: func(context.Context, interface{}, ...*options.FindOptions) (*mongo.Cursor, error) {
				return mongo.NewCursorFromDocuments(nil, nil, nil)
			},
		}
		tax, err := NewTaxonomyStore(coll).Get(context.Background(), "u1")
		require.NoError(t, err)
		assert.Nil(t, tax)
	})

	t.Run("unavailable", func(t *testing.T) {
		coll := &mockCollection{
			FindFunc: func(context.Context, interface{}, ...*options.FindOptions) (*mongo.Cursor, error) {
				return nil, errors.New("connection refused")
			},
		}
		_, err := NewTaxonomyStore(coll).Get(context.Background(), "u1")
		assert.ErrorIs(t, err, domain.ErrTaxonomyUnavailable)
	})
}
