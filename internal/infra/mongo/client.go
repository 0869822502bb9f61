package mongo

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-categorizer/internal/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	TransactionsCollection = "transactions"
	CategoriesCollection   = "categories"
)

// Collection is the subset of *mongo.Collection the stores use.
type Collection interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Stores bundles the MongoDB-backed stores around one connected client.
type Stores struct {
	client   *mongo.Client
	Records  *RecordStore
	Taxonomy *TaxonomyStore
}

// Connect dials uri, pings the primary and returns stores over database.
func Connect(ctx context.Context, uri, database string) (*Stores, error) {
	log := logger.FromContext(ctx)
	log.Debug().Str("database", database).Msg("Connecting to MongoDB")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("Connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("Connect: ping: %w", err)
	}

	db := client.Database(database)
	log.Info().Str("database", database).Msg("Connected to MongoDB")

	return &Stores{
		client:   client,
		Records:  NewRecordStore(db.Collection(TransactionsCollection)),
		Taxonomy: NewTaxonomyStore(db.Collection(CategoriesCollection)),
	}, nil
}

// Close disconnects the client.
func (s *Stores) Close(ctx context.Context) error {
	if s.client != nil {
		return s.client.Disconnect(ctx)
	}
	return nil
}
