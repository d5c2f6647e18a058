package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultCollection = "trade_history"

// MongoStore persists ChangeRecords to a MongoDB collection. The
// collection is the system's audit trail and holds one document per
// successful ledger mutation.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore wraps the trade_history collection of the given database.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{coll: client.Database(database).Collection(defaultCollection)}
}

func (s *MongoStore) Append(ctx context.Context, rec ChangeRecord) error {
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert change record: %w", err)
	}
	return nil
}

func (s *MongoStore) AppendBatch(ctx context.Context, recs []ChangeRecord) error {
	if len(recs) == 0 {
		return nil
	}
	docs := make([]interface{}, len(recs))
	for i, r := range recs {
		docs[i] = r
	}
	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert change records: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByTradeID(ctx context.Context, tradeID string) ([]ChangeRecord, error) {
	cur, err := s.coll.Find(ctx,
		bson.D{{Key: "trade_id", Value: tradeID}},
		options.Find().SetSort(bson.D{{Key: "version", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find change records: %w", err)
	}
	defer cur.Close(ctx)

	var recs []ChangeRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decode change records: %w", err)
	}
	return recs, nil
}

// EnsureIndexes creates the trade_id + version index used by history
// queries.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "trade_id", Value: 1}, {Key: "version", Value: -1}},
	})
	return err
}

// ConnectMongo establishes a MongoDB connection and verifies it with a
// primary ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}
