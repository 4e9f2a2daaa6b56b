package store

import (
	"context"
	"fmt"

	"guestbook/logger"
	"guestbook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Store owns the Mongo connection for the process lifetime. It is safe for
// concurrent use; the relay writes through it and the web feed reads.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Open connects to MongoDB, pings and ensures indexes. Callers treat any
// error as fatal: the process must not run with a broken sink.
func Open(ctx context.Context, uri, db, coll string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := &Store{client: client, coll: client.Database(db).Collection(coll)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	logger.Info("mongo initialized", logger.FieldKV("db", db), logger.FieldKV("collection", coll))
	return s, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Ping health check.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("store not initialized")
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// Insert appends one record. The upsert on message_id keeps the insert
// idempotent under datagram duplication.
func (s *Store) Insert(ctx context.Context, rec models.Record) error {
	if s == nil || s.coll == nil {
		return fmt.Errorf("store not initialized")
	}
	filter := bson.M{"message_id": rec.MessageID}
	update := bson.M{"$setOnInsert": rec}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int64) ([]models.Record, error) {
	if s == nil || s.coll == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

// Since returns records stamped at or after ts, oldest first, tie-broken on
// message_id. Inclusive so callers cutting a page inside a timestamp tie can
// pick the tail up on the next call; they dedup on message_id. The timestamp
// layout sorts lexicographically, so a string comparison works.
func (s *Store) Since(ctx context.Context, ts string, limit int64) ([]models.Record, error) {
	if s == nil || s.coll == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "message_id", Value: 1}}).
		SetLimit(limit)
	cur, err := s.coll.Find(ctx, bson.M{"timestamp": bson.M{"$gte": ts}}, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]models.Record, error) {
	defer cur.Close(ctx)
	var out []models.Record
	for cur.Next(ctx) {
		var r models.Record
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, cur.Err()
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "message_id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_message_id")},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}, Options: options.Index().SetName("idx_timestamp")},
	})
	return err
}
