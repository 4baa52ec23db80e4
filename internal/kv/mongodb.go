package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoEntry struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoDBRepository stores one document per key in the kv_entries collection.
type MongoDBRepository struct {
	collection *mongo.Collection
}

// NewMongoDBRepository uses the kv_entries collection of database.
func NewMongoDBRepository(database *mongo.Database) (*MongoDBRepository, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &MongoDBRepository{collection: database.Collection("kv_entries")}, nil
}

func (r *MongoDBRepository) GetRaw(ctx context.Context, key string) ([]byte, error) {
	var entry mongoEntry
	err := r.collection.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return entry.Value, nil
}

func (r *MongoDBRepository) SetRaw(ctx context.Context, key string, value []byte) error {
	entry := mongoEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := r.collection.ReplaceOne(ctx, bson.D{{Key: "_id", Value: key}}, entry,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (r *MongoDBRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: key}}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; the client belongs to storage.
func (r *MongoDBRepository) Close() error { return nil }
