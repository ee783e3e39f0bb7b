package statestore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/riptide-project/riptide/internal/config"
)

// MongoBackend persists checkpoint documents to Mongo instead of the local
// filesystem, for deployments that run the spider across multiple hosts
// and want a shared (still best-effort) checkpoint store.
type MongoBackend struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoBackend connects using cfg.MongoURI; returns (nil, nil) if no URI
// is configured, since Mongo persistence is optional.
func NewMongoBackend(ctx context.Context, cfg config.StateStoreConfig) (*MongoBackend, error) {
	if cfg.MongoURI == "" {
		return nil, nil
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("statestore: mongo connect: %w", err)
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("statestore: mongo ping: %w", err)
	}
	db := cfg.MongoDatabase
	if db == "" {
		db = "riptide"
	}
	return &MongoBackend{client: client, coll: client.Database(db).Collection("checkpoints")}, nil
}

// SaveCheckpointDoc upserts the on-disk checkpoint envelope under its id.
func (b *MongoBackend) SaveCheckpointDoc(ctx context.Context, onDisk onDiskCheckpoint) error {
	_, err := b.coll.UpdateOne(ctx,
		bson.M{"_id": onDisk.ID},
		bson.M{"$set": bson.M{
			"crc32":      onDisk.CRC32,
			"compressed": onDisk.Compressed,
			"payload":    onDisk.Payload,
			"updated_at": time.Now(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("statestore: mongo save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpointDoc fetches a checkpoint envelope by id.
func (b *MongoBackend) LoadCheckpointDoc(ctx context.Context, id string) (onDiskCheckpoint, error) {
	var doc struct {
		ID         string `bson:"_id"`
		CRC32      uint32 `bson:"crc32"`
		Compressed bool   `bson:"compressed"`
		Payload    []byte `bson:"payload"`
	}
	if err := b.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return onDiskCheckpoint{}, fmt.Errorf("statestore: mongo load checkpoint: %w", err)
	}
	return onDiskCheckpoint{ID: doc.ID, CRC32: doc.CRC32, Compressed: doc.Compressed, Payload: doc.Payload}, nil
}

// Close disconnects the Mongo client.
func (b *MongoBackend) Close(ctx context.Context) error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Disconnect(ctx)
}
