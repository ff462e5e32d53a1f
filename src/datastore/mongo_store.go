package datastore

import (
	"context"
	"errors"
	"fmt"

	"sevr/src/engine"
	"sevr/src/settings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// MongoStore is the DocumentStore backed by a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.SugaredLogger
}

var _ engine.DocumentStore = (*MongoStore)(nil)

// MongoURI builds the connection string for conn. Credentials are applied
// separately through options.Credential.
func MongoURI(conn settings.Connection) string {
	return fmt.Sprintf("mongodb://%s:%d/%s", conn.Host, conn.Port, conn.Database)
}

// ConnectMongo dials the configured server and verifies it with a ping.
func ConnectMongo(ctx context.Context, conn settings.Connection, logger *zap.SugaredLogger) (*MongoStore, error) {
	opts := options.Client().ApplyURI(MongoURI(conn))
	if conn.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   conn.Username,
			Password:   conn.Password,
			AuthSource: conn.Database,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if logger != nil {
		logger.Infof("Connected to MongoDB at %s:%d/%s", conn.Host, conn.Port, conn.Database)
	}
	return NewMongoStore(client, client.Database(conn.Database), logger), nil
}

// NewMongoStore wraps an already connected database.
func NewMongoStore(client *mongo.Client, db *mongo.Database, logger *zap.SugaredLogger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MongoStore{client: client, db: db, logger: logger}
}

// Database returns the underlying database handle.
func (s *MongoStore) Database() *mongo.Database {
	return s.db
}

func (s *MongoStore) UpsertFields(ctx context.Context, collection string, id interface{}, set bson.M) error {
	update := bson.M{"$set": set}
	if len(set) == 0 {
		// $set rejects an empty document
		update = bson.M{"$setOnInsert": bson.M{"_id": id}}
	}

	_, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": id},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert into '%s': %w", collection, err)
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, collection string, id interface{}, out interface{}) error {
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return engine.ErrDocumentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read from '%s': %w", collection, err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	s.logger.Info("Disconnected from MongoDB")
	return nil
}
