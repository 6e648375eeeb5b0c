package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/firstpro/mock-feedback-service/internal/config"
)

// MongoDBStorage implements ObjectStore with one document per key
type MongoDBStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoObject struct {
	Key         string `bson:"_id"`
	Body        []byte `bson:"body"`
	ContentType string `bson:"content_type"`
	Version     string `bson:"version"`
}

// NewMongoDBStorage connects to MongoDB and verifies the connection
func NewMongoDBStorage(ctx context.Context, cfg config.StorageConfig) (*MongoDBStorage, error) {
	if cfg.MongoDBURI == "" {
		return nil, fmt.Errorf("mongodb storage requires MONGODB_URI")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBStorage{
		client:     client,
		collection: client.Database(cfg.MongoDBName).Collection(cfg.TableName),
	}, nil
}

func (m *MongoDBStorage) Get(ctx context.Context, key string) (*Object, error) {
	var doc mongoObject
	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}

	return &Object{
		Key:         doc.Key,
		Body:        doc.Body,
		ContentType: doc.ContentType,
		Version:     doc.Version,
	}, nil
}

func (m *MongoDBStorage) Put(ctx context.Context, key string, body []byte, contentType string) error {
	doc := mongoObject{Key: key, Body: body, ContentType: contentType, Version: uuid.NewString()}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store object %s: %w", key, err)
	}
	return nil
}

func (m *MongoDBStorage) PutIfMatch(ctx context.Context, key string, body []byte, contentType, version string) (string, error) {
	next := uuid.NewString()

	if version == "" {
		_, err := m.collection.InsertOne(ctx, mongoObject{Key: key, Body: body, ContentType: contentType, Version: next})
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return "", ErrVersionMismatch
			}
			return "", fmt.Errorf("failed to store object %s: %w", key, err)
		}
		return next, nil
	}

	result, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": key, "version": version},
		bson.M{"$set": bson.M{"body": body, "content_type": contentType, "version": next}},
	)
	if err != nil {
		return "", fmt.Errorf("failed to store object %s: %w", key, err)
	}
	if result.MatchedCount == 0 {
		return "", ErrVersionMismatch
	}
	return next, nil
}

func (m *MongoDBStorage) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	filter := bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"_id": 1})

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
	}
	defer cursor.Close(ctx)

	keys := make([]string, 0)
	for cursor.Next(ctx) {
		var doc struct {
			Key string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode key: %w", err)
		}
		keys = append(keys, doc.Key)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}

	return keys, nil
}

func (m *MongoDBStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
