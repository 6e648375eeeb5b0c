package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/firstpro/mock-feedback-service/internal/config"
)

var (
	// ErrNotFound is returned when no object exists under a key.
	ErrNotFound = errors.New("object not found")
	// ErrVersionMismatch is returned when a conditional write finds a
	// different version than the caller expected.
	ErrVersionMismatch = errors.New("object version mismatch")
)

// Object is a stored blob together with its version token.
type Object struct {
	Key         string
	Body        []byte
	ContentType string
	// Version is opaque to callers; it is only meaningful when handed back
	// to PutIfMatch on the same store.
	Version string
}

// ObjectStore defines the contract for key/value blob storage
type ObjectStore interface {
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
	// PutIfMatch writes only if the stored version equals version, or if
	// no object exists when version is empty. It returns the new version.
	PutIfMatch(ctx context.Context, key string, body []byte, contentType, version string) (string, error)
	// List returns up to limit keys starting with prefix in ascending
	// lexical order.
	List(ctx context.Context, prefix string, limit int) ([]string, error)
	Close() error
}

// NewStorage creates a new object store based on configuration
func NewStorage(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStorage(), nil
	case "s3":
		return NewS3Storage(cfg)
	case "dynamodb":
		return NewDynamoDBStorage(ctx, cfg)
	case "mongodb":
		return NewMongoDBStorage(ctx, cfg)
	case "postgresql":
		return NewPostgreSQLStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
