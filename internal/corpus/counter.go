package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/firstpro/mock-feedback-service/internal/config"
	"github.com/firstpro/mock-feedback-service/internal/models"
	"github.com/firstpro/mock-feedback-service/internal/storage"
)

const jsonContentType = "application/json"

// Counter reads and advances the corpus metadata record.
type Counter struct {
	store    storage.ObjectStore
	key      string
	attempts int
	now      func() time.Time
	logger   *zap.Logger
}

// NewCounter creates a counter over the metadata record under cfg.Prefix.
func NewCounter(cfg config.CorpusConfig, store storage.ObjectStore, logger *zap.Logger) *Counter {
	return &Counter{
		store:    store,
		key:      cfg.Prefix + "metadata.json",
		attempts: max(cfg.AdvanceAttempts, 1),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Key returns the object key of the metadata record.
func (c *Counter) Key() string {
	return c.key
}

// Read returns the metadata record, or nil if none has been written yet.
func (c *Counter) Read(ctx context.Context) (*models.CorpusMetadata, error) {
	meta, _, err := c.read(ctx)
	return meta, err
}

// ReadCount returns the stored total, 0 when no metadata exists.
func (c *Counter) ReadCount(ctx context.Context) (int, error) {
	meta, err := c.Read(ctx)
	if err != nil {
		return 0, err
	}
	if meta == nil {
		return 0, nil
	}
	return meta.TotalCount, nil
}

func (c *Counter) read(ctx context.Context) (*models.CorpusMetadata, string, error) {
	obj, err := c.store.Get(ctx, c.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("%w: reading metadata: %w", ErrStorageUnavailable, err)
	}

	var meta models.CorpusMetadata
	if err := json.Unmarshal(obj.Body, &meta); err != nil {
		return nil, "", fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &meta, obj.Version, nil
}

// Advance adds by to the stored total with a conditional write, re-reading
// and retrying when another writer got there first.
func (c *Counter) Advance(ctx context.Context, by int) (*models.CorpusMetadata, error) {
	if by < 1 {
		return nil, fmt.Errorf("advance by %d: must be positive", by)
	}

	for attempt := 1; attempt <= c.attempts; attempt++ {
		current, version, err := c.read(ctx)
		if err != nil {
			return nil, err
		}

		total := 0
		if current != nil {
			total = current.TotalCount
		}
		next := &models.CorpusMetadata{
			TotalCount:  total + by,
			LastUpdated: c.now(),
		}

		body, err := json.MarshalIndent(next, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}

		_, err = c.store.PutIfMatch(ctx, c.key, body, jsonContentType, version)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, storage.ErrVersionMismatch) {
			return nil, fmt.Errorf("failed to write metadata: %w", err)
		}

		c.logger.Warn("metadata changed during advance, retrying",
			zap.Int("attempt", attempt),
			zap.Int("by", by))
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrAdvanceConflict, c.attempts)
}
