package corpus

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/firstpro/mock-feedback-service/internal/config"
	"github.com/firstpro/mock-feedback-service/internal/models"
	"github.com/firstpro/mock-feedback-service/internal/storage"
)

// Writer stores each record of a batch under its own key and then advances
// the counter once. Writes are not transactional: a failure leaves earlier
// records of the batch in place and the counter untouched.
type Writer struct {
	store    storage.ObjectStore
	counter  *Counter
	prefix   string
	keyWidth int
	logger   *zap.Logger
}

func NewWriter(cfg config.CorpusConfig, store storage.ObjectStore, counter *Counter, logger *zap.Logger) *Writer {
	return &Writer{
		store:    store,
		counter:  counter,
		prefix:   RecordPrefix(cfg),
		keyWidth: cfg.KeyWidth,
		logger:   logger,
	}
}

// RecordPrefix is the key prefix shared by all record objects.
func RecordPrefix(cfg config.CorpusConfig) string {
	return cfg.Prefix + "feedback_"
}

// RecordKey returns the object key for a record identifier, e.g.
// mock_feedback/feedback_0042.json.
func (w *Writer) RecordKey(id int) string {
	return fmt.Sprintf("%s%0*d.json", w.prefix, w.keyWidth, id)
}

// Persist writes every record and then advances the counter by the batch
// size. An error from the final advance means the records are stored but
// not counted.
func (w *Writer) Persist(ctx context.Context, batch *Batch) (*models.CorpusMetadata, error) {
	if len(batch.Records) == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	for _, record := range batch.Records {
		body, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return nil, &PersistenceError{ID: record.ID, Err: err}
		}
		if err := w.store.Put(ctx, w.RecordKey(record.ID), body, jsonContentType); err != nil {
			return nil, &PersistenceError{ID: record.ID, Err: err}
		}
	}

	meta, err := w.counter.Advance(ctx, len(batch.Records))
	if err != nil {
		w.logger.Error("records stored but counter not advanced",
			zap.Int("base", batch.Base),
			zap.Int("count", len(batch.Records)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to advance counter: %w", err)
	}

	return meta, nil
}
