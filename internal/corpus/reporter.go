package corpus

import (
	"context"
	"fmt"

	"github.com/firstpro/mock-feedback-service/internal/config"
	"github.com/firstpro/mock-feedback-service/internal/models"
	"github.com/firstpro/mock-feedback-service/internal/storage"
)

// Reporter answers read-only questions about the corpus.
type Reporter struct {
	counter      *Counter
	store        storage.ObjectStore
	recordPrefix string
	target       int
	listLimit    int
}

func NewReporter(cfg config.CorpusConfig, store storage.ObjectStore, counter *Counter) *Reporter {
	return &Reporter{
		counter:      counter,
		store:        store,
		recordPrefix: RecordPrefix(cfg),
		target:       cfg.TargetSize,
		listLimit:    cfg.ListLimit,
	}
}

// Progress reports the stored total against the target size.
func (r *Reporter) Progress(ctx context.Context) (*models.Progress, error) {
	meta, err := r.counter.Read(ctx)
	if err != nil {
		return nil, err
	}

	if meta == nil {
		return &models.Progress{Count: 0, Percent: FormatPercent(0, r.target), Target: r.target, Empty: true}, nil
	}

	lastUpdated := meta.LastUpdated
	return &models.Progress{
		Count:       meta.TotalCount,
		Percent:     FormatPercent(meta.TotalCount, r.target),
		LastUpdated: &lastUpdated,
		Target:      r.target,
	}, nil
}

// FormatPercent renders count/target as a percentage with two decimals,
// e.g. 250 of 1000 is "25.00%".
func FormatPercent(count, target int) string {
	return fmt.Sprintf("%.2f%%", float64(count)/float64(target)*100)
}

// List returns the stored record keys, at most the configured limit, in the
// store's order.
func (r *Reporter) List(ctx context.Context) (*models.Listing, error) {
	keys, err := r.store.List(ctx, r.recordPrefix, r.listLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	if keys == nil {
		keys = []string{}
	}
	return &models.Listing{Count: len(keys), Files: keys}, nil
}

// Verify compares the metadata total with the record objects present. It
// never modifies either.
func (r *Reporter) Verify(ctx context.Context) (*models.Drift, error) {
	total, err := r.counter.ReadCount(ctx)
	if err != nil {
		return nil, err
	}

	limit := max(total, r.listLimit) + 1
	keys, err := r.store.List(ctx, r.recordPrefix, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	return &models.Drift{
		MetadataCount: total,
		StoredCount:   len(keys),
		Truncated:     len(keys) == limit,
	}, nil
}
