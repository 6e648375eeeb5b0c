package corpus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/firstpro/mock-feedback-service/internal/models"
	"github.com/firstpro/mock-feedback-service/internal/textgen"
)

// Batch is a set of generated, not yet persisted, records. Base is the
// corpus total the identifiers were allocated from.
type Batch struct {
	Base    int
	Records []models.FeedbackRecord
}

// Generator allocates identifiers from the counter and produces one record
// per identifier.
type Generator struct {
	counter      *Counter
	textgen      textgen.Generator
	prompts      PromptBuilder
	defaultBatch int
	maxBatch     int
	concurrency  int
	now          func() time.Time
	logger       *zap.Logger
}

// NewGenerator creates a Generator. concurrency bounds the number of
// in-flight text generation calls; 1 keeps them strictly sequential.
func NewGenerator(counter *Counter, tg textgen.Generator, prompts PromptBuilder, defaultBatch, maxBatch, concurrency int, logger *zap.Logger) *Generator {
	return &Generator{
		counter:      counter,
		textgen:      tg,
		prompts:      prompts,
		defaultBatch: defaultBatch,
		maxBatch:     maxBatch,
		concurrency:  max(concurrency, 1),
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// Generate builds count records with identifiers following the stored total.
// A non-positive count falls back to the default batch size; a count above
// the maximum batch size is rejected with ErrBatchTooLarge. Records come
// back ordered by identifier. If any generation call fails the batch is
// dropped and a *GenerationError is returned.
func (g *Generator) Generate(ctx context.Context, count int) (*Batch, error) {
	if count < 1 {
		count = g.defaultBatch
	}
	if count > g.maxBatch {
		return nil, fmt.Errorf("%w: %d records requested, at most %d allowed", ErrBatchTooLarge, count, g.maxBatch)
	}

	base, err := g.counter.ReadCount(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]models.FeedbackRecord, count)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(g.concurrency)

	for i := range count {
		id := base + i + 1
		group.Go(func() error {
			// An earlier item already failed.
			if err := gctx.Err(); err != nil {
				return err
			}

			resp, err := g.textgen.Generate(gctx, g.prompts.Build(id))
			if err != nil {
				return &GenerationError{ID: id, Err: err}
			}

			records[i] = models.FeedbackRecord{
				ID:        id,
				Text:      strings.TrimSpace(resp.Text),
				CreatedAt: g.now(),
			}
			g.logger.Debug("generated feedback", zap.Int("id", id), zap.String("model", resp.Model))
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return &Batch{Base: base, Records: records}, nil
}
