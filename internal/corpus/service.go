package corpus

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/firstpro/mock-feedback-service/internal/config"
	"github.com/firstpro/mock-feedback-service/internal/models"
	"github.com/firstpro/mock-feedback-service/internal/storage"
	"github.com/firstpro/mock-feedback-service/internal/textgen"
)

// Service handles batch generation and corpus reporting
type Service struct {
	counter   *Counter
	generator *Generator
	writer    *Writer
	reporter  *Reporter
	logger    *zap.Logger
}

// NewService wires the corpus components over a store and a text generator
func NewService(cfg *config.Config, store storage.ObjectStore, tg textgen.Generator, logger *zap.Logger) *Service {
	counter := NewCounter(cfg.Corpus, store, logger)
	prompts := NewPromptBuilder(cfg.Generator, cfg.Corpus.TargetSize)

	return &Service{
		counter:   counter,
		generator: NewGenerator(counter, tg, prompts, cfg.Corpus.DefaultBatch, cfg.Corpus.MaxBatch, cfg.Generator.Concurrency, logger),
		writer:    NewWriter(cfg.Corpus, store, counter, logger),
		reporter:  NewReporter(cfg.Corpus, store, counter),
		logger:    logger,
	}
}

// Generate produces and persists one batch. A failed response does not
// guarantee zero side effects: records written before a persistence or
// counter failure stay in the store.
func (s *Service) Generate(ctx context.Context, count int) (*models.BatchResult, error) {
	batch, err := s.generator.Generate(ctx, count)
	if err != nil {
		return nil, fmt.Errorf("failed to generate batch: %w", err)
	}

	meta, err := s.writer.Persist(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to store batch: %w", err)
	}

	s.logger.Info("batch committed",
		zap.Int("generated", len(batch.Records)),
		zap.Int("first_id", batch.Base+1),
		zap.Int("total_count", meta.TotalCount))

	return &models.BatchResult{
		Generated:  len(batch.Records),
		TotalCount: meta.TotalCount,
		Feedbacks:  batch.Records,
	}, nil
}

// Progress reports completion against the target size
func (s *Service) Progress(ctx context.Context) (*models.Progress, error) {
	return s.reporter.Progress(ctx)
}

// List returns stored record keys
func (s *Service) List(ctx context.Context) (*models.Listing, error) {
	return s.reporter.List(ctx)
}

// Verify reports drift between the metadata total and stored records
func (s *Service) Verify(ctx context.Context) (*models.Drift, error) {
	return s.reporter.Verify(ctx)
}
