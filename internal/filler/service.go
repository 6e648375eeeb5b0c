package filler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/firstpro/mock-feedback-service/internal/config"
	"github.com/firstpro/mock-feedback-service/internal/models"
)

// Service drives a running feedback server until the corpus reaches the
// target size
type Service struct {
	config     config.FillConfig
	target     int
	httpClient *http.Client
	logger     *zap.Logger
}

// Report summarizes a fill run
type Report struct {
	Batches    int
	StartCount int
	FinalCount int
}

type generateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	models.BatchResult
}

// NewService creates a new fill service
func NewService(cfg config.FillConfig, target int, logger *zap.Logger) *Service {
	return &Service{
		config: cfg,
		target: target,
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Run requests batches of at most BatchSize until the server reports the
// target total. It stops at the first failed batch; generate calls are
// never retried since a failed one may still have stored records.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	current, err := s.fetchCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}

	report := &Report{StartCount: current, FinalCount: current}
	s.logger.Info("current progress", zap.Int("count", current), zap.Int("target", s.target))

	remaining := s.target - current
	for remaining > 0 {
		toGenerate := min(s.config.BatchSize, remaining)
		report.Batches++

		s.logger.Info("requesting batch", zap.Int("batch", report.Batches), zap.Int("count", toGenerate))
		result, err := s.generateOnce(ctx, toGenerate)
		if err != nil {
			return report, fmt.Errorf("batch %d failed: %w", report.Batches, err)
		}
		if result.Generated < 1 {
			return report, fmt.Errorf("batch %d generated no records", report.Batches)
		}

		report.FinalCount = result.TotalCount
		remaining = s.target - result.TotalCount
		s.logger.Info("batch done",
			zap.Int("generated", result.Generated),
			zap.Int("total", result.TotalCount),
			zap.Int("target", s.target))

		if remaining > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(s.config.Delay):
			}
		}
	}

	final, err := s.fetchCount(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to read final progress: %w", err)
	}
	report.FinalCount = final
	return report, nil
}

// fetchCount reads the corpus total with retry logic
func (s *Service) fetchCount(ctx context.Context) (int, error) {
	var lastErr error
	attempts := max(s.config.RetryCount, 1)

	for attempt := 0; attempt < attempts; attempt++ {
		count, err := s.fetchCountOnce(ctx)
		if err == nil {
			return count, nil
		}

		lastErr = err
		if attempt < attempts-1 {
			waitTime := time.Duration(attempt+1) * time.Second
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	return 0, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// fetchCountOnce performs a single progress request. Only the count is read
// because an empty corpus reports progress as a number, not a string.
func (s *Service) fetchCountOnce(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url("/progress"), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response body: %w", err)
	}

	var progress struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &progress); err != nil {
		return 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return progress.Count, nil
}

// generateOnce posts one generate request
func (s *Service) generateOnce(ctx context.Context, count int) (*models.BatchResult, error) {
	payload, err := json.Marshal(models.GenerationRequest{Count: count})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url("/generate"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result generateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("API returned status %d: failed to unmarshal response: %w", resp.StatusCode, err)
	}
	if !result.Success {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, result.Error)
	}

	return &result.BatchResult, nil
}

func (s *Service) url(path string) string {
	return strings.TrimRight(s.config.APIEndpoint, "/") + path
}
