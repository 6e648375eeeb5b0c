// Package textgen adapts generative-text backends to a single request and
// response shape.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/firstpro/mock-feedback-service/internal/config"
)

// Prompt is a single-turn request: a system instruction plus the user
// instruction.
type Prompt struct {
	System string
	User   string
}

// Response is the normalized result of a generation call. Adapters unwrap
// whatever envelope their backend uses into Text.
type Response struct {
	Text  string
	Model string
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (Response, error)
}

// Func adapts a plain function to the Generator interface.
type Func func(ctx context.Context, prompt Prompt) (Response, error)

func (f Func) Generate(ctx context.Context, prompt Prompt) (Response, error) {
	return f(ctx, prompt)
}

// New builds the Generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.GeneratorConfig) (Generator, error) {
	switch cfg.Provider {
	case "cloudflare":
		return NewCloudflare(cfg)
	case "ollama":
		return NewOllama(cfg), nil
	case "openai":
		return NewOpenAI(cfg)
	case "gemini":
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported generator provider: %s", cfg.Provider)
	}
}

// message is the chat message shape shared by the HTTP backends.
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func chatMessages(p Prompt) []message {
	msgs := make([]message, 0, 2)
	if p.System != "" {
		msgs = append(msgs, message{Role: "system", Content: p.System})
	}
	return append(msgs, message{Role: "user", Content: p.User})
}

// StatusError is returned when a backend answers with a non-200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

const defaultInitialBackoff = 500 * time.Millisecond

// jsonClient posts JSON and retries only on HTTP 429.
type jsonClient struct {
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
}

func newJSONClient(cfg config.GeneratorConfig) jsonClient {
	return jsonClient{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		maxRetries:     max(cfg.RetryCount, 1),
		initialBackoff: defaultInitialBackoff,
	}
}

func (c jsonClient) post(ctx context.Context, url string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range c.maxRetries {
		err := c.postOnce(ctx, url, headers, body, out)
		if err == nil {
			return nil
		}

		statusErr, ok := err.(*StatusError)
		if !ok || statusErr.Code != http.StatusTooManyRequests {
			return err
		}

		lastErr = err
		if attempt < c.maxRetries-1 {
			backoff := time.Duration(float64(c.initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("rate limited after %d attempts: %w", c.maxRetries, lastErr)
}

func (c jsonClient) postOnce(ctx context.Context, url string, headers map[string]string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
