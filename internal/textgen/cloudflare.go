package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firstpro/mock-feedback-service/internal/config"
)

const (
	cloudflareBaseURL      = "https://api.cloudflare.com/client/v4"
	cloudflareDefaultModel = "@cf/meta/llama-3.1-8b-instruct"
)

// Cloudflare calls Workers AI through the REST API.
type Cloudflare struct {
	client    jsonClient
	baseURL   string
	accountID string
	apiToken  string
	model     string
}

// NewCloudflare creates a Workers AI client. An account ID and API token
// are required.
func NewCloudflare(cfg config.GeneratorConfig) (*Cloudflare, error) {
	if cfg.AccountID == "" {
		return nil, fmt.Errorf("cloudflare generator requires CLOUDFLARE_ACCOUNT_ID")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cloudflare generator requires GENERATOR_API_KEY")
	}

	c := &Cloudflare{
		client:    newJSONClient(cfg),
		baseURL:   cloudflareBaseURL,
		accountID: cfg.AccountID,
		apiToken:  cfg.APIKey,
		model:     cfg.Model,
	}
	if cfg.BaseURL != "" {
		c.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if c.model == "" {
		c.model = cloudflareDefaultModel
	}
	return c, nil
}

type cloudflareRequest struct {
	Messages []message `json:"messages"`
}

type cloudflareResponse struct {
	Result  json.RawMessage `json:"result"`
	Success bool            `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Cloudflare) Generate(ctx context.Context, prompt Prompt) (Response, error) {
	url := fmt.Sprintf("%s/accounts/%s/ai/run/%s", c.baseURL, c.accountID, c.model)
	headers := map[string]string{"Authorization": "Bearer " + c.apiToken}

	var out cloudflareResponse
	if err := c.client.post(ctx, url, headers, cloudflareRequest{Messages: chatMessages(prompt)}, &out); err != nil {
		return Response{}, fmt.Errorf("workers ai: %w", err)
	}

	if !out.Success {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, fmt.Sprintf("%d %s", e.Code, e.Message))
		}
		return Response{}, fmt.Errorf("workers ai: request failed: %s", strings.Join(msgs, "; "))
	}

	text, err := unwrapResult(out.Result)
	if err != nil {
		return Response{}, fmt.Errorf("workers ai: %w", err)
	}
	return Response{Text: text, Model: c.model}, nil
}

// unwrapResult accepts either a bare JSON string or an object carrying the
// text under "response".
func unwrapResult(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("empty result")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decoding result: %w", err)
		}
		return s, nil
	}

	var obj struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("decoding result: %w", err)
	}
	if obj.Response == nil {
		return "", fmt.Errorf("result has no response field")
	}
	return *obj.Response, nil
}
