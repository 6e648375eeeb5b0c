package textgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/firstpro/mock-feedback-service/internal/config"
)

const (
	openAIBaseURL      = "https://openrouter.ai/api/v1"
	openAIDefaultModel = "meta-llama/llama-3.1-8b-instruct"
)

// OpenAI calls any OpenAI-compatible /chat/completions endpoint. The default
// base URL is OpenRouter.
type OpenAI struct {
	client  jsonClient
	baseURL string
	apiKey  string
	model   string
}

func NewOpenAI(cfg config.GeneratorConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai generator requires GENERATOR_API_KEY")
	}

	c := &OpenAI{
		client:  newJSONClient(cfg),
		baseURL: openAIBaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
	if cfg.BaseURL != "" {
		c.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if c.model == "" {
		c.model = openAIDefaultModel
	}
	return c, nil
}

type chatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

func (c *OpenAI) Generate(ctx context.Context, prompt Prompt) (Response, error) {
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	req := chatCompletionRequest{Model: c.model, Messages: chatMessages(prompt)}

	var out chatCompletionResponse
	if err := c.client.post(ctx, c.baseURL+"/chat/completions", headers, req, &out); err != nil {
		return Response{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return Response{}, fmt.Errorf("chat completion: no choices returned")
	}

	model := out.Model
	if model == "" {
		model = c.model
	}
	return Response{Text: out.Choices[0].Message.Content, Model: model}, nil
}
