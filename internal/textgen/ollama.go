package textgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/firstpro/mock-feedback-service/internal/config"
)

const (
	ollamaBaseURL      = "http://localhost:11434"
	ollamaDefaultModel = "llama3.1"
)

// Ollama talks to a local Ollama instance over /api/chat.
type Ollama struct {
	client  jsonClient
	baseURL string
	model   string
}

// NewOllama creates a client for the configured Ollama base URL.
func NewOllama(cfg config.GeneratorConfig) *Ollama {
	o := &Ollama{
		client:  newJSONClient(cfg),
		baseURL: ollamaBaseURL,
		model:   cfg.Model,
	}
	if cfg.BaseURL != "" {
		o.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if o.model == "" {
		o.model = ollamaDefaultModel
	}
	return o
}

// ollamaChatRequest is the JSON body for POST /api/chat.
type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// ollamaChatResponse is the JSON returned by POST /api/chat (non-streaming).
type ollamaChatResponse struct {
	Model   string  `json:"model"`
	Message message `json:"message"`
}

func (o *Ollama) Generate(ctx context.Context, prompt Prompt) (Response, error) {
	req := ollamaChatRequest{
		Model:    o.model,
		Messages: chatMessages(prompt),
		Stream:   false,
	}

	var out ollamaChatResponse
	if err := o.client.post(ctx, o.baseURL+"/api/chat", nil, req, &out); err != nil {
		return Response{}, fmt.Errorf("ollama chat: %w", err)
	}

	model := out.Model
	if model == "" {
		model = o.model
	}
	return Response{Text: out.Message.Content, Model: model}, nil
}
