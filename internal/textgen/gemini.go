package textgen

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/firstpro/mock-feedback-service/internal/config"
)

const geminiDefaultModel = "gemini-2.5-flash"

// Gemini generates text through the Google Gen AI SDK.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini API client.
func NewGemini(ctx context.Context, cfg config.GeneratorConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini generator requires GENERATOR_API_KEY")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = geminiDefaultModel
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt Prompt) (Response, error) {
	var genCfg *genai.GenerateContentConfig
	if prompt.System != "" {
		genCfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt.User), genCfg)
	if err != nil {
		return Response{}, fmt.Errorf("GenAI generate failed: %w", err)
	}

	return Response{Text: result.Text(), Model: g.model}, nil
}
