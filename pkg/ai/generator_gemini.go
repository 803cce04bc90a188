package ai

import (
	"context"
	"fmt"
	"strings"
)

// GeminiGenerator wraps GeminiClient with a fixed model for text generation.
type GeminiGenerator struct {
	client *GeminiClient
	model  string
}

// NewGeminiGenerator builds a Gemini-based TextGenerator. Returns
// ErrGenerationUnavailable when the API key is absent.
func NewGeminiGenerator(apiKey, model string) (*GeminiGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: %w", ErrGenerationUnavailable)
	}
	client, err := NewGeminiClient(apiKey)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("gemini generation model required")
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// GenerateText implements TextGenerator using Gemini.
func (g *GeminiGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.client.GenerateText(ctx, g.model, systemPrompt, userPrompt)
}
