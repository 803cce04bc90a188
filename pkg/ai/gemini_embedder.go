package ai

import (
	"context"
	"fmt"
	"strings"
)

const defaultGeminiEmbeddingModel = "gemini-embedding-001"

// GeminiEmbedder wraps GeminiClient with a fixed embedding model.
type GeminiEmbedder struct {
	client *GeminiClient
	model  string
}

// NewGeminiEmbedder builds a Gemini-based embedder. Returns
// ErrEmbeddingUnavailable when the API key is absent.
func NewGeminiEmbedder(apiKey, model string) (*GeminiEmbedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: %w", ErrEmbeddingUnavailable)
	}
	client, err := NewGeminiClient(apiKey)
	if err != nil {
		return nil, err
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

// EmbedTexts implements Embedder using the Gemini batch embedding endpoint.
func (e *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	return e.client.EmbedTexts(ctx, e.model, texts, taskType)
}
