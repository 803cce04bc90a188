package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultVoyageBaseURL = "https://api.voyageai.com/v1"
	defaultVoyageModel   = "voyage-4-large"
)

// VoyageEmbedder calls the Voyage AI embeddings API.
type VoyageEmbedder struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewVoyageEmbedder constructs a Voyage-based embedder. Returns
// ErrEmbeddingUnavailable when the API key is absent.
func NewVoyageEmbedder(apiKey, model string) (*VoyageEmbedder, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("voyage: %w", ErrEmbeddingUnavailable)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultVoyageModel
	}
	return &VoyageEmbedder{
		apiKey:     apiKey,
		baseURL:    defaultVoyageBaseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// EmbedTexts embeds a batch of texts, preserving input order. The task type is
// not sent; the current Voyage API rejects a task_type field in the body.
func (v *VoyageEmbedder) EmbedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	reqBody := voyageEmbedRequest{
		Model: v.model,
		Input: texts,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+v.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voyage embeddings: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("voyage embeddings: %w", &RequestError{
			Backend: "voyage",
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(msg)),
		})
	}
	var out voyageEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("voyage embeddings: decode response: %w", err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("voyage embeddings: got %d vectors for %d inputs", len(out.Data), len(texts))
	}
	vectors := make([][]float32, len(texts))
	for i, item := range out.Data {
		idx := item.Index
		if idx < 0 || idx >= len(vectors) {
			idx = i
		}
		vectors[idx] = item.Embedding
	}
	return vectors, nil
}

type voyageEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type voyageEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}
