package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://127.0.0.1:11434"

// OllamaClient calls the Ollama HTTP API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient constructs a client with the provided base URL.
func NewOllamaClient(baseURL string) *OllamaClient {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &OllamaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// EmbedTexts generates embeddings for a batch of texts via /api/embed.
// The endpoint returns one embedding per input in order.
func (c *OllamaClient) EmbedTexts(ctx context.Context, model string, texts []string, dimensions int) ([][]float32, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("ollama embedding model required")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	reqBody := ollamaEmbedRequest{
		Model: model,
		Input: texts,
	}
	if dimensions > 0 {
		reqBody.Dimensions = dimensions
	}
	var resp ollamaEmbedResponse
	if err := c.doJSON(ctx, "/api/embed", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (c *OllamaClient) doJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp ollamaErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return &RequestError{
			Backend: "ollama",
			Status:  resp.StatusCode,
			Message: errResp.Error,
		}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type ollamaEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// OllamaEmbedder wraps OllamaClient with a fixed model and dimension.
type OllamaEmbedder struct {
	client     *OllamaClient
	model      string
	dimensions int
}

// NewOllamaEmbedder builds an Ollama-based embedder. Ollama needs no
// credentials, so construction never fails on missing keys.
func NewOllamaEmbedder(client *OllamaClient, model string, dimensions int) *OllamaEmbedder {
	return &OllamaEmbedder{client: client, model: model, dimensions: dimensions}
}

// EmbedTexts implements Embedder using Ollama. Ollama has no task-type
// parameter; the role is accepted and ignored.
func (e *OllamaEmbedder) EmbedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	return e.client.EmbedTexts(ctx, e.model, texts, e.dimensions)
}
