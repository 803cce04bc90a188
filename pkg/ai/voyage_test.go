package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewVoyageEmbedderRequiresKey(t *testing.T) {
	_, err := NewVoyageEmbedder("", "")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("NewVoyageEmbedder() error = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestVoyageEmbedTextsPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req voyageEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "voyage-4-large" {
			t.Fatalf("unexpected model %q", req.Model)
		}
		// Return data entries out of order; the client must reorder by index.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0.2, 0.2}},
				{"index": 0, "embedding": []float32{0.1, 0.1}},
			},
		})
	}))
	defer srv.Close()

	embedder := newTestVoyageEmbedder(srv.URL)
	vectors, err := embedder.EmbedTexts(context.Background(), []string{"first", "second"}, TaskRetrievalDocument)
	if err != nil {
		t.Fatalf("EmbedTexts() error = %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if vectors[0][0] != 0.1 || vectors[1][0] != 0.2 {
		t.Fatalf("vectors out of input order: %#v", vectors)
	}
}

func TestVoyageEmbedTextsErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	embedder := newTestVoyageEmbedder(srv.URL)
	_, err := embedder.EmbedTexts(context.Background(), []string{"text"}, TaskRetrievalQuery)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("EmbedTexts() error = %v, want *RequestError", err)
	}
	if reqErr.Status != http.StatusUnauthorized || reqErr.Backend != "voyage" {
		t.Fatalf("unexpected request error: %+v", reqErr)
	}
}

func TestVoyageEmbedTextsCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{0.5}}},
		})
	}))
	defer srv.Close()

	embedder := newTestVoyageEmbedder(srv.URL)
	if _, err := embedder.EmbedTexts(context.Background(), []string{"a", "b"}, TaskRetrievalDocument); err == nil {
		t.Fatal("EmbedTexts() expected error on vector count mismatch")
	}
}

func newTestVoyageEmbedder(baseURL string) *VoyageEmbedder {
	return &VoyageEmbedder{
		apiKey:     "test-key",
		baseURL:    baseURL,
		model:      "voyage-4-large",
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}
