package ai

import "context"

// Embedding task types, matching the retrieval roles of the providers.
const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// Embedder converts texts into fixed-dimension vectors. Implementations must
// preserve input order in the returned batch. The active backend is selected
// once at process start and fixed for the process lifetime.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error)
}

// EmbedDocument embeds a single text with the document retrieval role.
func EmbedDocument(ctx context.Context, e Embedder, text string) ([]float32, error) {
	return embedOne(ctx, e, text, TaskRetrievalDocument)
}

// EmbedQuery embeds a single text with the query retrieval role.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	return embedOne(ctx, e, text, TaskRetrievalQuery)
}

func embedOne(ctx context.Context, e Embedder, text, taskType string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	return vectors[0], nil
}
