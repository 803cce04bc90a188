package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"mastewalai/pkg/ai"
	"mastewalai/pkg/domain"
	"mastewalai/pkg/store"
)

// DefaultTopK is the number of context chunks retrieved per query.
const DefaultTopK = 8

var wordPattern = regexp.MustCompile(`[a-z0-9']{3,}`)

// Common words that carry no retrieval signal when building the lexical
// fallback pattern.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "book": {},
	"price": {}, "how": {}, "much": {}, "what": {}, "are": {}, "can": {},
	"is": {}, "about": {},
}

// Retriever finds the chunks most relevant to a query. Vector similarity is
// the primary path; when the store cannot run it, or it returns nothing, a
// keyword regex search takes over.
type Retriever struct {
	store    store.Store
	embedder ai.Embedder
	topK     int

	warnOnce sync.Once
}

func NewRetriever(st store.Store, embedder ai.Embedder) *Retriever {
	return &Retriever{store: st, embedder: embedder, topK: DefaultTopK}
}

// Retrieve returns up to topK context chunks for the query. An empty result
// is not an error; the generator answers from conversation context alone.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.ContextChunk, error) {
	chunks, err := r.searchByVector(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		chunks, err = r.searchByKeywords(ctx, query)
		if err != nil {
			return nil, err
		}
	}
	out := make([]domain.ContextChunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, domain.ContextChunk{
			Text:       c.Text,
			DocumentID: c.DocumentID,
			Metadata:   c.Metadata,
		})
	}
	return out, nil
}

func (r *Retriever) searchByVector(ctx context.Context, query string) ([]domain.Chunk, error) {
	vector, err := ai.EmbedQuery(ctx, r.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := r.store.SearchChunksByEmbedding(ctx, vector, r.topK)
	if err != nil {
		if errors.Is(err, store.ErrVectorIndexUnsupported) {
			r.warnOnce.Do(func() {
				slog.Warn("vector search unavailable, using keyword retrieval", "err", err)
			})
			return nil, nil
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return chunks, nil
}

func (r *Retriever) searchByKeywords(ctx context.Context, query string) ([]domain.Chunk, error) {
	pattern := keywordPattern(query)
	if pattern == "" {
		return nil, nil
	}
	chunks, err := r.store.SearchChunksByPattern(ctx, pattern, r.topK)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return chunks, nil
}

// keywordPattern extracts significant terms from the query and joins them
// into an alternation regex. Returns "" when nothing significant remains.
func keywordPattern(query string) string {
	words := wordPattern.FindAllString(strings.ToLower(query), -1)
	seen := make(map[string]struct{}, len(words))
	var terms []string
	for _, w := range words {
		if _, skip := stopwords[w]; skip {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, regexp.QuoteMeta(w))
	}
	return strings.Join(terms, "|")
}
