package rag

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mastewalai/internal/util"
	"mastewalai/pkg/ai"
	"mastewalai/pkg/domain"
	"mastewalai/pkg/extract"
	"mastewalai/pkg/storage"
	"mastewalai/pkg/store"
)

// Ingestor runs the document pipeline: extract, clean, chunk, embed, store.
type Ingestor struct {
	store     store.Store
	files     storage.FileStore
	embedder  ai.Embedder
	chunkSize int
	overlap   int
}

func NewIngestor(st store.Store, files storage.FileStore, embedder ai.Embedder) *Ingestor {
	return &Ingestor{
		store:     st,
		files:     files,
		embedder:  embedder,
		chunkSize: extract.DefaultChunkSize,
		overlap:   extract.DefaultChunkOverlap,
	}
}

// IngestUpload registers an uploaded file, retains the original bytes, and
// indexes it synchronously. The returned document reflects the final status;
// on pipeline failure the document row survives in failed state and the error
// is returned alongside it.
func (in *Ingestor) IngestUpload(ctx context.Context, filename, mediaType string, data []byte) (domain.Document, int, error) {
	now := time.Now().UTC()
	doc := domain.Document{
		ID:               util.NewID(),
		OriginalFilename: filename,
		MediaType:        mediaType,
		SizeBytes:        int64(len(data)),
		StorageKey:       storageKey(filename, now),
		Status:           domain.StatusProcessing,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := in.files.Put(ctx, doc.StorageKey, data, mediaType); err != nil {
		return domain.Document{}, 0, fmt.Errorf("retain original file: %w", err)
	}
	if err := in.store.SaveDocument(doc); err != nil {
		return domain.Document{}, 0, fmt.Errorf("save document: %w", err)
	}

	count, err := in.run(ctx, doc, data)
	if err != nil {
		doc.Status = domain.StatusFailed
		doc.ErrorMessage = err.Error()
		if stErr := in.store.SetDocumentStatus(doc.ID, domain.StatusFailed, err.Error()); stErr != nil {
			slog.Error("mark document failed", "documentId", doc.ID, "err", stErr)
		}
		return doc, 0, err
	}
	doc.Status = domain.StatusReady
	doc.ErrorMessage = ""
	if err := in.store.SetDocumentStatus(doc.ID, domain.StatusReady, ""); err != nil {
		return doc, count, fmt.Errorf("mark document ready: %w", err)
	}
	return doc, count, nil
}

// Reindex rebuilds a document's chunks from the retained original file.
// Existing chunks are dropped first so a successful run fully replaces them.
func (in *Ingestor) Reindex(ctx context.Context, documentID string) (int, error) {
	doc, ok, err := in.store.GetDocument(documentID)
	if err != nil {
		return 0, fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("document %s not found", documentID)
	}
	data, err := in.files.Get(ctx, doc.StorageKey)
	if err != nil {
		return 0, fmt.Errorf("load original file: %w", err)
	}
	if err := in.store.SetDocumentStatus(doc.ID, domain.StatusProcessing, ""); err != nil {
		return 0, fmt.Errorf("mark document processing: %w", err)
	}
	deleted, err := in.store.DeleteChunksByDocument(doc.ID)
	if err != nil {
		return 0, fmt.Errorf("drop old chunks: %w", err)
	}
	slog.Info("reindexing document", "documentId", doc.ID, "droppedChunks", deleted)

	count, err := in.run(ctx, doc, data)
	if err != nil {
		if stErr := in.store.SetDocumentStatus(doc.ID, domain.StatusFailed, err.Error()); stErr != nil {
			slog.Error("mark document failed", "documentId", doc.ID, "err", stErr)
		}
		return 0, err
	}
	if err := in.store.SetDocumentStatus(doc.ID, domain.StatusReady, ""); err != nil {
		return count, fmt.Errorf("mark document ready: %w", err)
	}
	return count, nil
}

// run executes extract -> clean -> chunk -> embed -> store and returns the
// number of chunks written. Chunks written before a mid-pipeline failure are
// retained; reindexing replaces them wholesale.
func (in *Ingestor) run(ctx context.Context, doc domain.Document, data []byte) (int, error) {
	raw, err := extract.Extract(data, doc.MediaType)
	if err != nil {
		return 0, err
	}
	text := extract.Clean(raw)
	if text == "" {
		return 0, ErrEmptyDocument
	}
	chunks := extract.Split(text, in.chunkSize, in.overlap)
	if len(chunks) == 0 {
		return 0, ErrEmptyDocument
	}

	// One batch call so provider-side ordering guarantees hold for the
	// whole document.
	vectors, err := in.embedder.EmbedTexts(ctx, chunks, ai.TaskRetrievalDocument)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	now := time.Now().UTC()
	for i, text := range chunks {
		chunk := domain.Chunk{
			ID:         util.NewID(),
			DocumentID: doc.ID,
			Text:       text,
			Embedding:  vectors[i],
			Metadata: map[string]string{
				"chunk_index": strconv.Itoa(i),
				"filename":    doc.OriginalFilename,
			},
			CreatedAt: now,
		}
		if _, err := in.store.InsertChunk(chunk); err != nil {
			return 0, fmt.Errorf("store chunk %d: %w", i, err)
		}
	}
	slog.Info("document indexed", "documentId", doc.ID, "chunks", len(chunks))
	return len(chunks), nil
}

// Delete removes a document, its chunks, and the retained original file.
func (in *Ingestor) Delete(ctx context.Context, documentID string) error {
	doc, ok, err := in.store.GetDocument(documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return nil
	}
	if err := in.store.DeleteDocument(documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if doc.StorageKey != "" {
		if err := in.files.Delete(ctx, doc.StorageKey); err != nil {
			slog.Warn("delete original file", "documentId", documentID, "err", err)
		}
	}
	return nil
}

func storageKey(filename string, at time.Time) string {
	base := filepath.Base(filename)
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	return fmt.Sprintf("uploads/%d-%s", at.Unix(), safe)
}
