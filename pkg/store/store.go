package store

import (
	"context"
	"errors"
	"time"

	"mastewalai/pkg/domain"
)

// ErrVectorIndexUnsupported reports that the underlying database cannot run
// vector similarity search (pgvector extension or operator missing). Callers
// treat it as an empty result and fall back to lexical retrieval; it is never
// fatal.
var ErrVectorIndexUnsupported = errors.New("vector index unsupported")

// Store defines persistence for documents, chunks, and chat sessions.
type Store interface {
	// documents
	SaveDocument(domain.Document) error
	SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error
	GetDocument(id string) (domain.Document, bool, error)
	ListDocuments() ([]domain.Document, error)
	DeleteDocument(id string) error

	// chunks
	InsertChunk(domain.Chunk) (string, error)
	DeleteChunksByDocument(documentID string) (int64, error)
	SearchChunksByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.Chunk, error)
	SearchChunksByPattern(ctx context.Context, pattern string, limit int) ([]domain.Chunk, error)

	// chat sessions
	CreateSession(domain.ChatSession) error
	GetSessionForUser(id, userID string) (domain.ChatSession, bool, error)
	ListSessionsByUser(userID string) ([]domain.ChatSession, error)
	TouchSession(id string, at time.Time) error
	AppendMessage(sessionID string, msg domain.Message) error
	ListMessages(sessionID string, limit int) ([]domain.Message, error)
}
