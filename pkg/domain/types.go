package domain

import "time"

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Message roles within a chat session.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Document is a source file accepted for indexing. Status only moves
// processing -> ready or processing -> failed, never back.
type Document struct {
	ID               string         `json:"id"`
	OriginalFilename string         `json:"originalFilename"`
	MediaType        string         `json:"mediaType"`
	SizeBytes        int64          `json:"sizeBytes"`
	StorageKey       string         `json:"-"`
	Status           DocumentStatus `json:"status"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Chunk is one indexed passage of a document, immutable once written.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"documentId"`
	Text       string            `json:"text"`
	Embedding  []float32         `json:"-"`
	Metadata   map[string]string `json:"metadata"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// ChatSession is one conversation thread, scoped to exactly one user.
type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one turn within a session, immutable once appended.
// Seq is assigned by the store and is strictly increasing per session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"-"`
	Seq       int       `json:"-"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ContextChunk is a retrieved passage handed to the answer generator.
type ContextChunk struct {
	Text       string            `json:"text"`
	DocumentID string            `json:"documentId"`
	Metadata   map[string]string `json:"metadata"`
}

// Citation links a generated answer back to one supplied context chunk.
// Citations are numbered 1..N over the context set, independent of whether
// the model's text actually referenced the source.
type Citation struct {
	SourceID   int               `json:"sourceId"`
	DocumentID string            `json:"documentId,omitempty"`
	Metadata   map[string]string `json:"metadata"`
}
