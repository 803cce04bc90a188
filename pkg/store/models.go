package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// GORM models used for persistence.
type DocumentModel struct {
	ID               string `gorm:"primaryKey"`
	OriginalFilename string `gorm:"not null"`
	MediaType        string `gorm:"not null"`
	StorageKey       string
	Status           string `gorm:"not null"`
	ErrorMessage     string
	SizeBytes        int64     `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (DocumentModel) TableName() string { return "documents" }

type ChunkModel struct {
	ID         string           `gorm:"primaryKey"`
	DocumentID string           `gorm:"not null;index"`
	Text       string           `gorm:"type:text;not null"`
	Metadata   datatypes.JSON   `gorm:"type:jsonb"`
	Embedding  *pgvector.Vector `gorm:"type:vector(1024)"`
	CreatedAt  time.Time        `gorm:"not null;index"`
}

func (ChunkModel) TableName() string { return "chunks" }

// chunkPlainModel mirrors ChunkModel without the vector column, used when the
// pgvector extension is unavailable so the rest of the system keeps working
// on lexical retrieval alone.
type chunkPlainModel struct {
	ID         string         `gorm:"primaryKey"`
	DocumentID string         `gorm:"not null;index"`
	Text       string         `gorm:"type:text;not null"`
	Metadata   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null;index"`
}

func (chunkPlainModel) TableName() string { return "chunks" }

type ChatSessionModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

func (ChatSessionModel) TableName() string { return "chat_sessions" }

type MessageModel struct {
	ID        string    `gorm:"primaryKey"`
	SessionID string    `gorm:"not null;index"`
	Seq       int       `gorm:"not null"`
	Role      string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (MessageModel) TableName() string { return "messages" }
