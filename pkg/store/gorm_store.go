package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"mastewalai/pkg/domain"
)

const migrateLockID int64 = 52460137

const defaultEmbeddingDim = 1024

type GormStoreOptions struct {
	EmbeddingDim int
}

type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the embedding dimension of the chunk vector column.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// GormStore implements Store using GORM + Postgres with pgvector.
type GormStore struct {
	db             *gorm.DB
	embeddingDim   int
	vectorDisabled bool
}

// NewGormStore opens the DB and runs idempotent migrations. When the pgvector
// extension cannot be installed, the store comes up without the vector column
// and similarity search reports ErrVectorIndexUnsupported.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{EmbeddingDim: defaultEmbeddingDim}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	if opts.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension: %d", opts.EmbeddingDim)
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	store := &GormStore{db: db, embeddingDim: opts.EmbeddingDim}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		return store.migrate(tx)
	}); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *GormStore) migrate(tx *gorm.DB) error {
	if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		slog.Warn("pgvector extension unavailable, similarity search disabled", "err", err)
		s.vectorDisabled = true
	}
	models := []any{&DocumentModel{}, &ChatSessionModel{}, &MessageModel{}}
	if s.vectorDisabled {
		models = append(models, &chunkPlainModel{})
	} else {
		models = append(models, &ChunkModel{})
	}
	if err := tx.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if !s.vectorDisabled {
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'chunks' AND column_name = 'embedding'
			) THEN
				ALTER TABLE chunks ALTER COLUMN embedding TYPE vector(%d);
			END IF;
			END $$;
		`, s.embeddingDim)).Error; err != nil {
			return fmt.Errorf("alter chunk embedding type: %w", err)
		}
	}
	if err := tx.Exec(`
		DO $$
		BEGIN
			DELETE FROM chunks c
			WHERE NOT EXISTS (SELECT 1 FROM documents d WHERE d.id = c.document_id);
			DELETE FROM messages m
			WHERE NOT EXISTS (SELECT 1 FROM chat_sessions s WHERE s.id = m.session_id);
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'chunks'
				AND constraint_name = 'chunks_document_id_fkey'
			) THEN
				ALTER TABLE chunks
				ADD CONSTRAINT chunks_document_id_fkey
				FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE;
			END IF;
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'messages'
				AND constraint_name = 'messages_session_id_fkey'
			) THEN
				ALTER TABLE messages
				ADD CONSTRAINT messages_session_id_fkey
				FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE;
			END IF;
		END $$;
	`).Error; err != nil {
		return fmt.Errorf("ensure foreign keys: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveDocument stores or updates a document.
func (s *GormStore) SaveDocument(d domain.Document) error {
	model := documentToModel(d)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"original_filename", "media_type", "storage_key", "status", "error_message", "size_bytes", "updated_at"}),
	}).Create(&model).Error
}

// SetDocumentStatus updates document status/error.
func (s *GormStore) SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error {
	return s.db.Model(&DocumentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(status),
			"error_message": errMsg,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// GetDocument retrieves a document by id.
func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListDocuments returns all documents, newest first.
func (s *GormStore) ListDocuments() ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(models))
	for _, m := range models {
		docs = append(docs, documentFromModel(m))
	}
	return docs, nil
}

// DeleteDocument removes a document and all of its chunks.
func (s *GormStore) DeleteDocument(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		// Both chunk model variants map to the same table.
		if err := tx.Delete(&chunkPlainModel{}, "document_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&DocumentModel{}, "id = ?", id).Error
	})
}

// InsertChunk persists one chunk and returns its id.
func (s *GormStore) InsertChunk(chunk domain.Chunk) (string, error) {
	meta, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal chunk metadata: %w", err)
	}
	if s.vectorDisabled {
		model := chunkPlainModel{
			ID:         chunk.ID,
			DocumentID: chunk.DocumentID,
			Text:       chunk.Text,
			Metadata:   meta,
			CreatedAt:  chunk.CreatedAt,
		}
		if err := s.db.Create(&model).Error; err != nil {
			return "", err
		}
		return model.ID, nil
	}
	model := ChunkModel{
		ID:         chunk.ID,
		DocumentID: chunk.DocumentID,
		Text:       chunk.Text,
		Metadata:   meta,
		CreatedAt:  chunk.CreatedAt,
	}
	if len(chunk.Embedding) > 0 {
		vec := pgvector.NewVector(chunk.Embedding)
		model.Embedding = &vec
	}
	if err := s.db.Create(&model).Error; err != nil {
		return "", err
	}
	return model.ID, nil
}

// DeleteChunksByDocument removes all chunks of a document and returns the
// number deleted.
func (s *GormStore) DeleteChunksByDocument(documentID string) (int64, error) {
	res := s.db.Delete(&chunkPlainModel{}, "document_id = ?", documentID)
	return res.RowsAffected, res.Error
}

// SearchChunksByEmbedding finds the nearest chunks by cosine distance.
// Returns ErrVectorIndexUnsupported when the database cannot run the query.
func (s *GormStore) SearchChunksByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.Chunk, error) {
	if limit <= 0 || len(embedding) == 0 {
		return []domain.Chunk{}, nil
	}
	if s.vectorDisabled {
		return nil, ErrVectorIndexUnsupported
	}
	vec := pgvector.NewVector(embedding)
	var models []ChunkModel
	if err := s.db.WithContext(ctx).Model(&ChunkModel{}).
		Where("embedding IS NOT NULL").
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}).
		Limit(limit).
		Find(&models).Error; err != nil {
		if isVectorUnsupported(err) {
			return nil, fmt.Errorf("%w: %v", ErrVectorIndexUnsupported, err)
		}
		return nil, err
	}
	return chunksFromModels(models), nil
}

// SearchChunksByPattern returns the most recent chunks whose text matches the
// case-insensitive POSIX regex pattern.
func (s *GormStore) SearchChunksByPattern(ctx context.Context, pattern string, limit int) ([]domain.Chunk, error) {
	if limit <= 0 || pattern == "" {
		return []domain.Chunk{}, nil
	}
	var models []ChunkModel
	query := s.db.WithContext(ctx).Table("chunks").
		Select("id", "document_id", "text", "metadata", "created_at").
		Where("text ~* ?", pattern).
		Order("created_at DESC").
		Limit(limit)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return chunksFromModels(models), nil
}

// isVectorUnsupported recognizes Postgres errors raised when the vector type,
// its operators, or the chunks table are missing.
func isVectorUnsupported(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "42704", "42883", "42P01", "0A000":
		return true
	}
	return false
}

// CreateSession creates a new chat session record.
func (s *GormStore) CreateSession(session domain.ChatSession) error {
	model := ChatSessionModel{
		ID:        session.ID,
		UserID:    session.UserID,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
	return s.db.Create(&model).Error
}

// GetSessionForUser returns a session only when it belongs to userID.
// A session owned by another user is reported as not found.
func (s *GormStore) GetSessionForUser(id, userID string) (domain.ChatSession, bool, error) {
	var model ChatSessionModel
	if err := s.db.First(&model, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ChatSession{}, false, nil
		}
		return domain.ChatSession{}, false, err
	}
	return sessionFromModel(model), true, nil
}

// ListSessionsByUser returns the user's sessions, most recently updated first.
func (s *GormStore) ListSessionsByUser(userID string) ([]domain.ChatSession, error) {
	var models []ChatSessionModel
	if err := s.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	sessions := make([]domain.ChatSession, 0, len(models))
	for _, m := range models {
		sessions = append(sessions, sessionFromModel(m))
	}
	return sessions, nil
}

// TouchSession refreshes the session's updated_at timestamp.
func (s *GormStore) TouchSession(id string, at time.Time) error {
	return s.db.Model(&ChatSessionModel{}).Where("id = ?", id).
		Update("updated_at", at.UTC()).Error
}

// AppendMessage records a message with the next sequence number for the
// session.
func (s *GormStore) AppendMessage(sessionID string, msg domain.Message) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var nextSeq int
		if err := tx.Model(&MessageModel{}).
			Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(seq), 0) + 1").
			Scan(&nextSeq).Error; err != nil {
			return err
		}
		model := MessageModel{
			ID:        msg.ID,
			SessionID: sessionID,
			Seq:       nextSeq,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		}
		return tx.Create(&model).Error
	})
}

// ListMessages returns the last limit messages of a session in chronological
// order. A non-positive limit returns the whole history.
func (s *GormStore) ListMessages(sessionID string, limit int) ([]domain.Message, error) {
	query := s.db.Where("session_id = ?", sessionID).Order("seq DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []MessageModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, messageFromModel(models[i]))
	}
	return msgs, nil
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:               d.ID,
		OriginalFilename: d.OriginalFilename,
		MediaType:        d.MediaType,
		StorageKey:       d.StorageKey,
		Status:           string(d.Status),
		ErrorMessage:     d.ErrorMessage,
		SizeBytes:        d.SizeBytes,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:               m.ID,
		OriginalFilename: m.OriginalFilename,
		MediaType:        m.MediaType,
		StorageKey:       m.StorageKey,
		Status:           domain.DocumentStatus(m.Status),
		ErrorMessage:     m.ErrorMessage,
		SizeBytes:        m.SizeBytes,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func sessionFromModel(m ChatSessionModel) domain.ChatSession {
	return domain.ChatSession{
		ID:        m.ID,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:        m.ID,
		SessionID: m.SessionID,
		Seq:       m.Seq,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func chunksFromModels(models []ChunkModel) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(models))
	for _, model := range models {
		var meta map[string]string
		if len(model.Metadata) > 0 {
			_ = json.Unmarshal(model.Metadata, &meta)
		}
		chunks = append(chunks, domain.Chunk{
			ID:         model.ID,
			DocumentID: model.DocumentID,
			Text:       model.Text,
			Metadata:   meta,
			CreatedAt:  model.CreatedAt,
		})
	}
	return chunks
}
