package store

import (
	"context"
	"math"
	"regexp"
	"sort"
	"sync"
	"time"

	"mastewalai/pkg/domain"
)

// MemoryStore is an in-memory Store used in tests and local development. It
// ranks embeddings by cosine similarity so retrieval behaves like the
// Postgres-backed store.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]domain.Document
	chunks   map[string]domain.Chunk
	sessions map[string]domain.ChatSession
	messages map[string][]domain.Message

	// DisableVectorSearch makes SearchChunksByEmbedding report
	// ErrVectorIndexUnsupported, exercising the lexical fallback path.
	DisableVectorSearch bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]domain.Document),
		chunks:   make(map[string]domain.Chunk),
		sessions: make(map[string]domain.ChatSession),
		messages: make(map[string][]domain.Message),
	}
}

func (s *MemoryStore) SaveDocument(d domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[d.ID] = d
	return nil
}

func (s *MemoryStore) SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil
	}
	doc.Status = status
	doc.ErrorMessage = errMsg
	doc.UpdatedAt = time.Now().UTC()
	s.docs[id] = doc
	return nil
}

func (s *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	return doc, ok, nil
}

func (s *MemoryStore) ListDocuments() ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, nil
}

func (s *MemoryStore) DeleteDocument(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	for chunkID, c := range s.chunks {
		if c.DocumentID == id {
			delete(s.chunks, chunkID)
		}
	}
	return nil
}

func (s *MemoryStore) InsertChunk(chunk domain.Chunk) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[chunk.ID] = chunk
	return chunk.ID, nil
}

func (s *MemoryStore) DeleteChunksByDocument(documentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, c := range s.chunks {
		if c.DocumentID == documentID {
			delete(s.chunks, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) SearchChunksByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.Chunk, error) {
	if s.DisableVectorSearch {
		return nil, ErrVectorIndexUnsupported
	}
	if limit <= 0 || len(embedding) == 0 {
		return []domain.Chunk{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		chunk domain.Chunk
		score float64
	}
	var candidates []scored
	for _, c := range s.chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, scored{chunk: c, score: cosineSimilarity(embedding, c.Embedding)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	result := make([]domain.Chunk, 0, len(candidates))
	for _, c := range candidates {
		result = append(result, c.chunk)
	}
	return result, nil
}

func (s *MemoryStore) SearchChunksByPattern(ctx context.Context, pattern string, limit int) ([]domain.Chunk, error) {
	if limit <= 0 || pattern == "" {
		return []domain.Chunk{}, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []domain.Chunk
	for _, c := range s.chunks {
		if re.MatchString(c.Text) {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) CreateSession(session domain.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *MemoryStore) GetSessionForUser(id, userID string) (domain.ChatSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok || sess.UserID != userID {
		return domain.ChatSession{}, false, nil
	}
	return sess, true, nil
}

func (s *MemoryStore) ListSessionsByUser(userID string) ([]domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sessions []domain.ChatSession
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			sessions = append(sessions, sess)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt) })
	return sessions, nil
}

func (s *MemoryStore) TouchSession(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	sess.UpdatedAt = at.UTC()
	s.sessions[id] = sess
	return nil
}

func (s *MemoryStore) AppendMessage(sessionID string, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.SessionID = sessionID
	msg.Seq = len(s.messages[sessionID]) + 1
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	return nil
}

func (s *MemoryStore) ListMessages(sessionID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]domain.Message, len(all))
	copy(out, all)
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
