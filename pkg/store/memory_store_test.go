package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"mastewalai/pkg/domain"
)

func TestMemoryStoreEmbeddingSearchRanksBySimilarity(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	chunks := []domain.Chunk{
		{ID: "c1", DocumentID: "d1", Text: "far", Embedding: []float32{0, 1}, CreatedAt: now},
		{ID: "c2", DocumentID: "d1", Text: "near", Embedding: []float32{1, 0.1}, CreatedAt: now},
		{ID: "c3", DocumentID: "d1", Text: "exact", Embedding: []float32{1, 0}, CreatedAt: now},
	}
	for _, c := range chunks {
		if _, err := s.InsertChunk(c); err != nil {
			t.Fatalf("InsertChunk() error = %v", err)
		}
	}

	got, err := s.SearchChunksByEmbedding(context.Background(), []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("SearchChunksByEmbedding() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if got[0].ID != "c3" || got[1].ID != "c2" {
		t.Fatalf("unexpected ranking: %q, %q", got[0].ID, got[1].ID)
	}
}

func TestMemoryStoreEmbeddingSearchDisabled(t *testing.T) {
	s := NewMemoryStore()
	s.DisableVectorSearch = true
	_, err := s.SearchChunksByEmbedding(context.Background(), []float32{1}, 5)
	if !errors.Is(err, ErrVectorIndexUnsupported) {
		t.Fatalf("error = %v, want ErrVectorIndexUnsupported", err)
	}
}

func TestMemoryStorePatternSearch(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	texts := map[string]string{
		"c1": "The price of Book X is 500 ETB.",
		"c2": "Shipping takes three days.",
		"c3": "Book X covers chapter pricing in detail.",
	}
	i := 0
	for id, text := range texts {
		if _, err := s.InsertChunk(domain.Chunk{ID: id, DocumentID: "d1", Text: text, CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("InsertChunk() error = %v", err)
		}
		i++
	}

	got, err := s.SearchChunksByPattern(context.Background(), "price|book", 10)
	if err != nil {
		t.Fatalf("SearchChunksByPattern() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	for _, c := range got {
		if c.ID == "c2" {
			t.Fatal("pattern search matched unrelated chunk")
		}
	}
}

func TestMemoryStoreSessionOwnership(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	if err := s.CreateSession(domain.ChatSession{ID: "s1", UserID: "alice", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if _, ok, _ := s.GetSessionForUser("s1", "alice"); !ok {
		t.Fatal("owner should see the session")
	}
	if _, ok, _ := s.GetSessionForUser("s1", "bob"); ok {
		t.Fatal("session must not be visible to another user")
	}
}

func TestMemoryStoreMessageOrderingAndLimit(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		if err := s.AppendMessage("s1", domain.Message{ID: string(rune('a' + i)), Role: role, Content: "m", CreatedAt: time.Now().UTC()}); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}

	msgs, err := s.ListMessages("s1", 3)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Seq <= msgs[i-1].Seq {
			t.Fatalf("messages out of order: %d then %d", msgs[i-1].Seq, msgs[i].Seq)
		}
	}
	if msgs[len(msgs)-1].Seq != 5 {
		t.Fatalf("last message seq = %d, want 5", msgs[len(msgs)-1].Seq)
	}
}

func TestMemoryStoreDeleteDocumentRemovesChunks(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	if err := s.SaveDocument(domain.Document{ID: "d1", OriginalFilename: "a.pdf", Status: domain.StatusReady, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("SaveDocument() error = %v", err)
	}
	if _, err := s.InsertChunk(domain.Chunk{ID: "c1", DocumentID: "d1", Text: "x", CreatedAt: now}); err != nil {
		t.Fatalf("InsertChunk() error = %v", err)
	}

	if err := s.DeleteDocument("d1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if _, ok, _ := s.GetDocument("d1"); ok {
		t.Fatal("document should be gone")
	}
	got, err := s.SearchChunksByPattern(context.Background(), "x", 10)
	if err != nil {
		t.Fatalf("SearchChunksByPattern() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("chunks survived document deletion: %d", len(got))
	}
}
