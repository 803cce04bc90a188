package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"mastewalai/internal/ratelimit"
	"mastewalai/internal/usertoken"
	"mastewalai/pkg/rag"
	"mastewalai/pkg/storage"
	"mastewalai/pkg/store"
)

func TestChatRateLimit(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisSrv.Addr()})
	limiter, err := ratelimit.NewFixedWindowLimiter(client, "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}

	st := store.NewMemoryStore()
	files, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	verifier, err := usertoken.NewVerifier(usertoken.Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	embedder := stubEmbedder{}
	srv := New(Config{
		Chat:          rag.NewChat(st, rag.NewRetriever(st, embedder), rag.NewGenerator(stubGenerator{})),
		Ingestor:      rag.NewIngestor(st, files, embedder),
		Store:         st,
		TokenVerifier: verifier,
		ChatLimiter:   limiter,
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	alice := signTestToken(t, "alice", "user")
	for i := 0; i < 2; i++ {
		resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/chat", alice, map[string]string{"message": "hi"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d, body = %s", i+1, resp.StatusCode, body)
		}
	}
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/chat", alice, map[string]string{"message": "hi"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}

	// A different user has an independent budget.
	bob := signTestToken(t, "bob", "user")
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/chat", bob, map[string]string{"message": "hi"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("other user status = %d, want 200", resp.StatusCode)
	}
}
