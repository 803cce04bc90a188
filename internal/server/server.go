package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"mastewalai/internal/ratelimit"
	"mastewalai/internal/usertoken"
	"mastewalai/internal/util"
	"mastewalai/pkg/queue"
	"mastewalai/pkg/rag"
	"mastewalai/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Chat          *rag.Chat
	Ingestor      *rag.Ingestor
	Store         store.Store
	Queue         *queue.RedisJobQueue
	TokenVerifier *usertoken.Verifier
	ChatLimiter   *ratelimit.FixedWindowLimiter
}

// Server exposes the HTTP API: admin document management and user chat.
type Server struct {
	chat          *rag.Chat
	ingestor      *rag.Ingestor
	store         store.Store
	queue         *queue.RedisJobQueue
	tokenVerifier *usertoken.Verifier
	chatLimiter   *ratelimit.FixedWindowLimiter
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		chat:          cfg.Chat,
		ingestor:      cfg.Ingestor,
		store:         cfg.Store,
		queue:         cfg.Queue,
		tokenVerifier: cfg.TokenVerifier,
		chatLimiter:   cfg.ChatLimiter,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithSecurityHeaders(util.WithCORS(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/api/admin/documents", s.withAdmin(s.handleDocuments))
	s.mux.Handle("/api/admin/documents/", s.withAdmin(s.handleDocumentByID))
	s.mux.Handle("/api/admin/reindex/", s.withAdmin(s.handleReindex))
	s.mux.Handle("/api/admin/reindex/jobs/", s.withAdmin(s.handleReindexJob))

	s.mux.Handle("/api/chat", s.withUser(s.handleChat))
	s.mux.Handle("/api/chat/stream", s.withUser(s.handleChatStream))
	s.mux.Handle("/api/chat/sessions", s.withUser(s.handleSessions))
	s.mux.Handle("/api/chat/sessions/", s.withUser(s.handleSessionByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, usertoken.Claims)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		next(w, r, claims)
	})
}

func (s *Server) withAdmin(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		if claims.Role != usertoken.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, claims)
	})
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (usertoken.Claims, bool) {
	if s.tokenVerifier == nil {
		writeError(w, http.StatusInternalServerError, "token verifier not configured")
		return usertoken.Claims{}, false
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return usertoken.Claims{}, false
	}
	claims, err := s.tokenVerifier.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return usertoken.Claims{}, false
	}
	return claims, true
}

// allowChat applies the per-user chat quota. A nil limiter means no limit.
func (s *Server) allowChat(w http.ResponseWriter, claims usertoken.Claims) bool {
	if s.chatLimiter == nil {
		return true
	}
	if !s.chatLimiter.Allow(claims.UserID) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
