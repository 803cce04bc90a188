package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"mastewalai/internal/usertoken"
	"mastewalai/pkg/rag"
)

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowChat(w, claims) {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := s.chat.Ask(r.Context(), claims.UserID, req.SessionID, req.Message)
	if err != nil {
		slog.Error("chat turn failed", "userId", claims.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to process chat message")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleChatStream runs the same turn as handleChat but delivers the answer
// over SSE: one meta event (session id + citations), ordered message
// fragments, then a terminal done event. On failure a single error event
// replaces the remainder.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !s.allowChat(w, claims) {
		return
	}
	message := strings.TrimSpace(r.URL.Query().Get("q"))
	if message == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	sessionID := r.URL.Query().Get("sessionId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	result, err := s.chat.Ask(r.Context(), claims.UserID, sessionID, message)
	if err != nil {
		slog.Error("chat stream failed", "userId", claims.UserID, "err", err)
		writeSSE(w, flusher, "error", map[string]string{"error": "Failed to process chat message"})
		return
	}

	writeSSE(w, flusher, "meta", map[string]any{
		"sessionId": result.SessionID,
		"citations": result.Citations,
	})
	for _, fragment := range rag.SplitForStreaming(result.Answer, rag.StreamFragmentSize) {
		if r.Context().Err() != nil {
			return
		}
		writeSSE(w, flusher, "message", map[string]string{"text": fragment})
	}
	writeSSE(w, flusher, "done", map[string]bool{"done": true})
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if _, err := io.WriteString(w, "event: "+event+"\ndata: "+string(data)+"\n\n"); err != nil {
		return
	}
	flusher.Flush()
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sessions, err := s.chat.ListSessions(claims.UserID)
	if err != nil {
		slog.Error("list sessions", "userId", claims.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/chat/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	history, err := s.chat.GetSession(claims.UserID, id)
	if err != nil {
		if errors.Is(err, rag.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		slog.Error("get session", "userId", claims.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, history)
}
