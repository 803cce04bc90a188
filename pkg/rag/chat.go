package rag

import (
	"context"
	"fmt"
	"time"

	"mastewalai/internal/util"
	"mastewalai/pkg/domain"
	"mastewalai/pkg/store"
)

// HistoryLimit caps how many recent messages feed the prompt.
const HistoryLimit = 10

// TurnResult is the outcome of one chat turn.
type TurnResult struct {
	SessionID string            `json:"sessionId"`
	Answer    string            `json:"answer"`
	Citations []domain.Citation `json:"citations"`
}

// Chat orchestrates multi-turn conversations: session resolution, history,
// retrieval, generation, and persistence of both turn messages.
type Chat struct {
	store     store.Store
	retriever *Retriever
	generator *Generator
}

func NewChat(st store.Store, retriever *Retriever, generator *Generator) *Chat {
	return &Chat{store: st, retriever: retriever, generator: generator}
}

// Ask runs one chat turn for the user. An unknown or foreign sessionID is
// treated like an absent one: a fresh session is created rather than failing
// the turn. The user message is persisted before generation so it survives a
// downstream failure and always precedes the assistant reply.
func (c *Chat) Ask(ctx context.Context, userID, sessionID, message string) (TurnResult, error) {
	session, err := c.resolveSession(userID, sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	now := time.Now().UTC()
	userMsg := domain.Message{
		ID:        util.NewID(),
		Role:      domain.RoleUser,
		Content:   message,
		CreatedAt: now,
	}
	if err := c.store.AppendMessage(session.ID, userMsg); err != nil {
		return TurnResult{}, fmt.Errorf("save user message: %w", err)
	}

	// History is read after the user message is stored, then the current
	// question is excluded so it appears once in the prompt.
	history, err := c.store.ListMessages(session.ID, HistoryLimit)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load history: %w", err)
	}
	if n := len(history); n > 0 && history[n-1].ID == userMsg.ID {
		history = history[:n-1]
	}

	contexts, err := c.retriever.Retrieve(ctx, message)
	if err != nil {
		return TurnResult{}, err
	}

	answer, citations, err := c.generator.Generate(ctx, message, contexts, history)
	if err != nil {
		return TurnResult{}, err
	}

	assistantMsg := domain.Message{
		ID:        util.NewID(),
		Role:      domain.RoleAssistant,
		Content:   answer,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.AppendMessage(session.ID, assistantMsg); err != nil {
		return TurnResult{}, fmt.Errorf("save assistant message: %w", err)
	}
	if err := c.store.TouchSession(session.ID, assistantMsg.CreatedAt); err != nil {
		return TurnResult{}, fmt.Errorf("touch session: %w", err)
	}

	return TurnResult{SessionID: session.ID, Answer: answer, Citations: citations}, nil
}

func (c *Chat) resolveSession(userID, sessionID string) (domain.ChatSession, error) {
	if sessionID != "" {
		session, ok, err := c.store.GetSessionForUser(sessionID, userID)
		if err != nil {
			return domain.ChatSession{}, fmt.Errorf("load session: %w", err)
		}
		if ok {
			return session, nil
		}
	}
	now := time.Now().UTC()
	session := domain.ChatSession{
		ID:        util.NewID(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.CreateSession(session); err != nil {
		return domain.ChatSession{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (c *Chat) ListSessions(userID string) ([]domain.ChatSession, error) {
	return c.store.ListSessionsByUser(userID)
}

// SessionHistory is a session together with its full message log.
type SessionHistory struct {
	Session  domain.ChatSession `json:"session"`
	Messages []domain.Message   `json:"messages"`
}

// GetSession returns one session with its messages. Unknown ids and sessions
// owned by other users both yield ErrSessionNotFound.
func (c *Chat) GetSession(userID, sessionID string) (SessionHistory, error) {
	session, ok, err := c.store.GetSessionForUser(sessionID, userID)
	if err != nil {
		return SessionHistory{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return SessionHistory{}, ErrSessionNotFound
	}
	messages, err := c.store.ListMessages(sessionID, 0)
	if err != nil {
		return SessionHistory{}, fmt.Errorf("load messages: %w", err)
	}
	return SessionHistory{Session: session, Messages: messages}, nil
}
