package backend

import (
	"github.com/soyeahso/supportchat/internal/domain"
	"github.com/soyeahso/supportchat/internal/wire"
)

// History is the REST conversation history of a session.
type History struct {
	SessionID   string              `json:"session_id"`
	History     []wire.HistoryEntry `json:"history"`
	Escalated   bool                `json:"escalated"`
	AgentID     string              `json:"agent_id"`
	EscalatedAt string              `json:"escalated_at"`
}

// Messages converts the history entries into domain messages.
func (h *History) Messages() []domain.Message {
	out := make([]domain.Message, len(h.History))
	for i, e := range h.History {
		out[i] = e.ToMessage()
	}
	return out
}

// Summary is a short generated description of a conversation.
type Summary struct {
	Status       string `json:"status"`
	Summary      string `json:"summary"`
	MessageCount int    `json:"message_count"`
}

// Queue lists escalated sessions waiting for an agent.
type Queue struct {
	Sessions     []domain.EscalatedSession `json:"escalated_sessions"`
	TotalWaiting int                       `json:"total_waiting"`
}

// TakeResult is the answer to taking an escalated session.
type TakeResult struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id"`
}

// Binding returns the agent/session pair that was taken.
func (t *TakeResult) Binding() domain.AgentBinding {
	return domain.AgentBinding{AgentID: t.AgentID, SessionID: t.SessionID}
}

// EscalateResult is the answer to an escalation request.
type EscalateResult struct {
	Status  string `json:"status"`
	AgentID string `json:"agent_id"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// LoginResult carries the issued bearer token.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

// User is an employee or admin account.
type User struct {
	ID         int    `json:"id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	IsActive   bool   `json:"is_active"`
	IsVerified bool   `json:"is_verified"`
	CreatedAt  string `json:"created_at,omitempty"`
}
