package domain

import (
	"crypto/rand"
	"math/big"
)

const (
	sessionIDPrefix = "session_"
	sessionIDLen    = 9
	base36          = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Session is the client's view of one end-user conversation.
type Session struct {
	ID        string `json:"session_id"`
	Escalated bool   `json:"escalated"`
	AgentID   string `json:"agent_id,omitempty"`
}

// NewSessionID returns a random client-side session id of the form
// "session_" followed by nine base-36 characters.
func NewSessionID() string {
	b := make([]byte, sessionIDLen)
	max := big.NewInt(int64(len(base36)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		b[i] = base36[n.Int64()]
	}
	return sessionIDPrefix + string(b)
}

// SessionStatus is the backend's REST description of a session.
type SessionStatus struct {
	SessionID    string `json:"session_id"`
	IsEscalated  bool   `json:"is_escalated"`
	AgentID      string `json:"agent_id,omitempty"`
	EscalatedAt  string `json:"escalated_at,omitempty"`
	MessageCount int    `json:"message_count"`
}

// EscalatedSession is an entry in the list of sessions waiting for an agent.
type EscalatedSession struct {
	AgentID      string `json:"agent_id"`
	SessionID    string `json:"session_id"`
	EscalatedAt  string `json:"escalated_at,omitempty"`
	MessageCount int    `json:"message_count"`
}
