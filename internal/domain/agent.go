package domain

// AgentBinding pairs an agent with the session it has taken.
type AgentBinding struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id"`
}
