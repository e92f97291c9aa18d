package wire

import "encoding/json"

// Action is an outbound frame.
type Action interface {
	ActionType() string
}

// UserMessageAction sends a customer message.
type UserMessageAction struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// AgentMessageAction sends a human agent's message.
type AgentMessageAction struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Message   string `json:"message"`
}

// TypingAction signals that the local party is composing.
type TypingAction struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id,omitempty"`
}

func (UserMessageAction) ActionType() string  { return TypeUserMessage }
func (AgentMessageAction) ActionType() string { return TypeAgentMessage }
func (TypingAction) ActionType() string       { return TypeTyping }

// NewUserMessage creates a user_message action.
func NewUserMessage(sessionID, message string) UserMessageAction {
	return UserMessageAction{Type: TypeUserMessage, SessionID: sessionID, Message: message}
}

// NewAgentMessage creates an agent_message action.
func NewAgentMessage(sessionID, agentID, message string) AgentMessageAction {
	return AgentMessageAction{Type: TypeAgentMessage, SessionID: sessionID, AgentID: agentID, Message: message}
}

// NewTyping creates a typing action. agentID is omitted when empty.
func NewTyping(sessionID, agentID string) TypingAction {
	return TypingAction{Type: TypeTyping, SessionID: sessionID, AgentID: agentID}
}

// Encode serializes an action into a text frame.
func Encode(a Action) ([]byte, error) {
	return json.Marshal(a)
}
