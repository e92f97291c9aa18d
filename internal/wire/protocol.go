// Package wire defines the JSON frames exchanged with the chat backend over
// the realtime socket. Every frame in either direction is a single JSON
// object discriminated by its "type" field.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/soyeahso/supportchat/internal/domain"
)

// Inbound event types.
const (
	TypeSessionStatus   = "session_status"
	TypeBotMessage      = "bot_message"
	TypeBotResponse     = "bot_response" // older agent-view alias of bot_message
	TypeAgentMessage    = "agent_message"
	TypeUserMessage     = "user_message"
	TypeHistorySnapshot = "history_snapshot"
	TypeUserTyping      = "user_typing"
	TypeAgentTyping     = "agent_typing"
	TypeError           = "error"
)

// Outbound action types.
const (
	TypeTyping = "typing"
)

// ErrEmptyFrame is returned by ParseEvent for a zero-length frame.
var ErrEmptyFrame = errors.New("empty frame")

// envelope is the union of every inbound field. Fields whose JSON type the
// backend does not guarantee are kept raw and decoded leniently.
type envelope struct {
	Type         string          `json:"type"`
	Message      string          `json:"message"`
	Timestamp    string          `json:"timestamp"`
	Escalated    json.RawMessage `json:"escalated"`
	AgentID      json.RawMessage `json:"agent_id"`
	Confidence   json.RawMessage `json:"confidence"`
	MessageCount json.RawMessage `json:"message_count"`
	History      []HistoryEntry  `json:"history"`
}

// HistoryEntry is one message in a history snapshot or REST history.
type HistoryEntry struct {
	Role       string   `json:"role"`
	Content    string   `json:"content"`
	Timestamp  string   `json:"timestamp,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ToMessage converts the entry into a domain message.
func (h HistoryEntry) ToMessage() domain.Message {
	return domain.Message{
		Role:       domain.Role(h.Role),
		Content:    h.Content,
		Timestamp:  h.Timestamp,
		Confidence: h.Confidence,
	}
}

// ParseEvent decodes one inbound text frame. Malformed JSON is an error;
// a missing or unrecognized type is not, it yields an UnknownEvent.
func ParseEvent(data []byte) (Event, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing frame: %w", err)
	}

	switch env.Type {
	case TypeSessionStatus:
		return SessionStatus{
			Escalated:    rawBool(env.Escalated),
			AgentID:      rawString(env.AgentID),
			MessageCount: rawInt(env.MessageCount),
		}, nil
	case TypeBotMessage, TypeBotResponse:
		esc := rawBool(env.Escalated)
		return BotMessage{
			Message:    env.Message,
			Timestamp:  env.Timestamp,
			Confidence: rawFloat(env.Confidence),
			Escalated:  esc != nil && *esc,
			AgentID:    deref(rawString(env.AgentID)),
		}, nil
	case TypeAgentMessage:
		return AgentMessage{
			Message:   env.Message,
			Timestamp: env.Timestamp,
			AgentID:   deref(rawString(env.AgentID)),
		}, nil
	case TypeUserMessage:
		return UserMessage{Message: env.Message, Timestamp: env.Timestamp}, nil
	case TypeHistorySnapshot:
		return HistorySnapshot{History: env.History}, nil
	case TypeUserTyping:
		return UserTyping{}, nil
	case TypeAgentTyping:
		return AgentTyping{}, nil
	case TypeError:
		return ErrorEvent{Message: env.Message}, nil
	default:
		return UnknownEvent{Type: env.Type}, nil
	}
}

func rawBool(raw json.RawMessage) *bool {
	if len(raw) == 0 {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil
	}
	return &b
}

// rawString returns nil for absent, null, non-string or empty values.
func rawString(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return nil
	}
	return &s
}

func rawFloat(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return &f
}

func rawInt(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	return &n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
