package domain

// Role identifies who authored a chat turn.
type Role string

const (
	RoleUser      Role = "user"      // customer
	RoleAssistant Role = "assistant" // bot
	RoleAgent     Role = "agent"     // human agent
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleAgent:
		return true
	}
	return false
}

// Message is a single turn in a conversation.
//
// Timestamp is an ISO-8601 string: the server's for received messages, the
// local clock's for messages this client sent.
type Message struct {
	Role       Role     `json:"role"`
	Content    string   `json:"content"`
	Timestamp  string   `json:"timestamp,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	AgentID    string   `json:"agent_id,omitempty"`
}
