package wire

// Event is an inbound frame. The set of implementations is closed: the
// unexported marker keeps other packages from adding variants, so a type
// switch over the types below plus a default branch is exhaustive.
type Event interface {
	EventType() string
	isEvent()
}

// SessionStatus reports server-side escalation state. Nil fields were not
// sent and must leave local state unchanged.
type SessionStatus struct {
	Escalated    *bool
	AgentID      *string
	MessageCount *int
}

// BotMessage is a bot reply. Escalated is set when the reply also hands the
// conversation to a human agent.
type BotMessage struct {
	Message    string
	Timestamp  string
	Confidence *float64
	Escalated  bool
	AgentID    string
}

// AgentMessage is a message written by a human agent.
type AgentMessage struct {
	Message   string
	Timestamp string
	AgentID   string
}

// UserMessage is a message written by the customer.
type UserMessage struct {
	Message   string
	Timestamp string
}

// HistorySnapshot carries the full, ordered conversation so far.
type HistorySnapshot struct {
	History []HistoryEntry
}

// UserTyping signals that the customer is composing a message.
type UserTyping struct{}

// AgentTyping signals that the agent is composing a message.
type AgentTyping struct{}

// ErrorEvent is an error reported by the server.
type ErrorEvent struct {
	Message string
}

// UnknownEvent is any frame whose type this client does not recognize.
type UnknownEvent struct {
	Type string
}

func (SessionStatus) EventType() string   { return TypeSessionStatus }
func (BotMessage) EventType() string      { return TypeBotMessage }
func (AgentMessage) EventType() string    { return TypeAgentMessage }
func (UserMessage) EventType() string     { return TypeUserMessage }
func (HistorySnapshot) EventType() string { return TypeHistorySnapshot }
func (UserTyping) EventType() string      { return TypeUserTyping }
func (AgentTyping) EventType() string     { return TypeAgentTyping }
func (ErrorEvent) EventType() string      { return TypeError }
func (e UnknownEvent) EventType() string  { return e.Type }

func (SessionStatus) isEvent()   {}
func (BotMessage) isEvent()      {}
func (AgentMessage) isEvent()    {}
func (UserMessage) isEvent()     {}
func (HistorySnapshot) isEvent() {}
func (UserTyping) isEvent()      {}
func (AgentTyping) isEvent()     {}
func (ErrorEvent) isEvent()      {}
func (UnknownEvent) isEvent()    {}
