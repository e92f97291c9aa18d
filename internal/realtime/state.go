package realtime

import (
	"slices"

	"github.com/soyeahso/supportchat/internal/domain"
	"github.com/soyeahso/supportchat/internal/wire"
)

// Handle identifies a tentatively appended message so a failed send can
// remove exactly that message.
type Handle string

// State is everything one view renders. Messages is append-only except for
// the rollback of a tentative send and a watcher's history snapshot.
type State struct {
	Session  domain.Session
	Messages []domain.Message
	Typing   bool
	Thinking bool // customer is waiting on a bot reply
	Err      string
	Conn     domain.ConnState

	handles []Handle // parallel to Messages; empty for confirmed entries
	connErr bool     // Err came from the socket, not the server
}

// Effect reports what a state transition touched.
type Effect uint16

const (
	EffectAppended Effect = 1 << iota
	EffectReplaced
	EffectStatus
	EffectTyping
	EffectError
	EffectArmTyping
)

// Has reports whether all bits of f are set.
func (e Effect) Has(f Effect) bool { return e&f == f }

// Clone returns a copy whose slices do not alias s.
func (s State) Clone() State {
	s.Messages = slices.Clone(s.Messages)
	s.handles = slices.Clone(s.handles)
	return s
}

// Reduce applies one inbound event for the given role. It never mutates
// the entries visible through s.
func Reduce(role Role, s State, ev wire.Event) (State, Effect) {
	var eff Effect

	switch e := ev.(type) {
	case wire.SessionStatus:
		if role != RoleSession {
			return s, 0
		}
		s, eff = s.escalate(e.Escalated != nil && *e.Escalated, deref(e.AgentID))

	case wire.BotMessage:
		s = s.appended(domain.Message{
			Role:       domain.RoleAssistant,
			Content:    e.Message,
			Timestamp:  e.Timestamp,
			Confidence: e.Confidence,
		})
		eff = EffectAppended
		if s.Thinking {
			s.Thinking = false
			eff |= EffectStatus
		}
		if role == RoleSession && e.Escalated {
			var st Effect
			s, st = s.escalate(true, e.AgentID)
			eff |= st
		}

	case wire.AgentMessage:
		s = s.appended(domain.Message{
			Role:      domain.RoleAgent,
			Content:   e.Message,
			Timestamp: e.Timestamp,
			AgentID:   e.AgentID,
		})
		eff = EffectAppended
		if s.Thinking {
			s.Thinking = false
			eff |= EffectStatus
		}
		if role == RoleSession {
			var st Effect
			s, st = s.escalate(true, e.AgentID)
			eff |= st
		}

	case wire.UserMessage:
		if role == RoleSession {
			return s, 0
		}
		s = s.appended(domain.Message{
			Role:      domain.RoleUser,
			Content:   e.Message,
			Timestamp: e.Timestamp,
		})
		eff = EffectAppended

	case wire.HistorySnapshot:
		if role != RoleWatch {
			return s, 0
		}
		msgs := make([]domain.Message, len(e.History))
		for i, h := range e.History {
			msgs[i] = h.ToMessage()
		}
		s.Messages = msgs
		s.handles = make([]Handle, len(msgs))
		eff = EffectReplaced

	case wire.UserTyping:
		if role == RoleSession {
			return s, 0
		}
		s, eff = s.typing()

	case wire.AgentTyping:
		if role != RoleSession {
			return s, 0
		}
		s, eff = s.typing()

	case wire.ErrorEvent:
		s.Err = e.Message
		s.connErr = false
		s.Thinking = false
		return s, EffectError | EffectStatus

	default:
		return s, 0
	}

	if eff != 0 && s.connErr {
		s.Err = ""
		s.connErr = false
		eff |= EffectError
	}
	return s, eff
}

// escalate applies an escalation flag and agent id. Escalation is never
// reverted locally and an empty agent id leaves the current one in place.
func (s State) escalate(escalated bool, agentID string) (State, Effect) {
	var eff Effect
	if escalated && !s.Session.Escalated {
		s.Session.Escalated = true
		eff |= EffectStatus
	}
	if agentID != "" && agentID != s.Session.AgentID {
		s.Session.AgentID = agentID
		eff |= EffectStatus
	}
	return s, eff
}

func (s State) typing() (State, Effect) {
	eff := EffectArmTyping
	if !s.Typing {
		s.Typing = true
		eff |= EffectTyping
	}
	return s, eff
}

func (s State) appended(m domain.Message) State {
	return s.appendTentative(m, "")
}

func (s State) appendTentative(m domain.Message, h Handle) State {
	s.handles = append(slices.Clip(s.padHandles()), h)
	s.Messages = append(slices.Clip(s.Messages), m)
	return s
}

// rollback removes the message appended under h. Later messages keep
// their relative order.
func (s State) rollback(h Handle) (State, bool) {
	if h == "" {
		return s, false
	}
	i := slices.Index(s.padHandles(), h)
	if i < 0 {
		return s, false
	}
	s.Messages = slices.Delete(slices.Clone(s.Messages), i, i+1)
	s.handles = slices.Delete(slices.Clone(s.padHandles()), i, i+1)
	return s, true
}

// padHandles returns handles extended to len(Messages), so a State built
// by hand still lines up.
func (s State) padHandles() []Handle {
	if len(s.handles) >= len(s.Messages) {
		return s.handles[:len(s.Messages)]
	}
	out := make([]Handle, len(s.Messages))
	copy(out, s.handles)
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
