package backendtest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/supportchat/internal/wire"
)

// BotReply is what the fake bot answers to any customer message.
const BotReply = "Thanks for reaching out. How else can I help?"

// HandoffReply is the bot's answer when the customer asks for a human.
const HandoffReply = "I'm connecting you with a human agent. Please hold on."

type inbound struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Message   string `json:"message"`
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	role, id := chi.URLParam(r, "role"), chi.URLParam(r, "id")

	s.mu.Lock()
	switch role {
	case "session", "watch":
		s.sessionLocked(id)
	case "agent":
		if _, ok := s.tickets[id]; !ok {
			s.mu.Unlock()
			notFound(w, "Agent session not found")
			return
		}
	default:
		s.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn}
	key := role + "/" + id

	s.mu.Lock()
	s.peers[key] = p
	greeting := s.greetingLocked(role, id)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.peers[key] == p {
			delete(s.peers, key)
		}
		s.mu.Unlock()
		conn.Close()
	}()

	if greeting != nil {
		p.send(greeting)
	}

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		s.mu.Lock()
		s.frames[key] = append(s.frames[key], string(data))
		s.mu.Unlock()

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			p.send(map[string]any{"type": wire.TypeError, "message": "Invalid message format"})
			continue
		}
		switch role {
		case "session":
			s.fromSession(id, in)
		case "agent":
			s.fromAgent(p, id, in)
		}
	}
}

func (s *Server) greetingLocked(role, id string) any {
	switch role {
	case "session":
		sess := s.sessions[id]
		return map[string]any{
			"type":      wire.TypeSessionStatus,
			"escalated": sess.escalated,
			"agent_id":  nullable(sess.agentID),
		}
	case "watch":
		return map[string]any{
			"type":    wire.TypeHistorySnapshot,
			"history": append([]wire.HistoryEntry{}, s.sessions[id].history...),
		}
	case "agent":
		return map[string]any{"type": "agent_status", "agent_id": id}
	}
	return nil
}

func (s *Server) fromSession(id string, in inbound) {
	now := timestamp()

	switch in.Type {
	case wire.TypeUserMessage:
		s.mu.Lock()
		sess := s.sessionLocked(id)
		sess.history = append(sess.history, wire.HistoryEntry{Role: "user", Content: in.Message, Timestamp: now})
		wasEscalated := sess.escalated
		var reply map[string]any
		if !wasEscalated {
			if wantsHuman(in.Message) {
				aid := s.escalateLocked(id)
				reply = map[string]any{"type": wire.TypeBotMessage, "message": HandoffReply, "timestamp": now, "escalated": true, "agent_id": aid}
			} else {
				reply = map[string]any{"type": wire.TypeBotMessage, "message": BotReply, "timestamp": now, "confidence": 0.9}
			}
			sess.history = append(sess.history, wire.HistoryEntry{Role: "assistant", Content: reply["message"].(string), Timestamp: now})
		}
		agent := s.peers["agent/"+sess.agentID]
		customer := s.peers["session/"+id]
		watcher := s.peers["watch/"+id]
		s.mu.Unlock()

		echo := map[string]any{"type": wire.TypeUserMessage, "message": in.Message, "timestamp": now}
		sendAll(echo, agent, watcher)
		if reply != nil {
			sendAll(reply, customer, watcher)
		}

	case wire.TypeTyping:
		s.mu.Lock()
		agent := s.peers["agent/"+s.sessionLocked(id).agentID]
		watcher := s.peers["watch/"+id]
		s.mu.Unlock()
		sendAll(map[string]any{"type": wire.TypeUserTyping}, agent, watcher)
	}
}

func (s *Server) fromAgent(self *peer, aid string, in inbound) {
	s.mu.Lock()
	t := s.tickets[aid]
	sid := t.sessionID
	s.mu.Unlock()

	if in.SessionID != sid {
		self.send(map[string]any{"type": wire.TypeError, "message": "Agent not authorized for this session"})
		return
	}

	switch in.Type {
	case wire.TypeAgentMessage:
		now := timestamp()
		s.mu.Lock()
		sess := s.sessionLocked(sid)
		sess.history = append(sess.history, wire.HistoryEntry{Role: "agent", Content: in.Message, Timestamp: now})
		t.taken = true
		customer := s.peers["session/"+sid]
		watcher := s.peers["watch/"+sid]
		s.mu.Unlock()

		sendAll(map[string]any{"type": wire.TypeAgentMessage, "message": in.Message, "agent_id": aid, "timestamp": now}, customer, watcher)
		self.send(map[string]any{"type": "message_sent", "session_id": sid, "message": "Message sent successfully"})

	case wire.TypeTyping:
		s.mu.Lock()
		customer := s.peers["session/"+sid]
		s.mu.Unlock()
		sendAll(map[string]any{"type": wire.TypeAgentTyping}, customer)
	}
}

func sendAll(v any, peers ...*peer) {
	for _, p := range peers {
		if p != nil {
			p.send(v)
		}
	}
}

func wantsHuman(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "human") || strings.Contains(msg, "real person")
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000")
}
