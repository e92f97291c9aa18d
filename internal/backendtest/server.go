// Package backendtest runs an in-process chat backend for tests: the REST
// endpoints the CLI consumes plus the three socket endpoints, relaying
// messages between a session and the agent that has taken it.
package backendtest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/supportchat/internal/wire"
)

var signingKey = []byte("backendtest")

// ErrNotConnected is returned by Push when no client holds the socket.
var ErrNotConnected = errors.New("no client connected")

type session struct {
	history     []wire.HistoryEntry
	escalated   bool
	agentID     string
	escalatedAt string
}

type ticket struct {
	sessionID string
	taken     bool
}

type peer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peer) send(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(v)
}

type user struct {
	password string
	role     string
}

// Server is a fake backend. Zero or more sessions can be seeded before
// clients connect; unknown sessions are created on first socket connect.
type Server struct {
	*httptest.Server

	// RequireAuth makes the agent and auth/me routes demand a bearer token
	// issued by Login.
	RequireAuth bool

	mu       sync.Mutex
	sessions map[string]*session
	tickets  map[string]*ticket // agent id → escalated session
	users    map[string]user
	failures map[string]failure
	calls    []string
	frames   map[string][]string
	peers    map[string]*peer
	upgrader websocket.Upgrader
}

type failure struct {
	status  int
	message string
}

// New starts a fake backend that shuts down with the test.
func New(t testing.TB) *Server {
	s := &Server{
		sessions: make(map[string]*session),
		tickets:  make(map[string]*ticket),
		users:    make(map[string]user),
		failures: make(map[string]failure),
		frames:   make(map[string][]string),
		peers:    make(map[string]*peer),
	}

	r := chi.NewRouter()
	r.Use(s.record)
	r.Get("/session/{id}/history", s.handleHistory)
	r.Get("/session/{id}/summary", s.handleSummary)
	r.Get("/session/{id}/status", s.handleStatus)
	r.Post("/session/{id}/escalate", s.handleEscalate)
	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/agent/sessions", s.handleQueue)
		r.Post("/agent/sessions/{agentID}/take", s.handleTake)
		r.Get("/auth/me", s.handleMe)
	})
	r.Post("/auth/login", s.handleLogin)
	r.Get("/ws/{role}/{id}", s.handleSocket)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// WSURL returns the ws:// base of the server.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// AddSession seeds a session with history.
func (s *Server) AddSession(id string, history ...wire.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionLocked(id).history = append(s.sessionLocked(id).history, history...)
}

// EscalateSession escalates a session as the bot would and returns the
// agent id that now names it.
func (s *Server) EscalateSession(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.escalateLocked(id)
}

// AddUser registers credentials accepted by /auth/login.
func (s *Server) AddUser(email, password, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = user{password: password, role: role}
}

// Fail makes "METHOD /path" answer with status and message.
func (s *Server) Fail(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, message: message}
}

// Calls returns every request seen, as "METHOD /path", in order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Frames returns the text frames received on /ws/{role}/{id}.
func (s *Server) Frames(role, id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames[role+"/"+id]...)
}

// Connected reports whether a client is attached to /ws/{role}/{id}.
func (s *Server) Connected(role, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.peers[role+"/"+id]
	return ok
}

// Push sends a raw JSON frame to the client on /ws/{role}/{id}.
func (s *Server) Push(role, id, frame string) error {
	s.mu.Lock()
	p := s.peers[role+"/"+id]
	s.mu.Unlock()
	if p == nil {
		return ErrNotConnected
	}
	return p.send(json.RawMessage(frame))
}

// Token issues a bearer token for email, as Login would.
func (s *Server) Token(email string, ttl time.Duration) string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": email,
		"exp": time.Now().Add(ttl).Unix(),
	}).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return tok
}

func (s *Server) sessionLocked(id string) *session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{}
		s.sessions[id] = sess
	}
	return sess
}

func (s *Server) escalateLocked(id string) string {
	sess := s.sessionLocked(id)
	if sess.escalated {
		return sess.agentID
	}
	sess.escalated = true
	sess.escalatedAt = time.Now().UTC().Format(time.RFC3339)
	sess.agentID = "agent_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	s.tickets[sess.agentID] = &ticket{sessionID: id}
	return sess.agentID
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.calls = append(s.calls, route)
		f, failing := s.failures[route]
		s.mu.Unlock()

		if failing {
			writeJSON(w, f.status, map[string]string{"status": "error", "message": f.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.RequireAuth {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := s.subject(r); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) subject(r *http.Request) (string, error) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	return tok.Claims.GetSubject()
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		notFound(w, "Session not found")
		return
	}
	body := map[string]any{
		"session_id":   id,
		"history":      append([]wire.HistoryEntry{}, sess.history...),
		"escalated":    sess.escalated,
		"agent_id":     nullable(sess.agentID),
		"escalated_at": nullable(sess.escalatedAt),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		notFound(w, "Session not found")
		return
	}
	n := len(sess.history)
	var last string
	if n > 0 {
		last = sess.history[n-1].Content
	}
	s.mu.Unlock()

	summary := "No conversation history available."
	if n > 0 {
		summary = "Customer conversation; last message: " + last
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "summary": summary, "message_count": n})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		notFound(w, "Session not found")
		return
	}
	body := map[string]any{
		"session_id":    id,
		"is_escalated":  sess.escalated,
		"agent_id":      nullable(sess.agentID),
		"escalated_at":  nullable(sess.escalatedAt),
		"message_count": len(sess.history),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		notFound(w, "Session not found")
		return
	}
	agentID := s.escalateLocked(id)
	p := s.peers["session/"+id]
	s.mu.Unlock()

	if p != nil {
		p.send(map[string]any{"type": wire.TypeSessionStatus, "escalated": true, "agent_id": agentID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "agent_id": agentID})
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	waiting := []map[string]any{}
	for aid, t := range s.tickets {
		if t.taken {
			continue
		}
		sess := s.sessions[t.sessionID]
		waiting = append(waiting, map[string]any{
			"agent_id":      aid,
			"session_id":    t.sessionID,
			"escalated_at":  sess.escalatedAt,
			"message_count": len(sess.history),
		})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"escalated_sessions": waiting, "total_waiting": len(waiting)})
}

func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	aid := chi.URLParam(r, "agentID")
	s.mu.Lock()
	t, ok := s.tickets[aid]
	if !ok {
		s.mu.Unlock()
		notFound(w, "Agent session not found")
		return
	}
	t.taken = true
	sid := t.sessionID
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"message":    "Session taken by agent " + aid,
		"agent_id":   aid,
		"session_id": sid,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid body"})
		return
	}

	s.mu.Lock()
	u, ok := s.users[req.Email]
	s.mu.Unlock()
	switch {
	case !ok || u.password != req.Password:
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect email or password"})
		return
	case u.role != req.Role:
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Role mismatch"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": s.Token(req.Email, time.Hour),
		"token_type":   "bearer",
		"user":         map[string]any{"id": 1, "email": req.Email, "username": req.Email, "role": u.role, "is_active": true, "is_verified": true},
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	email, err := s.subject(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
		return
	}
	s.mu.Lock()
	u := s.users[email]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"id": 1, "email": email, "username": email, "role": u.role, "is_active": true, "is_verified": true})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
