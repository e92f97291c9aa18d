package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/supportchat/internal/config"
	"github.com/soyeahso/supportchat/internal/domain"
	"github.com/soyeahso/supportchat/internal/hooks"
	"github.com/soyeahso/supportchat/internal/logging"
	"github.com/soyeahso/supportchat/internal/wire"
)

// User-facing error strings.
const (
	SendError    = "Failed to send message"
	HistoryError = "Failed to load conversation history"
)

// EscalationRequest is the canned message behind the customer's
// "talk to a human" shortcut.
const EscalationRequest = "Please escalate this conversation to a human support agent."

var (
	// ErrReadOnly is returned when a watcher tries to send.
	ErrReadOnly = errors.New("view is read-only")
	// ErrWrongRole is returned for an action the view's role cannot take.
	ErrWrongRole = errors.New("action not available for this role")
)

const isoMillis = "2006-01-02T15:04:05.000Z"

// Bootstrap is the conversation loaded over REST before the socket opens.
type Bootstrap struct {
	Messages  []domain.Message
	Escalated bool
	AgentID   string
}

// LoadFunc fetches the bootstrap state for a session.
type LoadFunc func(ctx context.Context, sessionID string) (Bootstrap, error)

// Options configures a View.
type Options struct {
	Role      Role
	SessionID string
	AgentID   string // required for RoleAgent
	URL       string // resolved socket URL; see ResolveURL

	Header http.Header
	Dialer *websocket.Dialer
	Clock  clock.Clock

	TypingTimeout  time.Duration
	TypingThrottle time.Duration

	// Load runs before the socket opens. Watchers never call it.
	Load LoadFunc

	Hooks *hooks.Manager
	Log   *logging.Logger
}

// View is one chat screen: a socket, its local state and its outbound
// actions. All state changes are serialized on one mutex. Their notices
// join a queue that one goroutine at a time drains with no lock held, so
// hooks see changes in commit order and handlers may call back into the
// view.
type View struct {
	opts  Options
	clock clock.Clock
	hooks *hooks.Manager
	log   *logging.Logger
	conn  *Conn

	mu       sync.Mutex
	state    State
	typing   typingTimer
	throttle *Throttle

	pending  []notice
	draining bool
}

// NewView creates a view in the connecting state. Nothing touches the
// network until Start.
func NewView(opts Options) *View {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = config.DefaultTypingTimeout
	}
	if opts.TypingThrottle <= 0 {
		opts.TypingThrottle = config.DefaultTypingThrottle
	}
	if opts.Log == nil {
		opts.Log = logging.New(io.Discard, "silent")
	}
	if opts.Hooks == nil {
		opts.Hooks = hooks.NewManager(opts.Log)
	}

	log := opts.Log.Sub("realtime").With("role", string(opts.Role)).With("session", opts.SessionID)
	v := &View{
		opts:     opts,
		clock:    opts.Clock,
		hooks:    opts.Hooks,
		log:      log,
		typing:   typingTimer{clock: opts.Clock, timeout: opts.TypingTimeout},
		throttle: NewThrottle(opts.Clock, opts.TypingThrottle),
	}
	v.state.Session = domain.Session{ID: opts.SessionID}
	if opts.Role == RoleAgent {
		v.state.Session.Escalated = true
		v.state.Session.AgentID = opts.AgentID
	}
	v.conn = newConn(opts.URL, opts.Dialer, opts.Header, v, log)
	return v
}

// Role returns the view's role.
func (v *View) Role() Role { return v.opts.Role }

// SessionID returns the session the view is bound to.
func (v *View) SessionID() string { return v.opts.SessionID }

// Hooks returns the manager that receives change notifications.
func (v *View) Hooks() *hooks.Manager { return v.hooks }

// Done is closed when the socket reaches the closed state.
func (v *View) Done() <-chan struct{} { return v.conn.Done() }

// Snapshot returns a consistent copy of the current state.
func (v *View) Snapshot() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Clone()
}

// Start loads REST history (session and agent roles), then opens the
// socket. Cancelling ctx after Start returns closes the view.
func (v *View) Start(ctx context.Context) error {
	if v.opts.Load != nil && v.opts.Role != RoleWatch {
		v.bootstrap(ctx)
	}

	if err := v.conn.Dial(ctx); err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			v.Close()
		case <-v.conn.Done():
		}
	}()
	return nil
}

func (v *View) bootstrap(ctx context.Context) {
	b, err := v.opts.Load(ctx, v.opts.SessionID)

	v.mu.Lock()
	var eff Effect
	if err != nil {
		v.log.Warn().Err(err).Msg("loading history")
		v.state.Messages = nil
		v.state.handles = nil
		v.state.Err = HistoryError
		eff = EffectReplaced | EffectError
	} else {
		v.state.Messages = b.Messages
		v.state.handles = make([]Handle, len(b.Messages))
		var st Effect
		v.state, st = v.state.escalate(b.Escalated, b.AgentID)
		eff = EffectReplaced | st
	}
	notices := v.noticesLocked(eff, "")
	v.unlockAndEmit(notices)
}

// SendMessage appends text locally, then sends it. If the send fails the
// message is rolled back and the view's error is set. Blank text is
// ignored.
func (v *View) SendMessage(text string) error {
	if v.opts.Role == RoleWatch {
		return ErrReadOnly
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var action wire.Action
	msg := domain.Message{Content: text}
	if v.opts.Role == RoleAgent {
		msg.Role = domain.RoleAgent
		msg.AgentID = v.opts.AgentID
		action = wire.NewAgentMessage(v.opts.SessionID, v.opts.AgentID, text)
	} else {
		msg.Role = domain.RoleUser
		action = wire.NewUserMessage(v.opts.SessionID, text)
	}
	frame, err := wire.Encode(action)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	v.mu.Lock()
	if v.state.Conn != domain.ConnOpen {
		v.mu.Unlock()
		return ErrNotOpen
	}
	handle := Handle(uuid.NewString())
	msg.Timestamp = v.clock.Now().UTC().Format(isoMillis)
	v.state = v.state.appendTentative(msg, handle)
	eff := EffectAppended
	if v.opts.Role == RoleSession && !v.state.Session.Escalated {
		v.state.Thinking = true
		eff |= EffectStatus
	}
	notices := v.noticesLocked(eff, handle)
	v.unlockAndEmit(notices)

	sendErr := v.conn.Send(frame)
	if sendErr == nil {
		return nil
	}

	v.mu.Lock()
	var rolled []notice
	if next, ok := v.state.rollback(handle); ok {
		v.state = next
		rolled = append(rolled, v.notice(hooks.EventMessageRolledBack, map[string]any{
			"handle":  string(handle),
			"message": msg,
		}))
	}
	eff = 0
	if v.state.Thinking {
		v.state.Thinking = false
		eff |= EffectStatus
	}
	if !errors.Is(sendErr, ErrNotOpen) {
		v.state.Err = SendError
		v.state.connErr = false
		eff |= EffectError
	}
	notices = append(rolled, v.noticesLocked(eff, "")...)
	v.unlockAndEmit(notices)

	v.log.Warn().Err(sendErr).Msg("send failed, message rolled back")
	return fmt.Errorf("sending message: %w", sendErr)
}

// SendTyping tells the other party the local user is composing. Calls
// inside the throttle interval are dropped.
func (v *View) SendTyping() error {
	if v.opts.Role == RoleWatch {
		return ErrReadOnly
	}

	v.mu.Lock()
	if v.state.Conn != domain.ConnOpen {
		v.mu.Unlock()
		return ErrNotOpen
	}
	allowed := v.throttle.Allow()
	v.mu.Unlock()
	if !allowed {
		return nil
	}

	agentID := ""
	if v.opts.Role == RoleAgent {
		agentID = v.opts.AgentID
	}
	frame, err := wire.Encode(wire.NewTyping(v.opts.SessionID, agentID))
	if err != nil {
		return fmt.Errorf("encoding typing: %w", err)
	}
	return v.conn.Send(frame)
}

// RequestHuman sends the canned escalation request as a customer message.
func (v *View) RequestHuman() error {
	if v.opts.Role != RoleSession {
		return ErrWrongRole
	}
	return v.SendMessage(EscalationRequest)
}

// Close closes the socket and stops the typing timer. It is idempotent.
func (v *View) Close() error {
	v.mu.Lock()
	v.typing.stop()
	v.mu.Unlock()
	return v.conn.Close()
}

func (v *View) connOpened() {
	v.mu.Lock()
	v.state.Conn = domain.ConnOpen
	var eff Effect
	if v.state.connErr {
		v.state.Err = ""
		v.state.connErr = false
		eff |= EffectError
	}
	notices := append([]notice{v.connNotice()}, v.noticesLocked(eff, "")...)
	v.unlockAndEmit(notices)
}

func (v *View) connFrame(data []byte) {
	if v.conn.State() != domain.ConnOpen {
		return
	}
	ev, err := wire.ParseEvent(data)
	if err != nil {
		v.log.Debug().Err(err).Msg("dropping malformed frame")
		return
	}

	v.mu.Lock()
	next, eff := Reduce(v.opts.Role, v.state, ev)
	if eff == 0 {
		v.mu.Unlock()
		v.log.Trace().Str("type", ev.EventType()).Msg("event ignored")
		return
	}
	v.state = next
	if eff.Has(EffectArmTyping) {
		v.typing.arm(v.typingExpired)
	}
	notices := v.noticesLocked(eff, "")
	v.unlockAndEmit(notices)
}

func (v *View) typingExpired(gen uint64) {
	v.mu.Lock()
	if !v.typing.current(gen) {
		v.mu.Unlock()
		return
	}
	v.typing.stop()
	v.state.Typing = false
	notices := v.noticesLocked(EffectTyping, "")
	v.unlockAndEmit(notices)
}

func (v *View) connFailed(error) {
	v.mu.Lock()
	v.state.Err = ConnectionError
	v.state.connErr = true
	eff := EffectError
	if v.state.Thinking {
		v.state.Thinking = false
		eff |= EffectStatus
	}
	notices := v.noticesLocked(eff, "")
	v.unlockAndEmit(notices)
}

func (v *View) connClosed() {
	v.mu.Lock()
	if v.state.Conn == domain.ConnClosed {
		v.mu.Unlock()
		return
	}
	v.state.Conn = domain.ConnClosed
	v.unlockAndEmit([]notice{v.connNotice()})
}

type notice struct {
	event string
	data  map[string]any
}

func (v *View) notice(event string, data map[string]any) notice {
	data["session_id"] = v.opts.SessionID
	data["role"] = string(v.opts.Role)
	return notice{event: event, data: data}
}

func (v *View) connNotice() notice {
	return v.notice(hooks.EventConnStateChanged, map[string]any{"state": v.state.Conn.String()})
}

// noticesLocked builds the notifications for eff from the current state.
// handle tags an appended message as tentative.
func (v *View) noticesLocked(eff Effect, handle Handle) []notice {
	var out []notice
	s := v.state
	if eff.Has(EffectReplaced) {
		out = append(out, v.notice(hooks.EventHistoryReplaced, map[string]any{
			"count":    len(s.Messages),
			"messages": slices.Clone(s.Messages),
		}))
	}
	if eff.Has(EffectAppended) && len(s.Messages) > 0 {
		out = append(out, v.notice(hooks.EventMessageAppended, map[string]any{
			"message":   s.Messages[len(s.Messages)-1],
			"handle":    string(handle),
			"tentative": handle != "",
		}))
	}
	if eff.Has(EffectStatus) {
		out = append(out, v.notice(hooks.EventStatusChanged, map[string]any{
			"escalated": s.Session.Escalated,
			"agent_id":  s.Session.AgentID,
			"thinking":  s.Thinking,
		}))
	}
	if eff.Has(EffectTyping) {
		out = append(out, v.notice(hooks.EventTypingChanged, map[string]any{
			"typing": s.Typing,
		}))
	}
	if eff.Has(EffectError) {
		out = append(out, v.notice(hooks.EventErrorChanged, map[string]any{
			"error": s.Err,
		}))
	}
	return out
}

// unlockAndEmit queues notices and releases the state lock. If no other
// goroutine is draining the queue, the caller drains it until empty,
// taking the lock only to pick up each batch.
func (v *View) unlockAndEmit(notices []notice) {
	v.pending = append(v.pending, notices...)
	if v.draining {
		v.mu.Unlock()
		return
	}
	v.draining = true
	for {
		batch := v.pending
		v.pending = nil
		if len(batch) == 0 {
			v.draining = false
			v.mu.Unlock()
			return
		}
		v.mu.Unlock()
		for _, n := range batch {
			v.hooks.Emit(context.Background(), n.event, n.data)
		}
		v.mu.Lock()
	}
}
