// Package render prints a chat view's changes to a terminal as they happen.
package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/soyeahso/supportchat/internal/domain"
	"github.com/soyeahso/supportchat/internal/hooks"
	"github.com/soyeahso/supportchat/internal/logging"
)

const hookName = "render"

const defaultWidth = 80

var (
	userLabel   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6"))
	botLabel    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981"))
	agentLabel  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	noticeStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#F59E0B"))
)

// Options controls how messages are printed.
type Options struct {
	Markdown bool // render bot and agent replies as markdown
	Width    int  // word wrap for markdown; 0 means 80
}

// Printer writes view notifications to out, one line (or block) each.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
	md  *glamour.TermRenderer
	log *logging.Logger

	escalated bool
	agentID   string
	thinking  bool
}

// New creates a printer. A markdown renderer that cannot be built is
// logged and replaced by plain text.
func New(out io.Writer, opts Options, log *logging.Logger) *Printer {
	p := &Printer{out: out, log: log.Sub("render")}
	if opts.Markdown {
		width := opts.Width
		if width <= 0 {
			width = defaultWidth
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			p.log.Warn().Err(err).Msg("markdown disabled")
		} else {
			p.md = r
		}
	}
	return p
}

// Attach subscribes the printer to every view event.
func (p *Printer) Attach(h *hooks.Manager) {
	h.OnAll(hookName, p.handle)
}

// Detach removes the printer's subscriptions.
func (p *Printer) Detach(h *hooks.Manager) {
	for _, ev := range hooks.AllEvents {
		h.Off(ev, hookName)
	}
}

// Printf writes a muted informational line.
func (p *Printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) handle(_ context.Context, pl hooks.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch pl.Event {
	case hooks.EventMessageAppended:
		if m, ok := pl.Data["message"].(domain.Message); ok {
			fmt.Fprintln(p.out, p.Message(m))
		}
	case hooks.EventMessageRolledBack:
		if m, ok := pl.Data["message"].(domain.Message); ok {
			fmt.Fprintln(p.out, errStyle.Render("not sent: ")+m.Content)
		}
	case hooks.EventHistoryReplaced:
		msgs, _ := pl.Data["messages"].([]domain.Message)
		fmt.Fprintln(p.out, mutedStyle.Render(fmt.Sprintf("--- history (%d messages) ---", len(msgs))))
		for _, m := range msgs {
			fmt.Fprintln(p.out, p.Message(m))
		}
	case hooks.EventStatusChanged:
		p.status(pl.Data)
	case hooks.EventTypingChanged:
		if typing, _ := pl.Data["typing"].(bool); typing {
			fmt.Fprintln(p.out, mutedStyle.Render(typingLine(pl.Data["role"])))
		}
	case hooks.EventErrorChanged:
		if msg, _ := pl.Data["error"].(string); msg != "" {
			fmt.Fprintln(p.out, errStyle.Render("error: "+msg))
		}
	case hooks.EventConnStateChanged:
		state, _ := pl.Data["state"].(string)
		fmt.Fprintln(p.out, mutedStyle.Render("["+state+"]"))
	}
	return nil
}

// status prints only what changed since the last status notice.
func (p *Printer) status(data map[string]any) {
	escalated, _ := data["escalated"].(bool)
	agentID, _ := data["agent_id"].(string)
	thinking, _ := data["thinking"].(bool)

	if escalated && (!p.escalated || agentID != p.agentID) {
		line := "connected to a human agent"
		if agentID != "" {
			line += " (" + agentID + ")"
		}
		fmt.Fprintln(p.out, noticeStyle.Render(line))
	}
	if thinking && !p.thinking {
		fmt.Fprintln(p.out, mutedStyle.Render("bot is thinking..."))
	}
	p.escalated, p.agentID, p.thinking = escalated, agentID, thinking
}

func typingLine(viewRole any) string {
	if viewRole == "session" {
		return "agent is typing..."
	}
	return "customer is typing..."
}

// Message formats one chat message with a styled role label.
func (p *Printer) Message(m domain.Message) string {
	var label string
	switch m.Role {
	case domain.RoleUser:
		label = userLabel.Render("customer")
	case domain.RoleAssistant:
		label = botLabel.Render("bot")
		if m.Confidence != nil {
			label += mutedStyle.Render(fmt.Sprintf(" (%.0f%%)", *m.Confidence*100))
		}
	case domain.RoleAgent:
		label = agentLabel.Render("agent")
	default:
		label = mutedStyle.Render(string(m.Role))
	}
	if ts := clockTime(m.Timestamp); ts != "" {
		label = mutedStyle.Render(ts) + " " + label
	}

	content := m.Content
	if p.md != nil && m.Role != domain.RoleUser {
		if out, err := p.md.Render(content); err == nil {
			return label + ":\n" + strings.Trim(out, "\n")
		}
	}
	return label + ": " + content
}

// clockTime shortens an ISO-8601 timestamp to local HH:MM, or returns ""
// when it does not parse.
func clockTime(ts string) string {
	if ts == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.Local().Format("15:04")
		}
	}
	return ""
}
