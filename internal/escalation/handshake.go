// Package escalation runs the admin intervention chain: escalate a session,
// take the resulting agent slot, and only then open an agent view.
package escalation

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/supportchat/internal/backend"
	"github.com/soyeahso/supportchat/internal/domain"
	"github.com/soyeahso/supportchat/internal/logging"
)

var (
	// ErrNoAgentID is returned when escalation succeeds without naming an agent.
	ErrNoAgentID = errors.New("escalation returned no agent id")
	// ErrNoSession is returned when a take succeeds without naming a session.
	ErrNoSession = errors.New("take returned no session id")
)

// API is the part of the backend client the handshake needs.
type API interface {
	Escalate(ctx context.Context, sessionID string) (*backend.EscalateResult, error)
	TakeSession(ctx context.Context, agentID string) (*backend.TakeResult, error)
}

// Connector opens an agent view for a taken session.
type Connector func(ctx context.Context, b domain.AgentBinding) error

// Handshake sequences escalate → take → connect. A failed step stops the
// chain, so a view is never opened for a session that was not taken.
type Handshake struct {
	api     API
	connect Connector
	log     *logging.Logger
}

// New creates a Handshake.
func New(api API, connect Connector, log *logging.Logger) *Handshake {
	return &Handshake{api: api, connect: connect, log: log.Sub("escalation")}
}

// Run escalates sessionID, takes it and connects.
func (h *Handshake) Run(ctx context.Context, sessionID string) (domain.AgentBinding, error) {
	res, err := h.api.Escalate(ctx, sessionID)
	if err != nil {
		return domain.AgentBinding{}, fmt.Errorf("escalate: %w", err)
	}
	if res.AgentID == "" {
		return domain.AgentBinding{}, ErrNoAgentID
	}
	h.log.Info().Str("session", sessionID).Str("agent", res.AgentID).Msg("session escalated")
	return h.take(ctx, res.AgentID, sessionID)
}

// Take claims an already escalated session and connects.
func (h *Handshake) Take(ctx context.Context, agentID string) (domain.AgentBinding, error) {
	return h.take(ctx, agentID, "")
}

func (h *Handshake) take(ctx context.Context, agentID, sessionID string) (domain.AgentBinding, error) {
	res, err := h.api.TakeSession(ctx, agentID)
	if err != nil {
		return domain.AgentBinding{}, fmt.Errorf("take: %w", err)
	}
	b := res.Binding()
	if b.AgentID == "" {
		b.AgentID = agentID
	}
	if b.SessionID == "" {
		b.SessionID = sessionID
	}
	if b.SessionID == "" {
		return b, ErrNoSession
	}
	h.log.Info().Str("session", b.SessionID).Str("agent", b.AgentID).Msg("session taken")

	if err := h.connect(ctx, b); err != nil {
		return b, fmt.Errorf("connect: %w", err)
	}
	return b, nil
}
