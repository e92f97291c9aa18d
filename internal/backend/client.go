// Package backend is a thin REST client for the chat backend's session,
// agent-queue and auth endpoints. It does not retry; every non-2xx answer
// is a single APIError.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/supportchat/internal/config"
	"github.com/soyeahso/supportchat/internal/domain"
	"github.com/soyeahso/supportchat/internal/logging"
	"github.com/soyeahso/supportchat/internal/version"
)

const defaultBaseURL = "http://localhost:8000"

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("backend error (%d): %s", e.StatusCode, e.Message)
}

// Client talks to the backend REST API.
type Client struct {
	base   string
	tokens TokenSource
	http   *http.Client
	log    *logging.Logger
	now    func() time.Time

	expiryWarned atomic.Bool
}

// New creates a client for base. A zero timeout leaves requests bounded
// only by their context.
func New(base string, tokens TokenSource, timeout time.Duration, log *logging.Logger) *Client {
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &Client{
		base:   strings.TrimSuffix(base, "/"),
		tokens: tokens,
		http:   &http.Client{Timeout: timeout},
		log:    log.Sub("backend"),
		now:    time.Now,
	}
}

// BaseURL picks the REST base: the configured HTTP base, else one derived
// from the socket base or page origin, else localhost:8000.
func BaseURL(b config.BackendConfig) string {
	if b.HTTPURL != "" {
		return strings.TrimSuffix(b.HTTPURL, "/")
	}
	if b.WSURL != "" {
		if u, err := url.Parse(b.WSURL); err == nil && u.Host != "" {
			scheme := "http"
			if u.Scheme == "wss" {
				scheme = "https"
			}
			return scheme + "://" + u.Host
		}
	}
	if b.PageURL != "" {
		if u, err := url.Parse(b.PageURL); err == nil && u.Host != "" {
			port := u.Port()
			if port == "3000" || port == "" {
				port = "8000"
			}
			return u.Scheme + "://" + net.JoinHostPort(u.Hostname(), port)
		}
	}
	return defaultBaseURL
}

// BaseURL returns the base this client sends requests to.
func (c *Client) BaseURL() string { return c.base }

// History fetches the stored conversation of a session.
func (c *Client) History(ctx context.Context, sessionID string) (*History, error) {
	var out History
	if err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(sessionID)+"/history", nil, &out); err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	return &out, nil
}

// Summary fetches a generated summary of a session.
func (c *Client) Summary(ctx context.Context, sessionID string) (*Summary, error) {
	var out Summary
	if err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(sessionID)+"/summary", nil, &out); err != nil {
		return nil, fmt.Errorf("fetching summary: %w", err)
	}
	return &out, nil
}

// Status fetches the escalation status of a session.
func (c *Client) Status(ctx context.Context, sessionID string) (*domain.SessionStatus, error) {
	var out domain.SessionStatus
	if err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(sessionID)+"/status", nil, &out); err != nil {
		return nil, fmt.Errorf("fetching status: %w", err)
	}
	return &out, nil
}

// EscalatedSessions lists sessions waiting for an agent.
func (c *Client) EscalatedSessions(ctx context.Context) (*Queue, error) {
	var out Queue
	if err := c.do(ctx, http.MethodGet, "/agent/sessions", nil, &out); err != nil {
		return nil, fmt.Errorf("listing escalated sessions: %w", err)
	}
	return &out, nil
}

// TakeSession claims the escalated session behind agentID.
func (c *Client) TakeSession(ctx context.Context, agentID string) (*TakeResult, error) {
	var out TakeResult
	if err := c.do(ctx, http.MethodPost, "/agent/sessions/"+url.PathEscape(agentID)+"/take", nil, &out); err != nil {
		return nil, fmt.Errorf("taking session: %w", err)
	}
	if out.AgentID == "" {
		out.AgentID = agentID
	}
	return &out, nil
}

// Escalate asks the backend to hand a session to a human agent.
func (c *Client) Escalate(ctx context.Context, sessionID string) (*EscalateResult, error) {
	var out EscalateResult
	if err := c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/escalate", nil, &out); err != nil {
		return nil, fmt.Errorf("escalating session: %w", err)
	}
	return &out, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	var out LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &out); err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}
	return &out, nil
}

// Me returns the account the current token belongs to.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, fmt.Errorf("fetching current user: %w", err)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		rdr = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *Client) token() string {
	tok := c.tokens.Token()
	if tok == "" || c.expiryWarned.Load() {
		return tok
	}
	if info, err := InspectToken(tok); err == nil && info.Expired(c.now()) {
		if c.expiryWarned.CompareAndSwap(false, true) {
			c.log.Warn().Time("expired_at", info.ExpiresAt).Msg("auth token has expired; run supportchat login")
		}
	}
	return tok
}

// errorMessage extracts the server's explanation from an error body. The
// backend uses both {"message": ...} and {"detail": ...}.
func errorMessage(data []byte) string {
	var body struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}
	if body.Message != "" {
		return body.Message
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err == nil {
		return detail
	}
	return strings.TrimSpace(string(body.Detail))
}
