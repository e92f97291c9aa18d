package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soyeahso/supportchat/internal/backendtest"
	"github.com/soyeahso/supportchat/internal/config"
	"github.com/soyeahso/supportchat/internal/domain"
	"github.com/soyeahso/supportchat/internal/logging"
	"github.com/soyeahso/supportchat/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		backend config.BackendConfig
		want    string
	}{
		{"http base", config.BackendConfig{HTTPURL: "https://api.example.com/"}, "https://api.example.com"},
		{"from ws base", config.BackendConfig{WSURL: "wss://chat.example.com"}, "https://chat.example.com"},
		{"from plain ws base", config.BackendConfig{WSURL: "ws://localhost:9000/"}, "http://localhost:9000"},
		{"from dev page", config.BackendConfig{PageURL: "http://localhost:3000/chat"}, "http://localhost:8000"},
		{"from page other port", config.BackendConfig{PageURL: "https://shop.example.com:8443"}, "https://shop.example.com:8443"},
		{"default", config.BackendConfig{}, "http://localhost:8000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseURL(tt.backend))
		})
	}
}

func TestClientSessionEndpoints(t *testing.T) {
	srv := backendtest.New(t)
	conf := 0.75
	srv.AddSession("s1",
		wire.HistoryEntry{Role: "user", Content: "my card was declined", Timestamp: "2024-05-01T10:00:00"},
		wire.HistoryEntry{Role: "assistant", Content: "Let me check", Timestamp: "2024-05-01T10:00:02", Confidence: &conf},
	)
	c := New(srv.URL, nil, 0, testLogger())
	ctx := context.Background()

	h, err := c.History(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", h.SessionID)
	assert.False(t, h.Escalated)
	assert.Empty(t, h.AgentID)
	msgs := h.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	require.NotNil(t, msgs[1].Confidence)
	assert.InDelta(t, 0.75, *msgs[1].Confidence, 1e-9)

	sum, err := c.Summary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "success", sum.Status)
	assert.Equal(t, 2, sum.MessageCount)
	assert.NotEmpty(t, sum.Summary)

	st, err := c.Status(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", st.SessionID)
	assert.False(t, st.IsEscalated)
	assert.Equal(t, 2, st.MessageCount)
}

func TestClientEscalateAndTake(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddSession("s1")
	c := New(srv.URL, nil, 0, testLogger())
	ctx := context.Background()

	esc, err := c.Escalate(ctx, "s1")
	require.NoError(t, err)
	require.NotEmpty(t, esc.AgentID)

	q, err := c.EscalatedSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, q.TotalWaiting)
	require.Len(t, q.Sessions, 1)
	assert.Equal(t, esc.AgentID, q.Sessions[0].AgentID)
	assert.Equal(t, "s1", q.Sessions[0].SessionID)

	taken, err := c.TakeSession(ctx, esc.AgentID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentBinding{AgentID: esc.AgentID, SessionID: "s1"}, taken.Binding())

	q, err = c.EscalatedSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, q.TotalWaiting)

	st, err := c.Status(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, st.IsEscalated)
	assert.Equal(t, esc.AgentID, st.AgentID)
}

func TestClientErrors(t *testing.T) {
	srv := backendtest.New(t)
	c := New(srv.URL, nil, 0, testLogger())
	ctx := context.Background()

	_, err := c.History(ctx, "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Session not found", apiErr.Message)

	_, err = c.TakeSession(ctx, "agent_nope")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Agent session not found", apiErr.Message)

	srv.Fail("GET /agent/sessions", http.StatusServiceUnavailable, "maintenance")
	_, err = c.EscalatedSessions(ctx)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "maintenance")
}

func TestClientDetailErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Not authenticated"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil, 0, testLogger()).EscalatedSessions(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Not authenticated", apiErr.Message)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage([]byte(`{"status":"error","message":"boom"}`)))
	assert.Equal(t, "nope", errorMessage([]byte(`{"detail":"nope"}`)))
	assert.Equal(t, `[{"loc":["body"]}]`, errorMessage([]byte(`{"detail":[{"loc":["body"]}]}`)))
	assert.Equal(t, "Bad Gateway", errorMessage([]byte("Bad Gateway\n")))
	assert.Empty(t, errorMessage([]byte(`{}`)))
}

func TestClientSendsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"status":"success","summary":"s","message_count":0}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", StaticToken("abc"), time.Second, testLogger())
	_, err := c.Summary(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, "Bearer abc", got.Get("Authorization"))
	assert.Len(t, got.Get("X-Request-ID"), 36)
	assert.Equal(t, "supportchat/dev", got.Get("User-Agent"))
	assert.Equal(t, "application/json", got.Get("Accept"))
}

func TestClientNoTokenNoHeader(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil, 0, testLogger()).Status(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, auth)
}

func TestClientHonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL, nil, 0, testLogger()).History(ctx, "s1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClientLoginAndMe(t *testing.T) {
	srv := backendtest.New(t)
	srv.RequireAuth = true
	srv.AddUser("sam@example.com", "hunter2", "employee")
	ctx := context.Background()

	anon := New(srv.URL, nil, 0, testLogger())
	_, err := anon.Login(ctx, LoginRequest{Email: "sam@example.com", Password: "wrong", Role: "employee"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = anon.Login(ctx, LoginRequest{Email: "sam@example.com", Password: "hunter2", Role: "admin"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Role mismatch", apiErr.Message)

	res, err := anon.Login(ctx, LoginRequest{Email: "sam@example.com", Password: "hunter2", Role: "employee"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", res.TokenType)
	assert.Equal(t, "employee", res.User.Role)

	_, err = anon.Me(ctx)
	require.ErrorAs(t, err, &apiErr)

	authed := New(srv.URL, StaticToken(res.AccessToken), 0, testLogger())
	me, err := authed.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sam@example.com", me.Email)

	_, err = authed.EscalatedSessions(ctx)
	assert.NoError(t, err)
}

func TestClientWarnsOnExpiredTokenOnce(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddSession("s1")

	var buf bytes.Buffer
	c := New(srv.URL, StaticToken(srv.Token("sam@example.com", -time.Minute)), 0, logging.New(&buf, "warn"))

	_, err := c.Status(context.Background(), "s1")
	require.NoError(t, err, "an expired token is still sent")
	_, err = c.Status(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("auth token has expired")))
}
