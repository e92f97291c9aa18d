package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/supportchat/internal/backendtest"
	"github.com/soyeahso/supportchat/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *backendtest.Server {
	t.Helper()
	srv := backendtest.New(t)
	t.Setenv("SUPPORTCHAT_HOME", t.TempDir())
	t.Setenv("SUPPORTCHAT_HTTP_URL", srv.URL)
	t.Setenv("SUPPORTCHAT_WS_URL", srv.WSURL())
	t.Setenv("SUPPORTCHAT_TOKEN", "")
	return srv
}

// syncBuffer is written by view goroutines while tests read it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out syncBuffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func hasFrame(frames []string, substr string) bool {
	return slices.ContainsFunc(frames, func(f string) bool { return strings.Contains(f, substr) })
}

func TestVersionCmd(t *testing.T) {
	setup(t)
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "supportchat dev")
}

func TestConfigSetGet(t *testing.T) {
	setup(t)

	_, err := run(t, "", "config", "set", "realtime.typingTimeout", "1500ms")
	require.NoError(t, err)
	_, err = run(t, "", "config", "set", "transcript.enabled", "true")
	require.NoError(t, err)

	out, err := run(t, "", "config", "get", "realtime.typingTimeout")
	require.NoError(t, err)
	assert.Equal(t, "1500ms\n", out)

	out, err = run(t, "", "config", "get", "transcript.enabled")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, err = run(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "typingTimeout: 1.5s")
}

func TestConfigSetUnknownKey(t *testing.T) {
	setup(t)
	_, err := run(t, "", "config", "set", "backend.port", "80")
	assert.ErrorContains(t, err, "unknown setting")
}

func TestConfigGetMissing(t *testing.T) {
	setup(t)
	_, err := run(t, "", "config", "get", "logging.level")
	assert.ErrorContains(t, err, "not found")
}

func TestConfigShowRedactsToken(t *testing.T) {
	setup(t)
	t.Setenv("SUPPORTCHAT_TOKEN", "secret-token")
	out, err := run(t, "", "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "secret-token")
	assert.Contains(t, out, "<redacted>")
}

func TestConfigValidate(t *testing.T) {
	setup(t)
	out, err := run(t, "", "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "OK")

	t.Setenv("SUPPORTCHAT_WS_URL", "http://example.com")
	out, err = run(t, "", "config", "validate")
	require.Error(t, err)
	assert.Contains(t, out, "backend.wsUrl")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, false, parseValue("FALSE"))
	assert.Equal(t, 42, parseValue("42"))
	assert.Equal(t, 0.5, parseValue("0.5"))
	assert.Equal(t, "1500ms", parseValue("1500ms"))
	assert.Equal(t, "ws://host", parseValue("ws://host"))
}

func TestStatusCmd(t *testing.T) {
	srv := setup(t)

	out, err := run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "REST:    "+srv.URL)
	assert.Contains(t, out, "Socket:  "+srv.WSURL())
	assert.Contains(t, out, "Archive: (disabled)")

	srv.AddSession("s1", wire.HistoryEntry{Role: "user", Content: "hi"})
	aid := srv.EscalateSession("s1")
	out, err = run(t, "", "status", "--session", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "Escalated: true")
	assert.Contains(t, out, aid)
	assert.Contains(t, out, "Messages:  1")
}

func TestStatusCmdUnknownSession(t *testing.T) {
	setup(t)
	_, err := run(t, "", "status", "--session", "nope")
	assert.ErrorContains(t, err, "Session not found")
}

func TestSessionsCmd(t *testing.T) {
	srv := setup(t)

	out, err := run(t, "", "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions waiting.")

	srv.AddSession("s1")
	aid := srv.EscalateSession("s1")
	out, err = run(t, "", "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, aid)
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "1 waiting")
}

func TestHistoryAndSummaryCmds(t *testing.T) {
	srv := setup(t)
	srv.AddSession("s1",
		wire.HistoryEntry{Role: "user", Content: "my card was charged twice"},
		wire.HistoryEntry{Role: "assistant", Content: "Sorry about that."},
	)

	out, err := run(t, "", "history", "--session", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "my card was charged twice")
	assert.Contains(t, out, "Sorry about that.")
	assert.Less(t, strings.Index(out, "charged twice"), strings.Index(out, "Sorry"))

	out, err = run(t, "", "summary", "--session", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "(2 messages)")
}

func TestLoginAndWhoami(t *testing.T) {
	srv := setup(t)
	srv.RequireAuth = true
	srv.AddUser("dana@example.com", "hunter2", "employee")

	out, err := run(t, "hunter2\n", "login", "--email", "dana@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as dana@example.com (employee)")

	data, err := os.ReadFile(filepath.Join(os.Getenv("SUPPORTCHAT_HOME"), "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "token:")

	out, err = run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Subject: dana@example.com")
	assert.Contains(t, out, "(valid)")
	assert.Contains(t, out, "Role:    employee")

	// the stored token also opens the protected queue
	_, err = run(t, "", "sessions")
	require.NoError(t, err)
}

func TestLoginBadPassword(t *testing.T) {
	srv := setup(t)
	srv.AddUser("dana@example.com", "hunter2", "employee")

	_, err := run(t, "wrong\n", "login", "--email", "dana@example.com")
	assert.ErrorContains(t, err, "Incorrect email or password")
}

func TestLoginNoPassword(t *testing.T) {
	setup(t)
	_, err := run(t, "", "login", "--email", "dana@example.com")
	assert.ErrorContains(t, err, "no password")
}

func TestWhoamiNotLoggedIn(t *testing.T) {
	setup(t)
	_, err := run(t, "", "whoami")
	assert.ErrorContains(t, err, "not logged in")
}

func TestChatSendsStdinLines(t *testing.T) {
	srv := setup(t)
	srv.AddSession("s1")

	out, err := run(t, "hello there\n/typing\n/nope\n", "chat", "--session", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "session s1")
	assert.Contains(t, out, "unknown command /nope")

	assert.Eventually(t, func() bool {
		frames := srv.Frames("session", "s1")
		return hasFrame(frames, `"hello there"`) && hasFrame(frames, `"typing"`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChatRecordsTranscript(t *testing.T) {
	srv := setup(t)
	srv.AddSession("s1")
	_, err := run(t, "", "config", "set", "transcript.enabled", "true")
	require.NoError(t, err)

	_, err = run(t, "where is my parcel\n/quit\n", "chat", "--session", "s1")
	require.NoError(t, err)

	out, err := run(t, "", "transcript", "--session", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "where is my parcel")

	out, err = run(t, "", "transcript", "search", "parcel")
	require.NoError(t, err)
	assert.Contains(t, out, "[s1]")

	out, err = run(t, "", "transcript", "search", "nothingmatches")
	require.NoError(t, err)
	assert.Contains(t, out, "No matches.")
}

func TestWatchIsReadOnly(t *testing.T) {
	srv := setup(t)
	srv.AddSession("s1", wire.HistoryEntry{Role: "user", Content: "hello bot"})

	out, err := run(t, "can I talk?\n", "watch", "--session", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "read-only")
	assert.Empty(t, srv.Frames("watch", "s1"))
}

func TestWatchIntervene(t *testing.T) {
	srv := setup(t)
	srv.AddSession("s1", wire.HistoryEntry{Role: "user", Content: "I need help"})

	out, err := run(t, "Hi, I'm taking over.\n", "watch", "--session", "s1", "--intervene")
	require.NoError(t, err)

	aid := srv.EscalateSession("s1")
	assert.Contains(t, out, "joined s1 as "+aid)

	calls := srv.Calls()
	esc := slices.Index(calls, "POST /session/s1/escalate")
	take := slices.Index(calls, "POST /agent/sessions/"+aid+"/take")
	require.GreaterOrEqual(t, esc, 0)
	require.Greater(t, take, esc)

	assert.Eventually(t, func() bool {
		return hasFrame(srv.Frames("agent", aid), "taking over")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchInterveneFailureKeepsWatching(t *testing.T) {
	srv := setup(t)
	srv.AddSession("s1")
	srv.Fail("POST /session/s1/escalate", 500, "boom")

	out, err := run(t, "", "watch", "--session", "s1", "--intervene")
	require.NoError(t, err)
	assert.Contains(t, out, "intervention failed")
	for _, c := range srv.Calls() {
		assert.NotContains(t, c, "/take")
	}
}

func TestAgentTakesSession(t *testing.T) {
	srv := setup(t)
	srv.AddSession("s1", wire.HistoryEntry{Role: "user", Content: "refund please"})
	aid := srv.EscalateSession("s1")

	out, err := run(t, "On it.\n", "agent", "--agent", aid)
	require.NoError(t, err)
	assert.Contains(t, out, "took session s1 as "+aid)
	assert.Contains(t, out, "refund please")

	assert.Eventually(t, func() bool {
		return hasFrame(srv.Frames("agent", aid), `"On it."`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAgentUnknownTicket(t *testing.T) {
	setup(t)
	_, err := run(t, "", "agent", "--agent", "agent_missing")
	require.Error(t, err)
}

func TestWatchInterveneDialFailureKeepsWatcher(t *testing.T) {
	srv := setup(t)
	srv.AddSession("s1", wire.HistoryEntry{Role: "user", Content: "hello?"})
	aid := srv.EscalateSession("s1")
	srv.Fail("GET /ws/agent/"+aid, 403, "forbidden")

	out, err := run(t, "can anyone hear me\n", "watch", "--session", "s1", "--intervene")
	require.NoError(t, err)
	assert.Contains(t, out, "intervention failed")
	assert.NotContains(t, out, "joined s1")
	// the line is still handled by the read-only watcher
	assert.Contains(t, out, "watching is read-only")
	assert.Empty(t, srv.Frames("agent", aid))
}

func TestAgentSessionCrossCheck(t *testing.T) {
	srv := setup(t)
	srv.AddSession("s1")
	srv.AddSession("s2")
	aid := srv.EscalateSession("s1")

	_, err := run(t, "", "agent", "--agent", aid, "--session", "s2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holds session s1, not s2")
	assert.False(t, srv.Connected("agent", aid))

	out, err := run(t, "", "agent", "--agent", aid, "--session", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "took session s1 as "+aid)
}
