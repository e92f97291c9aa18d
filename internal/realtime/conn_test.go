package realtime

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/supportchat/internal/domain"
	"github.com/soyeahso/supportchat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type connRecorder struct {
	mu     sync.Mutex
	events []string
	frames []string
}

func (r *connRecorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *connRecorder) connOpened() { r.add("open") }
func (r *connRecorder) connFailed(error) { r.add("failed") }
func (r *connRecorder) connClosed() { r.add("closed") }

func (r *connRecorder) connFrame(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, string(data))
}

func (r *connRecorder) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]string(nil), r.frames...)
}

func testLogger() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

// wsServer starts a socket server running handler for each connection and
// returns its ws:// base URL.
func wsServer(t *testing.T, handler func(c *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		handler(c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnRoundTrip(t *testing.T) {
	received := make(chan string, 1)
	base := wsServer(t, func(c *websocket.Conn) {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		received <- string(data)
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"bot_message","message":"pong"}`))
		c.ReadMessage()
	})

	rec := &connRecorder{}
	c := newConn(base+"/ws/session/s1", nil, nil, rec, testLogger())
	assert.Equal(t, domain.ConnConnecting, c.State())

	require.NoError(t, c.Dial(context.Background()))
	assert.Equal(t, domain.ConnOpen, c.State())

	require.NoError(t, c.Send([]byte(`{"type":"user_message"}`)))
	select {
	case got := <-received:
		assert.Equal(t, `{"type":"user_message"}`, got)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive frame")
	}

	require.Eventually(t, func() bool {
		_, frames := rec.snapshot()
		return len(frames) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close(), "close is idempotent")
	assert.Equal(t, domain.ConnClosed, c.State())
	assert.ErrorIs(t, c.Send([]byte("late")), ErrNotOpen)

	events, frames := rec.snapshot()
	assert.Equal(t, []string{"open", "closed"}, events)
	assert.Equal(t, []string{`{"type":"bot_message","message":"pong"}`}, frames)
}

func TestConnDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	rec := &connRecorder{}
	c := newConn(url+"/ws/session/s1", nil, nil, rec, testLogger())

	err := c.Dial(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.ConnClosed, c.State())

	events, _ := rec.snapshot()
	assert.Equal(t, []string{"failed", "closed"}, events)

	assert.ErrorIs(t, c.Dial(context.Background()), ErrClosed, "closed is terminal")
	assert.ErrorIs(t, c.Send([]byte("x")), ErrNotOpen)

	select {
	case <-c.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestConnPeerCloses(t *testing.T) {
	base := wsServer(t, func(c *websocket.Conn) {
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	})

	rec := &connRecorder{}
	c := newConn(base+"/ws/watch/s1", nil, nil, rec, testLogger())
	require.NoError(t, c.Dial(context.Background()))

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not close")
	}
	assert.Equal(t, domain.ConnClosed, c.State())

	require.Eventually(t, func() bool {
		events, _ := rec.snapshot()
		return len(events) == 2
	}, 2*time.Second, 10*time.Millisecond)
	events, _ := rec.snapshot()
	assert.Equal(t, []string{"open", "closed"}, events)
}

func TestConnAbnormalClose(t *testing.T) {
	base := wsServer(t, func(c *websocket.Conn) {
		c.UnderlyingConn().Close()
	})

	rec := &connRecorder{}
	c := newConn(base+"/ws/agent/A1", nil, nil, rec, testLogger())
	require.NoError(t, c.Dial(context.Background()))

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not close")
	}

	require.Eventually(t, func() bool {
		events, _ := rec.snapshot()
		return len(events) == 3
	}, 2*time.Second, 10*time.Millisecond)
	events, _ := rec.snapshot()
	assert.Equal(t, []string{"open", "failed", "closed"}, events)
}

func TestConnCloseBeforeDial(t *testing.T) {
	rec := &connRecorder{}
	c := newConn("ws://unused", nil, nil, rec, testLogger())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Dial(context.Background()), ErrClosed)
	events, _ := rec.snapshot()
	assert.Equal(t, []string{"closed"}, events)
}
