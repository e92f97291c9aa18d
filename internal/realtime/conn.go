package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/supportchat/internal/domain"
	"github.com/soyeahso/supportchat/internal/logging"
)

var (
	// ErrNotOpen is returned by Send when the socket is not open.
	ErrNotOpen = errors.New("socket not open")
	// ErrClosed is returned when dialing a connection that was already closed.
	ErrClosed = errors.New("connection closed")
)

// ConnectionError is the user-facing text for any dial or socket failure.
const ConnectionError = "Connection error. Please refresh."

// socket is the subset of *websocket.Conn a Conn drives.
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// connListener receives lifecycle signals and inbound frames. Calls are
// made without any Conn lock held.
type connListener interface {
	connOpened()
	connFrame(data []byte)
	connFailed(err error)
	connClosed()
}

// Conn owns one websocket for its whole life. It moves connecting → open →
// closed, or connecting → closed, and never leaves closed.
type Conn struct {
	url    string
	dialer *websocket.Dialer
	header http.Header
	ln     connListener
	log    *logging.Logger

	mu    sync.Mutex
	state domain.ConnState
	sock  socket
	done  chan struct{}
}

func newConn(url string, dialer *websocket.Dialer, header http.Header, ln connListener, log *logging.Logger) *Conn {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Conn{
		url:    url,
		dialer: dialer,
		header: header,
		ln:     ln,
		log:    log,
		state:  domain.ConnConnecting,
		done:   make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Conn) State() domain.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the connection reaches the closed state.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Dial opens the socket and starts the read loop.
func (c *Conn) Dial(ctx context.Context) error {
	if c.State() != domain.ConnConnecting {
		return ErrClosed
	}

	c.log.Debug().Str("url", c.url).Msg("dialing")
	ws, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.terminate(err)
		return fmt.Errorf("dialing %s: %w", c.url, err)
	}
	return c.attach(ws)
}

func (c *Conn) attach(s socket) error {
	c.mu.Lock()
	if c.state != domain.ConnConnecting {
		c.mu.Unlock()
		s.Close()
		return ErrClosed
	}
	c.sock = s
	c.state = domain.ConnOpen
	c.mu.Unlock()

	c.log.Info().Str("url", c.url).Msg("connected")
	c.ln.connOpened()
	go c.readLoop(s)
	return nil
}

func (c *Conn) readLoop(s socket) {
	for {
		typ, data, err := s.ReadMessage()
		if err != nil {
			c.terminate(err)
			return
		}
		if typ != websocket.TextMessage {
			c.log.Debug().Int("type", typ).Msg("ignoring non-text frame")
			continue
		}
		c.ln.connFrame(data)
	}
}

// Send writes one text frame. It fails with ErrNotOpen unless the socket
// is open.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != domain.ConnOpen {
		return ErrNotOpen
	}
	if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Close closes the socket. It is idempotent and does not drain pending
// frames.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == domain.ConnClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = domain.ConnClosed
	s := c.sock
	close(c.done)
	c.mu.Unlock()

	var err error
	if s != nil {
		_ = s.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.Close()
	}
	c.log.Info().Str("url", c.url).Msg("closed")
	c.ln.connClosed()
	return err
}

// terminate moves to closed after a dial or read failure. A clean close
// from the peer is not reported as a failure.
func (c *Conn) terminate(cause error) {
	c.mu.Lock()
	if c.state == domain.ConnClosed {
		c.mu.Unlock()
		return
	}
	c.state = domain.ConnClosed
	s := c.sock
	close(c.done)
	c.mu.Unlock()

	if s != nil {
		s.Close()
	}

	if websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.log.Info().Str("url", c.url).Msg("closed by peer")
	} else {
		c.log.Warn().Err(cause).Str("url", c.url).Msg("connection error")
		c.ln.connFailed(cause)
	}
	c.ln.connClosed()
}
