package bank

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport carries one line per text frame.
type WebSocketTransport struct {
	cfg Config

	// Write serialization
	writeMu sync.Mutex

	mu    sync.RWMutex
	conn  *websocket.Conn
	lines chan string
	done  chan struct{}
}

// NewWebSocketTransport creates an unconnected WebSocket transport.
func NewWebSocketTransport(cfg Config) *WebSocketTransport {
	return &WebSocketTransport{cfg: cfg}
}

// Connect dials cfg.Address and starts reading the connection.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Accept", "text/plain")

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.DialTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, t.cfg.Address, header)
	if err != nil {
		return err
	}

	// Answer server pings so idle connections stay open.
	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	lines := make(chan string, inboundBuffer)
	done := make(chan struct{})

	t.mu.Lock()
	old := t.conn
	t.conn = conn
	t.lines = lines
	t.done = done
	t.mu.Unlock()

	if old != nil {
		old.Close()
	}

	go t.readLoop(conn, lines, done)
	return nil
}

// readLoop reads frames so control frames are processed, and marks the
// transport disconnected when the connection fails or the bank closes it.
func (t *WebSocketTransport) readLoop(conn *websocket.Conn, lines chan<- string, done chan<- struct{}) {
	defer close(done)
	defer func() {
		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		deliverInbound(lines, strings.TrimRight(string(data), "\r\n"))
	}
}

// WriteLine sends line as one text frame.
func (t *WebSocketTransport) WriteLine(line string) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// ReadLine returns the next text frame, or an error once ctx is done or
// the connection has closed.
func (t *WebSocketTransport) ReadLine(ctx context.Context) (string, error) {
	t.mu.RLock()
	conn, lines, done := t.conn, t.lines, t.done
	t.mu.RUnlock()

	if conn == nil {
		return "", ErrNotConnected
	}
	return receiveInbound(ctx, lines, done)
}

// Close sends a close frame and closes the connection.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()

	return conn.Close()
}

// IsConnected reports whether a connection is open. It turns false as
// soon as the bank closes its side.
func (t *WebSocketTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conn != nil
}
