package bank

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// TCPTransport speaks newline-terminated lines over TCP.
type TCPTransport struct {
	cfg Config

	mu    sync.Mutex
	conn  net.Conn
	lines chan string   // Lines read from conn
	done  chan struct{} // Closed when conn's read loop exits
}

// NewTCPTransport creates an unconnected TCP transport.
func NewTCPTransport(cfg Config) *TCPTransport {
	return &TCPTransport{cfg: cfg}
}

// Connect dials cfg.Address and starts reading the connection.
func (t *TCPTransport) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Address)
	if err != nil {
		return fmt.Errorf("dial bank %s: %w", t.cfg.Address, err)
	}

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

// readLoop reads lines until the connection fails, then marks the
// transport disconnected so the next write redials.
func (t *TCPTransport) readLoop(conn net.Conn, lines chan<- string, done chan<- struct{}) {
	defer close(done)
	defer t.drop(conn)

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		deliverInbound(lines, strings.TrimRight(line, "\r\n"))
	}
}

// drop forgets conn if it is still current.
func (t *TCPTransport) drop(conn net.Conn) {
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
	conn.Close()
}

// WriteLine writes line followed by '\n'.
func (t *TCPTransport) WriteLine(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return ErrNotConnected
	}
	if t.cfg.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	_, err := t.conn.Write([]byte(line + "\n"))
	return err
}

// ReadLine returns the next line from the bank, or an error once ctx is
// done or the connection has closed.
func (t *TCPTransport) ReadLine(ctx context.Context) (string, error) {
	t.mu.Lock()
	conn, lines, done := t.conn, t.lines, t.done
	t.mu.Unlock()

	if conn == nil {
		return "", ErrNotConnected
	}
	return receiveInbound(ctx, lines, done)
}

// Close closes the connection.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// IsConnected reports whether a connection is open. It turns false as
// soon as the bank closes its side.
func (t *TCPTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Inbound lines beyond this many unread are dropped. The bank only
// answers registration.
const inboundBuffer = 16

func deliverInbound(lines chan<- string, line string) {
	select {
	case lines <- line:
	default:
	}
}

func receiveInbound(ctx context.Context, lines <-chan string, done <-chan struct{}) (string, error) {
	select {
	case line := <-lines:
		return line, nil
	case <-done:
		// A line may have arrived just before the close.
		select {
		case line := <-lines:
			return line, nil
		default:
			return "", io.EOF
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
