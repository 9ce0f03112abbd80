package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rickgao/auction-house/internal/model"
	"github.com/rickgao/auction-house/internal/queue"
)

// Errors
var (
	ErrSessionClosed = errors.New("session closed")
	ErrBacklog       = errors.New("agent not reading, outbound backlog full")
)

// MaxBacklog is the number of unwritten messages a session may hold
// before it is closed as stalled.
const MaxBacklog = 256

// Session is one registered agent connection. Writes go through a queue
// drained by a single writer goroutine, so Send never waits on the
// network.
type Session struct {
	id           model.ConnID
	agent        model.AgentID
	conn         net.Conn
	writeTimeout time.Duration

	outbound *queue.Queue[[]byte]
	done     chan struct{} // Closed when the writer exits

	closeMu  sync.Mutex
	closed   bool
	writeErr error
}

// NewSession wraps conn and starts its writer. A zero writeTimeout
// disables write deadlines.
func NewSession(id model.ConnID, agentID model.AgentID, conn net.Conn, writeTimeout time.Duration) *Session {
	s := &Session{
		id:           id,
		agent:        agentID,
		conn:         conn,
		writeTimeout: writeTimeout,
		outbound:     queue.New[[]byte](8),
		done:         make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// ConnID returns the connection id.
func (s *Session) ConnID() model.ConnID { return s.id }

// AgentID returns the id the agent announced at handshake.
func (s *Session) AgentID() model.AgentID { return s.agent }

// Bidder returns the ledger identity of this session.
func (s *Session) Bidder() model.Bidder {
	return model.Bidder{Conn: s.id, Agent: s.agent}
}

// Send queues lines, each terminated by '\n', to be written as one
// write. Lines from one call are never interleaved with another's. Safe
// for concurrent use.
func (s *Session) Send(lines ...string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	buf := make([]byte, 0, n)
	for _, l := range lines {
		buf = append(buf, l...)
		buf = append(buf, '\n')
	}

	if s.outbound.Len() >= MaxBacklog {
		s.fail(ErrBacklog)
		return fmt.Errorf("send to %s: %w", s.agent, ErrBacklog)
	}
	if !s.outbound.Push(buf) {
		return ErrSessionClosed
	}
	return nil
}

// writeLoop writes queued messages in order until the queue is closed
// and drained or a write fails, then closes the connection.
func (s *Session) writeLoop() {
	defer close(s.done)
	defer s.conn.Close()

	for {
		buf, err := s.outbound.Pop(context.Background())
		if err != nil {
			return
		}

		if s.writeTimeout > 0 {
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
				s.fail(fmt.Errorf("set write deadline: %w", err))
				return
			}
		}
		if _, err := s.conn.Write(buf); err != nil {
			s.fail(fmt.Errorf("write to %s: %w", s.agent, err))
			return
		}
	}
}

// Reader returns the connection for the session's read loop.
func (s *Session) Reader() io.Reader {
	return s.conn
}

// Close stops accepting messages. Queued messages are still written,
// then the connection is closed. A peer that does not take them within
// the write timeout is cut off. Idempotent.
func (s *Session) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.outbound.Close()

	grace := s.writeTimeout
	if grace <= 0 {
		grace = time.Second
	}
	timer := time.AfterFunc(grace, func() { s.conn.Close() })
	go func() {
		<-s.done
		timer.Stop()
	}()
	return nil
}

// Done is closed once the writer has stopped and the connection is
// closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that stopped the writer, if any.
func (s *Session) Err() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.writeErr
}

// fail records err, discards pending output and closes the connection,
// which ends the session's read loop.
func (s *Session) fail(err error) {
	s.closeMu.Lock()
	if s.writeErr == nil {
		s.writeErr = err
	}
	s.closed = true
	s.closeMu.Unlock()

	s.outbound.Close()
	s.outbound.DrainTo(0)
	s.conn.Close()
}

func (s *Session) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}
