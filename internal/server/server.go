package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rickgao/auction-house/internal/agent"
	"github.com/rickgao/auction-house/internal/auction"
	"github.com/rickgao/auction-house/internal/bank"
	"github.com/rickgao/auction-house/internal/model"
	"github.com/rickgao/auction-house/internal/protocol"
)

// Errors
var (
	ErrUnknownRouting = errors.New("unknown outbid routing")
	ErrNoBankRoute    = errors.New("outbid routing bank needs a bank channel")
)

// Outbid routing
const (
	RouteBank  = "bank"
	RouteAgent = "agent"
	RouteBoth  = "both"
)

// Config holds server configuration.
type Config struct {
	HouseID          string        // Written to agents at handshake
	HandshakeTimeout time.Duration // Time allowed for the agent id line (default: 10s)
	WriteTimeout     time.Duration // Per write to an agent (default: 5s)
	MaxLineBytes     int           // Longest accepted line, without its newline (default: 4096)
	OutbidRouting    string        // RouteBank, RouteAgent or RouteBoth (default: both)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		MaxLineBytes:     4096,
		OutbidRouting:    RouteBoth,
	}
}

// Stats counts connections.
type Stats struct {
	Accepted  int64 // Connections that completed the handshake
	Rejected  int64 // Connections dropped during the handshake
	Malformed int64 // Sessions ended by a malformed line
}

// Server is the agent-facing listener.
type Server struct {
	cfg    Config
	house  *auction.House
	agents *agent.Registry
	bank   bank.Channel
	logger *slog.Logger

	nextConn atomic.Uint64
	wg       sync.WaitGroup

	// Connections still in the handshake, closed on shutdown.
	pendingMu sync.Mutex
	pending   map[net.Conn]struct{}

	accepted  atomic.Int64
	rejected  atomic.Int64
	malformed atomic.Int64
}

// New creates a Server. A nil bank channel discards bank messages, in
// which case outbid notices must be routed to agents.
func New(cfg Config, house *auction.House, agents *agent.Registry, ch bank.Channel, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ch == nil {
		ch = bank.Discard{}
	}

	def := DefaultConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = def.MaxLineBytes
	}
	if cfg.OutbidRouting == "" {
		cfg.OutbidRouting = def.OutbidRouting
	}
	switch cfg.OutbidRouting {
	case RouteAgent, RouteBoth:
	case RouteBank:
		if _, discard := ch.(bank.Discard); discard {
			return nil, ErrNoBankRoute
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRouting, cfg.OutbidRouting)
	}

	return &Server{
		cfg:     cfg,
		house:   house,
		agents:  agents,
		bank:    ch,
		logger:  logger,
		pending: make(map[net.Conn]struct{}),
	}, nil
}

// Stats returns connection counters.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted:  s.accepted.Load(),
		Rejected:  s.rejected.Load(),
		Malformed: s.malformed.Load(),
	}
}

// Serve accepts connections on ln until ctx is done. On return every
// agent has been sent EXIT_MESSAGE and every handler has finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.Info("accepting agents", "address", ln.Addr().String())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			if isResourceExhausted(err) {
				// Out of descriptors: wait for handlers to release some.
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else if backoff *= 2; backoff > time.Second {
					backoff = time.Second
				}
				s.logger.Error("accept failed, backing off", "error", err, "retry_in", backoff)
				select {
				case <-ctx.Done():
				case <-time.After(backoff):
				}
				continue
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		backoff = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}

	s.shutdown()
	s.wg.Wait()
	s.logger.Info("agent listener stopped")
	return nil
}

// shutdown closes handshaking connections and disconnects every agent.
func (s *Server) shutdown() {
	s.pendingMu.Lock()
	for conn := range s.pending {
		conn.Close()
	}
	s.pendingMu.Unlock()

	for _, sess := range s.agents.Sessions() {
		s.disconnect(sess)
	}
}

// disconnect tells an agent it is being dropped and closes its connection.
// The handler notices the closed connection and cleans up.
func (s *Server) disconnect(sess *agent.Session) {
	if err := sess.Send(protocol.ExitNotice(sess.AgentID())); err != nil {
		s.logger.Debug("exit notice not delivered", "agent_id", sess.AgentID(), "error", err)
	}
	sess.Close()
}

// handle runs one connection from handshake to teardown.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	id := model.ConnID(s.nextConn.Add(1))
	logger := s.logger.With("conn_id", id, "remote", conn.RemoteAddr().String())

	scanner := bufio.NewScanner(conn)
	// The scanner's limit includes the line terminator, up to "\r\n".
	scanner.Buffer(make([]byte, 0, 512), s.cfg.MaxLineBytes+2)

	sess, err := s.handshake(ctx, id, conn, scanner)
	if err != nil {
		s.rejected.Add(1)
		conn.Close()
		if isExpectedClose(err) {
			logger.Debug("handshake abandoned", "error", err)
		} else {
			logger.Warn("handshake failed", "error", err)
		}
		return
	}
	s.accepted.Add(1)

	logger = logger.With("agent_id", sess.AgentID())
	logger.Info("agent connected", "agents", s.agents.Len())

	// Shutdown may have run before the session was registered.
	if ctx.Err() != nil {
		s.disconnect(sess)
	}

	err = s.serveSession(sess, scanner, logger)
	s.teardown(sess, err, logger)
}

// handshake reads the agent id, registers the session and replies with
// the house id.
func (s *Server) handshake(ctx context.Context, id model.ConnID, conn net.Conn, scanner *bufio.Scanner) (*agent.Session, error) {
	s.pendingMu.Lock()
	if ctx.Err() != nil {
		s.pendingMu.Unlock()
		return nil, ctx.Err()
	}
	s.pending[conn] = struct{}{}
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, conn)
		s.pendingMu.Unlock()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read agent id: %w", err)
		}
		return nil, fmt.Errorf("read agent id: %w", io.EOF)
	}
	conn.SetReadDeadline(time.Time{})

	agentID, err := protocol.ParseAgentID(scanner.Text())
	if err != nil {
		return nil, err
	}

	sess := agent.NewSession(id, agentID, conn, s.cfg.WriteTimeout)
	s.agents.Register(sess)

	if err := sess.Send(s.cfg.HouseID); err != nil {
		s.agents.Deregister(id)
		sess.Close()
		return nil, fmt.Errorf("write house id: %w", err)
	}
	return sess, nil
}

// serveSession handles requests until the agent exits or the connection
// fails. Returns nil on EXIT_MESSAGE.
func (s *Server) serveSession(sess *agent.Session, scanner *bufio.Scanner, logger *slog.Logger) error {
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if len(line) > s.cfg.MaxLineBytes {
			return fmt.Errorf("%w: line exceeds %d bytes", protocol.ErrMalformedMessage, s.cfg.MaxLineBytes)
		}

		req, err := protocol.Decode(line)
		if err != nil {
			return err
		}

		switch r := req.(type) {
		case protocol.StateQuery:
			if err := sess.Send(protocol.FormatState(s.house.List())...); err != nil {
				return err
			}

		case protocol.Bid:
			if err := s.bid(sess, r, logger); err != nil {
				return err
			}

		case protocol.Exit:
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("%w: line exceeds %d bytes", protocol.ErrMalformedMessage, s.cfg.MaxLineBytes)
		}
		return err
	}
	return io.EOF
}

// bid applies one bid and sends the reply and any outbid notice. Only
// errors writing to this session are returned.
func (s *Server) bid(sess *agent.Session, r protocol.Bid, logger *slog.Logger) error {
	outcome, err := s.house.PlaceBid(sess.Bidder(), r.ItemID, r.Amount)
	if err != nil {
		logger.Debug("bid denied",
			"item_id", r.ItemID,
			"amount", r.Amount,
			"reason", err,
		)
		return sess.Send(protocol.BidDenied())
	}

	// The displaced holder's notice is queued first, so a bidder that
	// sees BID_ACCEPTED knows the notice is on its way.
	s.notifyOutbid(outcome, logger)
	return sess.Send(protocol.BidAccepted())
}

// notifyOutbid tells the displaced holder, if any, that it lost the lead.
// Both routes queue without waiting on the network.
func (s *Server) notifyOutbid(outcome auction.BidOutcome, logger *slog.Logger) {
	if !outcome.Displaced {
		return
	}

	prev := outcome.Previous
	agentID := prev.Agent
	sess, connected := s.agents.Lookup(prev.Conn)
	if connected {
		agentID = sess.AgentID()
	}

	logger.Info("agent outbid",
		"item_id", outcome.Item.ID,
		"outbid_agent", agentID,
		"current_bid", outcome.Item.CurrentBid,
	)

	if s.cfg.OutbidRouting == RouteBank || s.cfg.OutbidRouting == RouteBoth {
		s.bank.Send(bank.Outbid(agentID))
	}
	if connected && (s.cfg.OutbidRouting == RouteAgent || s.cfg.OutbidRouting == RouteBoth) {
		if err := sess.Send(protocol.Outbid(agentID)); err != nil {
			logger.Debug("outbid notice not delivered", "outbid_agent", agentID, "error", err)
		}
	}
}

// teardown deregisters the session and tells the bank the agent left.
func (s *Server) teardown(sess *agent.Session, err error, logger *slog.Logger) {
	_, wasRegistered := s.agents.Deregister(sess.ConnID())
	sess.Close()

	if wasRegistered {
		s.bank.Send(bank.Exit(sess.AgentID()))
	}

	switch {
	case err == nil:
		logger.Info("agent exited", "agents", s.agents.Len())
	case errors.Is(err, protocol.ErrMalformedMessage):
		s.malformed.Add(1)
		logger.Warn("session ended on malformed message", "error", err)
	case sess.Err() != nil:
		logger.Warn("agent dropped, writes failed", "error", sess.Err())
	case isExpectedClose(err):
		logger.Info("agent disconnected", "agents", s.agents.Len())
	default:
		logger.Warn("agent connection failed", "error", err)
	}
}

// isExpectedClose reports whether err is a normal connection termination.
func isExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, agent.ErrSessionClosed) || errors.Is(err, context.Canceled) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

// isResourceExhausted reports whether an accept error means the process
// cannot take more connections.
func isResourceExhausted(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EMFILE || errno == syscall.ENFILE
	}
	return false
}
