package bank

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/auction-house/internal/model"
	"github.com/rickgao/auction-house/internal/protocol"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrRegistration     = errors.New("bank registration failed")
	ErrUnknownTransport = errors.New("unknown transport")
)

// Transport names
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// Config holds the bank connection settings.
type Config struct {
	Transport          string        // TransportTCP or TransportWebSocket
	Address            string        // host:port for tcp, ws:// URL for websocket
	DialTimeout        time.Duration // Per connection attempt
	WriteTimeout       time.Duration // Per line
	ReconnectBaseDelay time.Duration // First backoff after a failure
	ReconnectMaxDelay  time.Duration // Backoff cap
}

// DefaultConfig returns defaults for a local bank.
func DefaultConfig() Config {
	return Config{
		Transport:          TransportTCP,
		Address:            "localhost:6000",
		DialTimeout:        10 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  60 * time.Second,
	}
}

// Message is one line bound for the bank.
type Message struct {
	Kind string // Protocol keyword, for logs
	Line string
}

// Transfer builds the settlement request for a closed item.
func Transfer(s model.Settlement) Message {
	return Message{
		Kind: protocol.KeyTransfer,
		Line: protocol.TransferFunds(s.Winner, s.HouseID, s.Price, s.ItemName),
	}
}

// Outbid builds the notice for an agent that lost the lead.
func Outbid(agentID model.AgentID) Message {
	return Message{Kind: protocol.KeyOutbid, Line: protocol.Outbid(agentID)}
}

// Exit builds the departure notice for an agent.
func Exit(agentID model.AgentID) Message {
	return Message{Kind: protocol.KeyExit, Line: protocol.ExitNotice(agentID)}
}

// Channel accepts messages for the bank without blocking.
type Channel interface {
	Send(msg Message)
}

// Discard is a Channel that drops everything. Used when the bank is
// disabled.
type Discard struct{}

// Send drops msg.
func (Discard) Send(Message) {}

// Transport is one connection to the bank.
type Transport interface {
	// Connect dials the bank. A transport can be reconnected after Close.
	Connect(ctx context.Context) error

	// WriteLine writes one line.
	WriteLine(line string) error

	// ReadLine reads one line, honoring ctx's deadline.
	ReadLine(ctx context.Context) (string, error)

	// Close closes the current connection. Idempotent.
	Close() error

	// IsConnected reports whether a connection is open.
	IsConnected() bool
}

// NewTransport returns the transport named by cfg.Transport.
func NewTransport(cfg Config) (Transport, error) {
	switch cfg.Transport {
	case TransportTCP, "":
		return NewTCPTransport(cfg), nil
	case TransportWebSocket:
		return NewWebSocketTransport(cfg), nil
	default:
		return nil, ErrUnknownTransport
	}
}
