package model

import (
	"time"

	"github.com/google/uuid"
)

// ItemID identifies an item for the lifetime of the process.
type ItemID int64

// AgentID is the externally supplied identifier of a bidding agent.
type AgentID string

// ConnID identifies one accepted agent connection.
type ConnID uint64

// -----------------------------------------------------------------------------
// Auction Types
// -----------------------------------------------------------------------------

// Item is a snapshot of one item open for bidding.
type Item struct {
	ID         ItemID
	Name       string
	MinimumBid int64
	CurrentBid int64     // Equals MinimumBid until the first accepted bid
	StartedAt  time.Time // Zero until the first accepted bid starts the countdown
}

// Started reports whether the closing countdown has begun.
func (i Item) Started() bool {
	return !i.StartedAt.IsZero()
}

// Deadline returns when bidding closes for a started item.
// The zero time is returned if the countdown has not started.
func (i Item) Deadline(window time.Duration) time.Time {
	if !i.Started() {
		return time.Time{}
	}
	return i.StartedAt.Add(window)
}

// Bidder is the holder of an accepted bid: the connection it arrived on
// and the agent that was registered on that connection at the time.
type Bidder struct {
	Conn  ConnID
	Agent AgentID
}

// Settlement is the outcome of a closed item that had a high bidder.
type Settlement struct {
	ID       uuid.UUID
	ItemID   ItemID
	ItemName string
	Winner   AgentID
	HouseID  string
	Price    int64
	ClosedAt time.Time
}

// -----------------------------------------------------------------------------
// Journal Types
// -----------------------------------------------------------------------------

// EventKind classifies a journal entry.
type EventKind string

const (
	EventBidAccepted EventKind = "bid_accepted"
	EventSettled     EventKind = "settled"
)

// Event is one append-only journal entry.
type Event struct {
	ID         uuid.UUID
	Kind       EventKind
	HouseID    string
	ItemID     ItemID
	ItemName   string
	AgentID    AgentID
	Amount     int64
	OccurredAt time.Time
}
