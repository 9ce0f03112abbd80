package auction

import (
	"errors"
	"time"

	"github.com/rickgao/auction-house/internal/model"
)

// Errors
var (
	ErrUnknownItem = errors.New("unknown item")
	ErrItemClosed  = errors.New("item closed")
	ErrBidTooLow   = errors.New("bid does not exceed minimum and current bid")
)

// Config holds inventory and bidding rules.
type Config struct {
	InitialItems  int           // Items created at startup
	MinimumBid    int64         // Minimum bid of every new item
	BiddingWindow time.Duration // Countdown length from the first accepted bid
	Catalog       []string      // Names new items are drawn from
}

// DefaultConfig returns the reference inventory rules.
func DefaultConfig() Config {
	return Config{
		InitialItems:  3,
		MinimumBid:    10,
		BiddingWindow: 30 * time.Second,
		Catalog: []string{
			"Table", "Chair", "Car", "Computer", "Bed", "TV", "PlayStation",
			"Washing Machine", "Watch", "Piano", "Camera", "Xbox",
		},
	}
}

// Scheduler is told when an item's closing countdown starts.
type Scheduler interface {
	Schedule(id model.ItemID, deadline time.Time)
}

// Recorder receives journal events.
type Recorder interface {
	Record(ev model.Event)
}

// BidOutcome describes an accepted bid.
type BidOutcome struct {
	Item      model.Item   // Item state after the bid
	Previous  model.Bidder // Holder displaced by this bid, if any
	Displaced bool         // True when Previous is another connection
	Started   bool         // True when this bid started the countdown
}

// Closure describes an item that was closed by Close.
type Closure struct {
	Item        model.Item   // Final state of the closed item
	Winner      model.Bidder // High bidder at close
	Replacement model.Item // Item added in its place
}
