package auction

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/auction-house/internal/clock"
	"github.com/rickgao/auction-house/internal/model"
)

// House coordinates bids and closes over a Registry and a Ledger.
type House struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	items  *Registry
	ledger *Ledger

	scheduler Scheduler
	recorder  Recorder
}

// NewHouse creates a House with a freshly stocked registry.
func NewHouse(cfg Config, clk clock.Clock, logger *slog.Logger) *House {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}

	return &House{
		cfg:    cfg,
		clock:  clk,
		logger: logger,
		items:  NewRegistry(cfg),
		ledger: NewLedger(),
	}
}

// SetScheduler sets who is told about started countdowns. Must be called
// before bids are placed.
func (h *House) SetScheduler(s Scheduler) {
	h.scheduler = s
}

// SetRecorder sets the journal for accepted bids. Must be called before
// bids are placed.
func (h *House) SetRecorder(r Recorder) {
	h.recorder = r
}

// Window returns the bidding window length.
func (h *House) Window() time.Duration {
	return h.cfg.BiddingWindow
}

// Items returns the underlying registry.
func (h *House) Items() *Registry {
	return h.items
}

// Ledger returns the underlying bid ledger.
func (h *House) Ledger() *Ledger {
	return h.ledger
}

// List returns a snapshot of every open item ordered by id.
func (h *House) List() []model.Item {
	return h.items.List()
}

// PlaceBid applies the acceptance rule and, if the bid is accepted, makes
// bidder the item's high bidder. Both happen under the item's lock.
//
// Returns ErrUnknownItem, ErrItemClosed or ErrBidTooLow for denied bids.
// Outcome.Displaced is set when another connection held the lead.
func (h *House) PlaceBid(bidder model.Bidder, id model.ItemID, amount int64) (BidOutcome, error) {
	s, ok := h.items.slot(id)
	if !ok {
		return BidOutcome{}, ErrUnknownItem
	}

	now := h.clock.Now()

	s.mu.Lock()
	item, started, err := s.acceptLocked(amount, now)
	if err != nil {
		s.mu.Unlock()
		return BidOutcome{Item: item}, err
	}
	prev, hadPrev := h.ledger.Swap(id, bidder)
	s.mu.Unlock()

	outcome := BidOutcome{
		Item:      item,
		Previous:  prev,
		Displaced: hadPrev && prev.Conn != bidder.Conn,
		Started:   started,
	}

	if started && h.scheduler != nil {
		h.scheduler.Schedule(id, item.Deadline(h.cfg.BiddingWindow))
	}

	if h.recorder != nil {
		h.recorder.Record(model.Event{
			ID:         uuid.New(),
			Kind:       model.EventBidAccepted,
			ItemID:     item.ID,
			ItemName:   item.Name,
			AgentID:    bidder.Agent,
			Amount:     amount,
			OccurredAt: now,
		})
	}

	h.logger.Debug("bid accepted",
		"item_id", id,
		"agent_id", bidder.Agent,
		"amount", amount,
		"started", started,
		"displaced", outcome.Displaced,
	)

	return outcome, nil
}

// Close closes an item whose countdown has run out by now: it is marked
// closed, its ledger entry is taken, it leaves the open set and a
// replacement is added. Bids that reach the item after it is marked
// closed are denied. Returns false if the item is unknown, already closed
// or not yet due.
func (h *House) Close(id model.ItemID, now time.Time) (Closure, bool) {
	s, ok := h.items.slot(id)
	if !ok {
		return Closure{}, false
	}

	s.mu.Lock()
	if s.closed || !s.item.Started() || now.Before(s.item.Deadline(h.cfg.BiddingWindow)) {
		s.mu.Unlock()
		return Closure{}, false
	}
	s.closed = true
	item := s.item
	// A started item always has a ledger entry: both are set under s.mu.
	winner, _ := h.ledger.Remove(id)
	s.mu.Unlock()

	h.items.Remove(id)
	replacement := h.items.AddReplacement()

	return Closure{
		Item:        item,
		Winner:      winner,
		Replacement: replacement,
	}, true
}

// Due returns the ids of open items whose countdown has run out by now.
func (h *House) Due(now time.Time) []model.ItemID {
	var due []model.ItemID
	for _, item := range h.items.List() {
		if item.Started() && !now.Before(item.Deadline(h.cfg.BiddingWindow)) {
			due = append(due, item.ID)
		}
	}
	return due
}
