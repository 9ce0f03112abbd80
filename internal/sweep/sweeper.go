package sweep

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/auction-house/internal/agent"
	"github.com/rickgao/auction-house/internal/auction"
	"github.com/rickgao/auction-house/internal/bank"
	"github.com/rickgao/auction-house/internal/clock"
	"github.com/rickgao/auction-house/internal/model"
)

// Config holds sweeper configuration.
type Config struct {
	HouseID           string        // Coordinator id placed in settlement requests
	ReconcileInterval time.Duration // Longest sleep between scans (default: 500ms)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconcileInterval: 500 * time.Millisecond,
	}
}

// Stats counts closed items.
type Stats struct {
	Settled int64 // Closed with a winner
}

// Sweeper closes items at their deadlines.
type Sweeper struct {
	cfg      Config
	house    *auction.House
	agents   *agent.Registry
	bank     bank.Channel
	recorder auction.Recorder
	clock    clock.Clock
	logger   *slog.Logger

	mu        sync.Mutex
	deadlines deadlineHeap
	wake      chan struct{}

	settled atomic.Int64
}

// New creates a Sweeper. A nil bank channel discards settlements.
func New(cfg Config, house *auction.House, agents *agent.Registry, ch bank.Channel, clk clock.Clock, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	if ch == nil {
		ch = bank.Discard{}
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = DefaultConfig().ReconcileInterval
	}

	return &Sweeper{
		cfg:    cfg,
		house:  house,
		agents: agents,
		bank:   ch,
		clock:  clk,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// SetRecorder sets the journal for closed items.
func (s *Sweeper) SetRecorder(r auction.Recorder) {
	s.recorder = r
}

// Schedule registers a countdown deadline. Implements auction.Scheduler.
func (s *Sweeper) Schedule(id model.ItemID, at time.Time) {
	s.mu.Lock()
	heap.Push(&s.deadlines, deadline{id: id, at: at})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of scheduled deadlines not yet processed.
func (s *Sweeper) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadlines.Len()
}

// Stats returns close counters.
func (s *Sweeper) Stats() Stats {
	return Stats{
		Settled: s.settled.Load(),
	}
}

// Run closes items as their deadlines pass until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("closing sweep started",
		"window", s.house.Window(),
		"reconcile_interval", s.cfg.ReconcileInterval,
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("closing sweep stopped")
			return nil
		case <-s.wake:
		case <-s.clock.After(s.nextWait()):
		}

		s.CloseDue(s.clock.Now())
	}
}

// nextWait returns how long to sleep before the next scan.
func (s *Sweeper) nextWait() time.Duration {
	wait := s.cfg.ReconcileInterval

	s.mu.Lock()
	if s.deadlines.Len() > 0 {
		if d := s.deadlines[0].at.Sub(s.clock.Now()); d < wait {
			wait = d
		}
	}
	s.mu.Unlock()

	return wait
}

// CloseDue closes every item whose deadline is at or before now and
// returns how many were closed.
func (s *Sweeper) CloseDue(now time.Time) int {
	seen := make(map[model.ItemID]struct{})
	var due []model.ItemID

	s.mu.Lock()
	for s.deadlines.Len() > 0 && !s.deadlines[0].at.After(now) {
		d := heap.Pop(&s.deadlines).(deadline)
		if _, ok := seen[d.id]; !ok {
			seen[d.id] = struct{}{}
			due = append(due, d.id)
		}
	}
	s.mu.Unlock()

	for _, id := range s.house.Due(now) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			due = append(due, id)
		}
	}

	closed := 0
	for _, id := range due {
		closure, ok := s.house.Close(id, now)
		if !ok {
			continue
		}
		s.settle(closure, now)
		closed++
	}
	return closed
}

// settle reports one closed item.
func (s *Sweeper) settle(c auction.Closure, now time.Time) {
	s.logger.Info("bidding is over",
		"item_id", c.Item.ID,
		"item", c.Item.Name,
		"price", c.Item.CurrentBid,
	)

	winner := s.resolve(c.Winner)
	settlement := model.Settlement{
		ID:       uuid.New(),
		ItemID:   c.Item.ID,
		ItemName: c.Item.Name,
		Winner:   winner,
		HouseID:  s.cfg.HouseID,
		Price:    c.Item.CurrentBid,
		ClosedAt: now,
	}
	s.bank.Send(bank.Transfer(settlement))
	s.settled.Add(1)

	s.logger.Info("item won",
		"item_id", c.Item.ID,
		"winner", winner,
		"price", settlement.Price,
		"settlement_id", settlement.ID,
	)

	s.record(model.Event{
		ID:       settlement.ID,
		Kind:     model.EventSettled,
		ItemID:   c.Item.ID,
		ItemName: c.Item.Name,
		AgentID:  winner,
		Amount:   settlement.Price,
	}, now)

	s.logger.Info("item added",
		"item_id", c.Replacement.ID,
		"item", c.Replacement.Name,
		"minimum_bid", c.Replacement.MinimumBid,
	)
}

// resolve maps the winning connection to its agent id. The id stored
// with the bid is used when the agent has already disconnected.
func (s *Sweeper) resolve(b model.Bidder) model.AgentID {
	if s.agents != nil {
		if sess, ok := s.agents.Lookup(b.Conn); ok {
			return sess.AgentID()
		}
	}
	return b.Agent
}

func (s *Sweeper) record(ev model.Event, now time.Time) {
	if s.recorder == nil {
		return
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	ev.HouseID = s.cfg.HouseID
	ev.OccurredAt = now
	s.recorder.Record(ev)
}
