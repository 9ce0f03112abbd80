package auction

import (
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/rickgao/auction-house/internal/clock"
	"github.com/rickgao/auction-house/internal/model"
)

type scheduleCall struct {
	id       model.ItemID
	deadline time.Time
}

type recordingScheduler struct {
	mu    sync.Mutex
	calls []scheduleCall
}

func (s *recordingScheduler) Schedule(id model.ItemID, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduleCall{id: id, deadline: deadline})
}

type recordingRecorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recordingRecorder) Record(ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

var (
	agentA = model.Bidder{Conn: 1, Agent: "A"}
	agentB = model.Bidder{Conn: 2, Agent: "B"}
	agentC = model.Bidder{Conn: 3, Agent: "C"}
)

func newTestHouse(t *testing.T) (*House, *clock.FakeClock, *recordingScheduler) {
	t.Helper()
	clk := clock.Fake(t0)
	h := NewHouse(DefaultConfig(), clk, nil)
	sched := &recordingScheduler{}
	h.SetScheduler(sched)
	return h, clk, sched
}

// Agent A bids 15, B's 12 is denied, B's 20 displaces A, item closes 30s
// after A's bid with B as winner and a replacement takes its place.
func TestHouse_Scenario(t *testing.T) {
	h, clk, sched := newTestHouse(t)

	out, err := h.PlaceBid(agentA, 0, 15)
	assert.NoError(t, err)
	check.True(t, out.Started)
	check.False(t, out.Displaced)

	_, err = h.PlaceBid(agentB, 0, 12)
	check.True(t, errors.Is(err, ErrBidTooLow))

	clk.Advance(5 * time.Second)
	out, err = h.PlaceBid(agentB, 0, 20)
	assert.NoError(t, err)
	check.False(t, out.Started)
	check.True(t, out.Displaced)
	check.Equal(t, agentA, out.Previous)

	assert.Equal(t, 1, len(sched.calls))
	check.True(t, sched.calls[0].deadline.Equal(t0.Add(30*time.Second)))

	_, ok := h.Close(0, t0.Add(29*time.Second))
	check.False(t, ok)

	closure, ok := h.Close(0, t0.Add(30*time.Second))
	assert.True(t, ok)
	check.Equal(t, agentB, closure.Winner)
	check.Equal(t, int64(20), closure.Item.CurrentBid)
	check.Equal(t, model.ItemID(3), closure.Replacement.ID)

	items := h.List()
	check.Equal(t, 3, len(items))
	for _, item := range items {
		check.NotEqual(t, model.ItemID(0), item.ID)
	}
	_, ok = h.Ledger().HighBidder(0)
	check.False(t, ok)
}

func TestHouse_StateBeforeBids(t *testing.T) {
	h, _, _ := newTestHouse(t)

	for _, item := range h.List() {
		check.Equal(t, item.MinimumBid, item.CurrentBid)
		check.False(t, item.Started())
	}
}

func TestHouse_SelfRaiseIsNotDisplacement(t *testing.T) {
	h, _, _ := newTestHouse(t)

	_, err := h.PlaceBid(agentA, 0, 15)
	assert.NoError(t, err)

	out, err := h.PlaceBid(agentA, 0, 25)
	assert.NoError(t, err)
	check.False(t, out.Displaced)
	check.Equal(t, int64(25), out.Item.CurrentBid)
}

func TestHouse_DisplacementChain(t *testing.T) {
	h, _, _ := newTestHouse(t)

	_, err := h.PlaceBid(agentA, 1, 11)
	assert.NoError(t, err)

	out, err := h.PlaceBid(agentB, 1, 12)
	assert.NoError(t, err)
	check.Equal(t, agentA, out.Previous)

	out, err = h.PlaceBid(agentC, 1, 13)
	assert.NoError(t, err)
	check.Equal(t, agentB, out.Previous)
}

func TestHouse_DeniedBidLeavesLedgerUntouched(t *testing.T) {
	h, _, _ := newTestHouse(t)

	_, err := h.PlaceBid(agentA, 0, 10)
	check.True(t, errors.Is(err, ErrBidTooLow))

	_, ok := h.Ledger().HighBidder(0)
	check.False(t, ok)
	item, _ := h.Items().Get(0)
	check.False(t, item.Started())
}

func TestHouse_UnknownItem(t *testing.T) {
	h, _, _ := newTestHouse(t)

	_, err := h.PlaceBid(agentA, 77, 100)
	check.True(t, errors.Is(err, ErrUnknownItem))
}

func TestHouse_BidAfterCloseDenied(t *testing.T) {
	h, _, _ := newTestHouse(t)

	_, err := h.PlaceBid(agentA, 0, 15)
	assert.NoError(t, err)
	_, ok := h.Close(0, t0.Add(time.Minute))
	assert.True(t, ok)

	_, err = h.PlaceBid(agentB, 0, 50)
	check.True(t, errors.Is(err, ErrUnknownItem) || errors.Is(err, ErrItemClosed))

	_, ok = h.Close(0, t0.Add(2*time.Minute))
	check.False(t, ok)
}

func TestHouse_CloseSkipsUnstartedItems(t *testing.T) {
	h, _, _ := newTestHouse(t)

	_, ok := h.Close(2, t0.Add(time.Hour))
	check.False(t, ok)
	check.Equal(t, 0, len(h.Due(t0.Add(time.Hour))))
}

func TestHouse_Due(t *testing.T) {
	h, clk, _ := newTestHouse(t)

	_, err := h.PlaceBid(agentA, 0, 15)
	assert.NoError(t, err)
	clk.Advance(10 * time.Second)
	_, err = h.PlaceBid(agentB, 2, 15)
	assert.NoError(t, err)

	check.Equal(t, 0, len(h.Due(t0.Add(29*time.Second))))

	due := h.Due(t0.Add(30 * time.Second))
	assert.Equal(t, 1, len(due))
	check.Equal(t, model.ItemID(0), due[0])

	check.Equal(t, 2, len(h.Due(t0.Add(40*time.Second))))
}

func TestHouse_RecordsAcceptedBids(t *testing.T) {
	h, _, _ := newTestHouse(t)
	rec := &recordingRecorder{}
	h.SetRecorder(rec)

	_, _ = h.PlaceBid(agentA, 0, 15)
	_, _ = h.PlaceBid(agentB, 0, 12)

	assert.Equal(t, 1, len(rec.events))
	ev := rec.events[0]
	check.Equal(t, model.EventBidAccepted, ev.Kind)
	check.Equal(t, model.AgentID("A"), ev.AgentID)
	check.Equal(t, int64(15), ev.Amount)
}

// Concurrent bidders on one item: the ledger ends on the bidder of the
// greatest accepted amount, and every accepted bid except the first
// displaces exactly the holder it replaced.
func TestHouse_ConcurrentBidsOnOneItem(t *testing.T) {
	h, _, _ := newTestHouse(t)

	const bidders = 16
	const perBidder = 200

	type accepted struct {
		bidder    model.Bidder
		amount    int64
		prev      model.Bidder
		displaced bool
		started   bool
	}

	var mu sync.Mutex
	var all []accepted

	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(b model.Bidder) {
			defer wg.Done()
			for j := 0; j < perBidder; j++ {
				amount := int64(rand.IntN(5000))
				out, err := h.PlaceBid(b, 0, amount)
				if err != nil {
					continue
				}
				mu.Lock()
				all = append(all, accepted{
					bidder:    b,
					amount:    amount,
					prev:      out.Previous,
					displaced: out.Displaced,
					started:   out.Started,
				})
				mu.Unlock()
			}
		}(model.Bidder{Conn: model.ConnID(i + 1), Agent: model.AgentID(rune('a' + i))})
	}
	wg.Wait()

	assert.True(t, len(all) > 0)

	// Accepted amounts strictly increase, so sorting by amount recovers
	// the order the ledger saw them in.
	sort.Slice(all, func(i, j int) bool { return all[i].amount < all[j].amount })

	first := all[0]
	check.True(t, first.started)
	check.Equal(t, model.Bidder{}, first.prev)
	check.False(t, first.displaced)

	displacements := 0
	for i := 1; i < len(all); i++ {
		prior, cur := all[i-1], all[i]
		check.True(t, prior.amount < cur.amount)
		check.False(t, cur.started)
		// Each accepted bid learns exactly the holder before it.
		check.Equal(t, prior.bidder, cur.prev)
		check.Equal(t, prior.bidder.Conn != cur.bidder.Conn, cur.displaced)
		if cur.displaced {
			displacements++
		}
	}

	last := all[len(all)-1]
	holder, ok := h.Ledger().HighBidder(0)
	assert.True(t, ok)
	check.Equal(t, last.bidder, holder)

	item, _ := h.Items().Get(0)
	check.Equal(t, last.amount, item.CurrentBid)
	t.Logf("%d accepted bids, %d displacements", len(all), displacements)
}

// Bids on different items proceed independently.
func TestHouse_ConcurrentBidsAcrossItems(t *testing.T) {
	h, _, _ := newTestHouse(t)

	var wg sync.WaitGroup
	for id := model.ItemID(0); id < 3; id++ {
		wg.Add(1)
		go func(id model.ItemID) {
			defer wg.Done()
			for amount := int64(11); amount <= 500; amount++ {
				if _, err := h.PlaceBid(model.Bidder{Conn: model.ConnID(id) + 1}, id, amount); err != nil {
					t.Errorf("PlaceBid(%d, %d) error = %v", id, amount, err)
					return
				}
			}
		}(id)
	}
	wg.Wait()

	for _, item := range h.List() {
		check.Equal(t, int64(500), item.CurrentBid)
	}
}
