package sweep

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/auction-house/internal/agent"
	"github.com/rickgao/auction-house/internal/auction"
	"github.com/rickgao/auction-house/internal/bank"
	"github.com/rickgao/auction-house/internal/clock"
	"github.com/rickgao/auction-house/internal/model"
)

var t0 = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

// recordingChannel collects bank messages.
type recordingChannel struct {
	mu   sync.Mutex
	msgs []bank.Message
	sent chan bank.Message
}

func newRecordingChannel() *recordingChannel {
	return &recordingChannel{sent: make(chan bank.Message, 100)}
}

func (c *recordingChannel) Send(msg bank.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	c.sent <- msg
}

func (c *recordingChannel) Messages() []bank.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bank.Message(nil), c.msgs...)
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

type fixture struct {
	house   *auction.House
	agents  *agent.Registry
	bank    *recordingChannel
	clock   *clock.FakeClock
	sweeper *Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.Fake(t0)
	house := auction.NewHouse(auction.DefaultConfig(), clk, nil)
	agents := agent.NewRegistry()
	ch := newRecordingChannel()

	cfg := DefaultConfig()
	cfg.HouseID = "house-1"
	s := New(cfg, house, agents, ch, clk, nil)
	house.SetScheduler(s)

	return &fixture{house: house, agents: agents, bank: ch, clock: clk, sweeper: s}
}

func (f *fixture) register(t *testing.T, id model.ConnID, agentID model.AgentID) model.Bidder {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	sess := agent.NewSession(id, agentID, server, time.Second)
	f.agents.Register(sess)
	return sess.Bidder()
}

func TestSweeper_ClosesAtDeadline(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, 1, "A")
	b := f.register(t, 2, "B")

	if _, err := f.house.PlaceBid(a, 0, 15); err != nil {
		t.Fatalf("PlaceBid(A) error = %v", err)
	}
	f.clock.Advance(10 * time.Second)
	if _, err := f.house.PlaceBid(b, 0, 20); err != nil {
		t.Fatalf("PlaceBid(B) error = %v", err)
	}

	if f.sweeper.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1 (countdown starts once)", f.sweeper.Pending())
	}

	if n := f.sweeper.CloseDue(t0.Add(29 * time.Second)); n != 0 {
		t.Fatalf("CloseDue(29s) closed %d items, want 0", n)
	}
	if n := f.sweeper.CloseDue(t0.Add(30 * time.Second)); n != 1 {
		t.Fatalf("CloseDue(30s) closed %d items, want 1", n)
	}

	msgs := f.bank.Messages()
	if len(msgs) != 1 {
		t.Fatalf("bank messages = %d, want 1", len(msgs))
	}
	name := itemName(t, msgs[0].Line)
	want := "TRANSFER_FUNDS B house-1 20 " + name
	if msgs[0].Line != want {
		t.Errorf("bank line = %q, want %q", msgs[0].Line, want)
	}

	items := f.house.List()
	if len(items) != 3 {
		t.Fatalf("open items = %d, want 3", len(items))
	}
	ids := map[model.ItemID]bool{}
	for _, item := range items {
		ids[item.ID] = true
	}
	if ids[0] || !ids[3] {
		t.Errorf("open ids = %v, want 0 replaced by 3", ids)
	}

	if stats := f.sweeper.Stats(); stats.Settled != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

// itemName extracts the trailing item name from a TRANSFER_FUNDS line.
func itemName(t *testing.T, line string) string {
	t.Helper()
	// TRANSFER_FUNDS <winner> <house> <price> <name...>
	n := 0
	for i, r := range line {
		if r == ' ' {
			n++
			if n == 4 {
				return line[i+1:]
			}
		}
	}
	t.Fatalf("malformed transfer line %q", line)
	return ""
}

func TestSweeper_NoDoubleSettlement(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, 1, "A")

	if _, err := f.house.PlaceBid(a, 1, 50); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}

	var wg sync.WaitGroup
	total := make(chan int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			total <- f.sweeper.CloseDue(t0.Add(time.Minute))
		}()
	}
	wg.Wait()
	close(total)

	sum := 0
	for n := range total {
		sum += n
	}
	if sum != 1 {
		t.Errorf("items closed = %d, want 1", sum)
	}
	if len(f.bank.Messages()) != 1 {
		t.Errorf("bank messages = %d, want 1", len(f.bank.Messages()))
	}
}

func TestSweeper_UnsoldItemsStayOpen(t *testing.T) {
	f := newFixture(t)

	if n := f.sweeper.CloseDue(t0.Add(24 * time.Hour)); n != 0 {
		t.Errorf("CloseDue() closed %d unsold items", n)
	}
	if len(f.house.List()) != 3 {
		t.Errorf("open items = %d, want 3", len(f.house.List()))
	}
}

func TestSweeper_WinnerAlreadyDisconnected(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, 1, "A")

	if _, err := f.house.PlaceBid(a, 2, 11); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}
	f.agents.Deregister(1)

	f.sweeper.CloseDue(t0.Add(30 * time.Second))

	msgs := f.bank.Messages()
	if len(msgs) != 1 {
		t.Fatalf("bank messages = %d, want 1", len(msgs))
	}
	if got := msgs[0].Line[:len("TRANSFER_FUNDS A ")]; got != "TRANSFER_FUNDS A " {
		t.Errorf("bank line = %q, want winner A", msgs[0].Line)
	}
}

func TestSweeper_RecordsSettlement(t *testing.T) {
	f := newFixture(t)
	rec := &recordingRecorder{}
	f.sweeper.SetRecorder(rec)
	a := f.register(t, 1, "A")

	if _, err := f.house.PlaceBid(a, 0, 40); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}
	f.sweeper.CloseDue(t0.Add(30 * time.Second))

	if len(rec.events) != 1 {
		t.Fatalf("events = %d, want 1", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Kind != model.EventSettled || ev.AgentID != "A" || ev.Amount != 40 || ev.HouseID != "house-1" {
		t.Errorf("event = %+v", ev)
	}
	if !ev.OccurredAt.Equal(t0.Add(30 * time.Second)) {
		t.Errorf("OccurredAt = %v", ev.OccurredAt)
	}
}

// Run wakes on its own once fake time passes the deadline.
func TestSweeper_RunClosesItems(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, 1, "A")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.sweeper.Run(ctx) }()

	if _, err := f.house.PlaceBid(a, 0, 15); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}

	// Step fake time until the sweep reports the close. Each step fires
	// whatever timer Run is parked on.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-f.bank.sent:
			if msg.Kind != "TRANSFER_FUNDS" {
				t.Errorf("Kind = %q", msg.Kind)
			}
			if f.clock.Now().Before(t0.Add(30 * time.Second)) {
				t.Errorf("closed at %v, before the deadline", f.clock.Now())
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Run() error = %v", err)
			}
			return
		case <-deadline:
			t.Fatal("item was not closed")
		case <-time.After(time.Millisecond):
			f.clock.Advance(250 * time.Millisecond)
		}
	}
}

func TestSweeper_NextWaitBounded(t *testing.T) {
	f := newFixture(t)

	if got := f.sweeper.nextWait(); got != 500*time.Millisecond {
		t.Errorf("nextWait() with no deadlines = %v, want reconcile interval", got)
	}

	f.sweeper.Schedule(0, t0.Add(100*time.Millisecond))
	if got := f.sweeper.nextWait(); got != 100*time.Millisecond {
		t.Errorf("nextWait() = %v, want 100ms", got)
	}
}
