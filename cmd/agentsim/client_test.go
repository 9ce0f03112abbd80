package main

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/rickgao/auction-house/internal/model"
)

// fakeHouse answers a client over net.Pipe with scripted replies keyed by
// request line.
func fakeHouse(t *testing.T, replies map[string][]string) *client {
	t.Helper()
	server, conn := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		conn.Close()
	})

	go func() {
		sc := bufio.NewScanner(server)
		for sc.Scan() {
			for _, line := range replies[sc.Text()] {
				if _, err := io.WriteString(server, line+"\n"); err != nil {
					return
				}
			}
		}
	}()

	return newClient(conn)
}

func TestClient_Handshake(t *testing.T) {
	c := fakeHouse(t, map[string][]string{"alice": {"house-1"}})

	id, err := c.handshake("alice")
	if err != nil || id != "house-1" {
		t.Errorf("handshake() = %q, %v, want house-1", id, err)
	}
}

func TestClient_State(t *testing.T) {
	c := fakeHouse(t, map[string][]string{
		"GET_AUCTION_STATE": {
			"BID_OUTBID alice",
			"AUCTION_STATE 2",
			"ITEM 0 10 15 Table",
			"ITEM 1 10 10 Washing Machine",
			"HINT Type the item ID and the value of your bid to participate.",
		},
	})

	var notices []string
	c.onNotice = func(line string) { notices = append(notices, line) }

	items, err := c.state()
	if err != nil {
		t.Fatalf("state() error = %v", err)
	}
	if len(items) != 2 || items[1].Name != "Washing Machine" || items[0].CurrentBid != 15 {
		t.Errorf("state() = %+v", items)
	}
	if len(notices) != 1 || notices[0] != "BID_OUTBID alice" {
		t.Errorf("notices = %v", notices)
	}
}

func TestClient_Bid(t *testing.T) {
	c := fakeHouse(t, map[string][]string{
		"0 15": {"BID_ACCEPTED"},
		"0 12": {"BID_DENIED"},
		"0 99": {"WHAT"},
	})

	if ok, err := c.bid(0, 15); err != nil || !ok {
		t.Errorf("bid(0, 15) = %v, %v, want accepted", ok, err)
	}
	if ok, err := c.bid(0, 12); err != nil || ok {
		t.Errorf("bid(0, 12) = %v, %v, want denied", ok, err)
	}
	if _, err := c.bid(0, 99); err == nil {
		t.Error("bid(0, 99) error = nil for unexpected reply")
	}
}

func TestClient_ForcedExit(t *testing.T) {
	c := fakeHouse(t, map[string][]string{
		"GET_AUCTION_STATE": {"EXIT_MESSAGE alice"},
	})

	if _, err := c.state(); err != io.EOF {
		t.Errorf("state() error = %v, want io.EOF", err)
	}
}

func TestBidder_Round(t *testing.T) {
	c := fakeHouse(t, map[string][]string{
		"GET_AUCTION_STATE": {"AUCTION_STATE 1", "ITEM 3 10 40 Piano", "HINT x"},
		"3 45":              {"BID_ACCEPTED"},
	})

	b := &bidder{
		client:   c,
		itemID:   3,
		step:     5,
		budget:   100,
		interval: time.Millisecond,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	done, err := b.round()
	if err != nil || done {
		t.Fatalf("round() = %v, %v", done, err)
	}
	if !b.leading {
		t.Error("leading = false after accepted bid")
	}

	// Leading: the next round only refreshes state.
	done, err = b.round()
	if err != nil || done {
		t.Errorf("second round() = %v, %v", done, err)
	}
}

func TestBidder_OverBudget(t *testing.T) {
	c := fakeHouse(t, map[string][]string{
		"GET_AUCTION_STATE": {"AUCTION_STATE 1", "ITEM 3 10 98 Piano", "HINT x"},
	})

	b := &bidder{client: c, itemID: 3, step: 5, budget: 100, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	done, err := b.round()
	if err != nil || !done {
		t.Errorf("round() = %v, %v, want done without error", done, err)
	}
}

func TestBidder_ItemGone(t *testing.T) {
	c := fakeHouse(t, map[string][]string{
		"GET_AUCTION_STATE": {"AUCTION_STATE 0", "HINT x"},
	})

	b := &bidder{client: c, itemID: 3, step: 5, budget: 100, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	if _, err := b.round(); err != errItemGone {
		t.Errorf("round() error = %v, want errItemGone", err)
	}
}

func TestNextBid(t *testing.T) {
	tests := []struct {
		item model.Item
		step int64
		want int64
	}{
		{model.Item{MinimumBid: 10, CurrentBid: 10}, 5, 15},
		{model.Item{MinimumBid: 10, CurrentBid: 40}, 5, 45},
		{model.Item{MinimumBid: 10, CurrentBid: 10}, 0, 11},
	}
	for _, tt := range tests {
		if got := nextBid(tt.item, tt.step); got != tt.want {
			t.Errorf("nextBid(%+v, %d) = %d, want %d", tt.item, tt.step, got, tt.want)
		}
	}
}
