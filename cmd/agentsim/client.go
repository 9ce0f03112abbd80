package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/auction-house/internal/model"
	"github.com/rickgao/auction-house/internal/protocol"
)

var errItemGone = errors.New("item no longer open")

// client speaks the agent side of the line protocol. Unsolicited
// notices that arrive while a reply is awaited are passed to onNotice.
type client struct {
	rw       io.ReadWriter
	r        *bufio.Reader
	onNotice func(line string)
}

func newClient(rw io.ReadWriter) *client {
	return &client{rw: rw, r: bufio.NewReader(rw), onNotice: func(string) {}}
}

func (c *client) send(line string) error {
	_, err := io.WriteString(c.rw, line+"\n")
	return err
}

func (c *client) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// reply reads lines until one that is not an unsolicited notice.
func (c *client) reply() (string, error) {
	for {
		line, err := c.readLine()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(line, protocol.KeyOutbid+" ") || strings.HasPrefix(line, protocol.KeyExit+" ") {
			c.onNotice(line)
			if strings.HasPrefix(line, protocol.KeyExit+" ") {
				return "", io.EOF
			}
			continue
		}
		return line, nil
	}
}

func (c *client) handshake(id model.AgentID) (string, error) {
	if err := c.send(string(id)); err != nil {
		return "", err
	}
	return c.readLine()
}

// state requests and parses the open item listing.
func (c *client) state() ([]model.Item, error) {
	if err := c.send(protocol.KeyStateQuery); err != nil {
		return nil, err
	}

	header, err := c.reply()
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(header)
	if len(fields) != 2 || fields[0] != protocol.KeyAuctionState {
		return nil, fmt.Errorf("unexpected state header %q", header)
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("unexpected state header %q", header)
	}

	items := make([]model.Item, 0, n)
	for i := 0; i < n; i++ {
		line, err := c.reply()
		if err != nil {
			return nil, err
		}
		item, err := protocol.ParseItem(line)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if _, err := c.reply(); err != nil { // hint
		return nil, err
	}
	return items, nil
}

// bid places one bid and reports whether it was accepted.
func (c *client) bid(id model.ItemID, amount int64) (bool, error) {
	if err := c.send(fmt.Sprintf("%d %d", id, amount)); err != nil {
		return false, err
	}
	line, err := c.reply()
	if err != nil {
		return false, err
	}
	switch line {
	case protocol.KeyBidAccepted:
		return true, nil
	case protocol.KeyBidDenied:
		return false, nil
	}
	return false, fmt.Errorf("unexpected reply %q", line)
}

// bidder raises its bid on one item every interval while it is not
// leading and the budget allows.
type bidder struct {
	client   *client
	itemID   model.ItemID
	step     int64
	budget   int64
	interval time.Duration
	logger   *slog.Logger

	leading bool
}

func (b *bidder) run(ctx context.Context) error {
	b.client.onNotice = func(line string) {
		b.logger.Info("notice", "line", line)
		if strings.HasPrefix(line, protocol.KeyOutbid+" ") {
			b.leading = false
		}
	}

	for {
		done, err := b.round()
		if err != nil || done {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.interval):
		}
	}
}

// round refreshes the listing and bids if needed. Returns true when the
// agent should stop.
func (b *bidder) round() (bool, error) {
	items, err := b.client.state()
	if err != nil {
		return true, err
	}

	var target *model.Item
	for i := range items {
		if items[i].ID == b.itemID {
			target = &items[i]
		}
	}
	if target == nil {
		if b.leading {
			b.logger.Info("item closed while leading", "item_id", b.itemID)
			return true, nil
		}
		return true, errItemGone
	}

	if b.leading {
		b.logger.Debug("still leading", "item_id", b.itemID, "current_bid", target.CurrentBid)
		return false, nil
	}

	amount := nextBid(*target, b.step)
	if amount > b.budget {
		b.logger.Info("over budget, giving up", "next_bid", amount, "budget", b.budget)
		return true, nil
	}

	accepted, err := b.client.bid(b.itemID, amount)
	if err != nil {
		return true, err
	}
	b.leading = accepted
	b.logger.Info("bid placed",
		"item_id", b.itemID,
		"item", target.Name,
		"amount", amount,
		"accepted", accepted,
	)
	return false, nil
}

// nextBid returns the smallest bid step above both the minimum and the
// current bid.
func nextBid(item model.Item, step int64) int64 {
	if step < 1 {
		step = 1
	}
	return max(item.MinimumBid, item.CurrentBid) + step
}
