package auction

import (
	"sync"

	"github.com/rickgao/auction-house/internal/model"
)

// Ledger maps each item with an accepted bid to its current high bidder.
// Entries are only written by House while the item's lock is held, which
// is what orders swaps on the same item.
type Ledger struct {
	m sync.Map // model.ItemID -> model.Bidder
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// HighBidder returns the current high bidder for an item.
func (l *Ledger) HighBidder(id model.ItemID) (model.Bidder, bool) {
	v, ok := l.m.Load(id)
	if !ok {
		return model.Bidder{}, false
	}
	return v.(model.Bidder), true
}

// Swap installs bidder as the high bidder and returns the previous one.
func (l *Ledger) Swap(id model.ItemID, bidder model.Bidder) (model.Bidder, bool) {
	prev, loaded := l.m.Swap(id, bidder)
	if !loaded {
		return model.Bidder{}, false
	}
	return prev.(model.Bidder), true
}

// Remove deletes the entry for an item and returns it. Idempotent.
func (l *Ledger) Remove(id model.ItemID) (model.Bidder, bool) {
	v, ok := l.m.LoadAndDelete(id)
	if !ok {
		return model.Bidder{}, false
	}
	return v.(model.Bidder), true
}

// Len returns the number of items with a high bidder.
func (l *Ledger) Len() int {
	n := 0
	l.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
