package auction

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/auction-house/internal/model"
)

// Registry holds the items currently open for bidding.
type Registry struct {
	// mu guards membership of items only. Item fields are guarded by the
	// item's own slot lock.
	mu    sync.RWMutex
	items map[model.ItemID]*slot

	nextID     atomic.Int64
	minimumBid int64
	catalog    catalog
}

// slot is one item and the lock that serializes bids on it.
type slot struct {
	mu     sync.Mutex
	item   model.Item
	closed bool
}

// NewRegistry creates a registry holding cfg.InitialItems fresh items.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{
		items:      make(map[model.ItemID]*slot),
		minimumBid: cfg.MinimumBid,
		catalog:    newCatalog(cfg.Catalog),
	}
	for i := 0; i < cfg.InitialItems; i++ {
		r.AddReplacement()
	}
	return r
}

// List returns a snapshot of every open item ordered by id.
func (r *Registry) List() []model.Item {
	r.mu.RLock()
	slots := make([]*slot, 0, len(r.items))
	for _, s := range r.items {
		slots = append(slots, s)
	}
	r.mu.RUnlock()

	result := make([]model.Item, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		if !s.closed {
			result = append(result, s.item)
		}
		s.mu.Unlock()
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Get returns a snapshot of an open item.
func (r *Registry) Get(id model.ItemID) (model.Item, bool) {
	s, ok := r.slot(id)
	if !ok {
		return model.Item{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Item{}, false
	}
	return s.item, true
}

// SetCurrentBid applies the acceptance rule to one item. On success the
// countdown is started at now unless it already was; started reports
// whether this call started it.
func (r *Registry) SetCurrentBid(id model.ItemID, amount int64, now time.Time) (item model.Item, started bool, err error) {
	s, ok := r.slot(id)
	if !ok {
		return model.Item{}, false, ErrUnknownItem
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptLocked(amount, now)
}

// Remove deletes an item from the open set. Idempotent.
func (r *Registry) Remove(id model.ItemID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

// AddReplacement creates a new item with the next id, a catalog name and
// the configured minimum bid.
func (r *Registry) AddReplacement() model.Item {
	item := model.Item{
		ID:         model.ItemID(r.nextID.Add(1) - 1),
		Name:       r.catalog.pick(),
		MinimumBid: r.minimumBid,
		CurrentBid: r.minimumBid,
	}

	r.mu.Lock()
	r.items[item.ID] = &slot{item: item}
	r.mu.Unlock()

	return item
}

// Len returns the number of open items.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *Registry) slot(id model.ItemID) (*slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[id]
	return s, ok
}

// acceptLocked must be called with s.mu held.
func (s *slot) acceptLocked(amount int64, now time.Time) (model.Item, bool, error) {
	if s.closed {
		return model.Item{}, false, ErrItemClosed
	}
	if amount <= s.item.MinimumBid || amount <= s.item.CurrentBid {
		return s.item, false, ErrBidTooLow
	}

	s.item.CurrentBid = amount
	started := false
	if !s.item.Started() {
		s.item.StartedAt = now
		started = true
	}
	return s.item, started, nil
}
