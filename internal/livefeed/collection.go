// Package livefeed implements the live collection pattern every realtime
// list in the client is built on: an ordered, de-duplicated record set
// populated by one bulk fetch and kept current by change-feed events.
package livefeed

import "sync"

// Record is any domain row with a stable unique identifier.
type Record interface {
	RecordID() string
}

// Collection is an ordered, de-duplicated in-memory set of records keyed
// by identifier. Insertion order stands in for chronological order: the
// initial fetch arrives sorted, and live events append at the end.
type Collection[T Record] struct {
	mu    sync.RWMutex
	items []T
	index map[string]int
}

// NewCollection creates an empty collection.
func NewCollection[T Record]() *Collection[T] {
	return &Collection[T]{index: make(map[string]int)}
}

// Replace discards prior contents and installs records in the given order.
func (c *Collection[T]) Replace(records []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make([]T, 0, len(records))
	c.index = make(map[string]int, len(records))
	for _, r := range records {
		if _, ok := c.index[r.RecordID()]; ok {
			continue
		}
		c.index[r.RecordID()] = len(c.items)
		c.items = append(c.items, r)
	}
}

// Merge appends the record unless one with the same identifier is already
// present. Reports whether the record was added. This is the dedup
// invariant that keeps an optimistically-merged row and its change-feed
// copy from appearing twice.
func (c *Collection[T]) Merge(r T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[r.RecordID()]; ok {
		return false
	}
	c.index[r.RecordID()] = len(c.items)
	c.items = append(c.items, r)
	return true
}

// Update mutates the stored record with the given identifier in place,
// preserving its position. Reports whether the record was found.
func (c *Collection[T]) Update(id string, fn func(*T)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return false
	}
	fn(&c.items[i])
	return true
}

// Get returns the record with the given identifier.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var zero T
	i, ok := c.index[id]
	if !ok {
		return zero, false
	}
	return c.items[i], true
}

// Snapshot returns a copy of the current ordered contents.
func (c *Collection[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of records.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
