package catalog

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrItemNotFound indicates the catalog holds no item with the given id.
	ErrItemNotFound = errors.New("catalog: item not found")
	// ErrItemExists indicates an insert collided with an existing id.
	ErrItemExists = errors.New("catalog: item already exists")
)

// entry pairs an item with its exclusive section. Detection reads, pricing
// snapshots, and learning writes for one item all serialize on this mutex;
// unrelated items never contend.
type entry struct {
	mu   sync.Mutex
	item Item
}

// Catalog is the in-memory authoritative set of known rare items. The outer
// lock guards only the map; per-item state is guarded item by item.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New constructs an empty catalog.
func New() *Catalog {
	return &Catalog{entries: make(map[string]*entry)}
}

// Len counts items, active or not.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Insert adds a new item. Fails if the id is taken.
func (c *Catalog) Insert(item Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[item.ID]; ok {
		return ErrItemExists
	}
	c.entries[item.ID] = &entry{item: item}
	return nil
}

// Replace installs or overwrites an item, used when loading persisted state.
func (c *Catalog) Replace(item Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[item.ID]; ok {
		e.mu.Lock()
		e.item = item
		e.mu.Unlock()
		return
	}
	c.entries[item.ID] = &entry{item: item}
}

// Snapshot returns a deep copy of one item taken under its exclusive section.
func (c *Catalog) Snapshot(id string) (Item, bool) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return Item{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.item.clone(), true
}

// Update runs fn inside the item's exclusive section. fn must validate
// before mutating so a returned error leaves the item untouched.
func (c *Catalog) Update(id string, fn func(*Item) error) error {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return ErrItemNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.item)
}

// Items returns deep copies of every item, ordered by id for determinism.
func (c *Catalog) Items() []Item {
	c.mu.RLock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)

	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := c.Snapshot(id); ok {
			out = append(out, item)
		}
	}
	return out
}

// ActiveItems filters Items down to active entries.
func (c *Catalog) ActiveItems() []Item {
	all := c.Items()
	out := all[:0]
	for _, item := range all {
		if item.Active {
			out = append(out, item)
		}
	}
	return out
}
