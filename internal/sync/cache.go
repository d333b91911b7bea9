package sync

import (
	stdsync "sync"
	"time"

	"github.com/mschirtzinger/taskboard/internal/schema"
)

// Cache holds the latest fetched data per query key together with the
// bookkeeping that decides which fetch results may be applied.
//
// Sequence numbers are global and strictly increasing. Each key remembers
// the last sequence issued for it; a completion carrying any other sequence
// is stale and is dropped. The cache also records the session epoch it was
// last reset for, and refuses to begin or complete fetches from another
// epoch.
//
// Only Queries writes to the cache.
type Cache struct {
	mu      stdsync.Mutex
	entries map[Key]*cacheEntry
	epoch   uint64
	seq     uint64
	now     func() time.Time
}

type cacheEntry struct {
	Entry

	// issued is the sequence of the latest fetch begun for the key.
	issued uint64

	// invalidated is the value of issued at the last invalidation. A
	// completion with seq <= invalidated started before it.
	invalidated uint64

	// settled is closed once the latest fetch begun for the key has been
	// applied. It is nil when no fetch is outstanding.
	settled chan struct{}
}

func (e *cacheEntry) settle() {
	if e.settled != nil {
		close(e.settled)
		e.settled = nil
	}
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[Key]*cacheEntry),
		now:     time.Now,
	}
}

func (c *Cache) snapshotLocked(key Key) Entry {
	e, ok := c.entries[key]
	if !ok {
		return Entry{Key: key, Status: StatusIdle}
	}
	out := e.Entry
	if e.Data != nil {
		out.Data = make([]schema.Record, len(e.Data))
		copy(out.Data, e.Data)
	}
	return out
}

// snapshot returns a copy of the entry for key; idle if absent.
func (c *Cache) snapshot(key Key) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(key)
}

// fresh returns the entry for key when it belongs to epoch and can be
// served without a remote read.
func (c *Cache) fresh(key Key, epoch uint64) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		return Entry{}, false
	}
	e, ok := c.entries[key]
	if !ok || !e.Fresh() {
		return Entry{}, false
	}
	return c.snapshotLocked(key), true
}

// begin issues a new sequence for key and marks it loading. It fails when
// the cache has moved to another epoch.
func (c *Cache) begin(key Key, epoch uint64) (uint64, Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		return 0, Entry{}, false
	}

	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{Entry: Entry{Key: key}}
		c.entries[key] = e
	}

	c.seq++
	e.issued = c.seq
	if e.settled == nil {
		e.settled = make(chan struct{})
	}
	e.Status = StatusLoading
	e.Err = nil

	return e.issued, c.snapshotLocked(key), true
}

// complete applies the result of fetch seq. It returns false, leaving the
// entry untouched, when seq is no longer the latest fetch for key or the
// epoch has changed. A result whose fetch began before the last
// invalidation is applied but stays stale.
func (c *Cache) complete(key Key, seq, epoch uint64, data []schema.Record, err error) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if epoch != c.epoch || !ok || e.issued != seq {
		return c.snapshotLocked(key), false
	}

	e.settle()

	if err != nil {
		e.Status = StatusError
		e.Err = err
		return c.snapshotLocked(key), true
	}

	e.Data = make([]schema.Record, len(data))
	copy(e.Data, data)
	e.Status = StatusSuccess
	e.Err = nil
	e.UpdatedAt = c.now()
	e.Stale = seq <= e.invalidated

	return c.snapshotLocked(key), true
}

// pending returns a channel that is closed when the latest fetch for key
// in epoch has been applied. It reports false when no fetch is outstanding.
func (c *Cache) pending(key Key, epoch uint64) (<-chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		return nil, false
	}
	e, ok := c.entries[key]
	if !ok || e.settled == nil {
		return nil, false
	}
	return e.settled, true
}

// invalidate marks key stale. It reports false if nothing is cached.
func (c *Cache) invalidate(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry{Key: key, Status: StatusIdle}, false
	}
	e.Stale = true
	e.invalidated = e.issued
	return c.snapshotLocked(key), true
}

// reset drops every entry and moves the cache to epoch. Fetches from
// earlier epochs can no longer complete.
func (c *Cache) reset(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		e.settle()
	}
	c.entries = make(map[Key]*cacheEntry)
	c.epoch = epoch
}
