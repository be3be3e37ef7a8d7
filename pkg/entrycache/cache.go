package entrycache

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

// entry is the bookkeeping record for one key known to a [Cache], whether
// currently active (outstanding > 0, held in Cache.active) or inactive
// (outstanding == 0, held in Cache.lru).
//
// dirty records that the value may differ from the backend's copy: it is
// set when GetMut hands out an exclusive handle and when Insert overwrites
// an LRU entry. Commit and LRU eviction use it to decide whether the
// write-through is an Insert (dirty) or a Replace (clean).
type entry[V any] struct {
	cell        *cell[V]
	dirty       bool
	outstanding int
}

// Cache is a fixed-capacity, write-through front for a [Backend].
//
// At most Cap entries are inactive (held only in the LRU); any number of
// entries may additionally be active (borrowed out via a live handle),
// since an active entry is pinned regardless of LRU pressure. See doc.go
// for the full model.
//
// A Cache's zero value is not usable; construct with [New].
type Cache[K comparable, V any] struct {
	mu sync.Mutex

	backend Backend[K, V]
	cap     int
	logger  *slog.Logger

	active map[K]*entry[V]
	lru    *lru[K, V]
}

// Option configures a [Cache] constructed by [New].
type Option[K comparable, V any] func(*Cache[K, V])

// WithLogger attaches a logger used for debug-build leak warnings (see
// doc.go). The default is [slog.Default].
func WithLogger[K comparable, V any](logger *slog.Logger) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.logger = logger
	}
}

// New constructs a Cache of fixed capacity cap over backend.
//
// cap must be in [1, maxCapacity]; otherwise New returns a wrapped
// [ErrInvalidCapacity].
func New[K comparable, V any](cap int, backend Backend[K, V], opts ...Option[K, V]) (*Cache[K, V], error) {
	if cap < 1 || cap > maxCapacity {
		return nil, fmt.Errorf("%w: %d (must be in [1, %d])", ErrInvalidCapacity, cap, maxCapacity)
	}

	c := &Cache[K, V]{
		backend: backend,
		cap:     cap,
		logger:  slog.Default(),
		active:  make(map[K]*entry[V]),
		lru:     newLRU[K, V](cap),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Cap returns the cache's fixed LRU capacity.
func (c *Cache[K, V]) Cap() int {
	return c.cap
}

// NumActive reports the number of currently active (pinned) entries.
func (c *Cache[K, V]) NumActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.active)
}

// Contains reports whether k is present, checking the active set, the
// LRU, and finally the backend, without activating k.
func (c *Cache[K, V]) Contains(k K) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[k]; ok {
		return true, nil
	}
	if _, ok := c.lru.get(k); ok {
		return true, nil
	}

	return c.backend.Contains(k)
}

// Get returns a shared, read-only handle on k's value, activating k if it
// was inactive or absent-but-present-in-the-backend.
//
// If k currently has an outstanding exclusive handle, Get blocks until
// that handle is released; it does not fail fast. Unlike GetMut's
// reentrance case, this is ordinary borrow contention rather than a
// contract violation, so it is handled by waiting, not panicking.
func (c *Cache[K, V]) Get(k K) (*SharedHandle[V], error) {
	c.mu.Lock()

	e, err := c.resolve(k)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	e.outstanding++
	c.mu.Unlock()

	// Blocks here, not under c.mu, if an exclusive handle is currently
	// held; the outstanding refcount already reserves this entry's place
	// in the active set so it cannot be evicted while we wait.
	e.cell.mu.RLock()

	h := &SharedHandle[V]{cell: e.cell, onRelease: func() { c.deactivate(k) }}
	h.cleanup = runtime.AddCleanup(h, leakWarning(c.logger, "Get", fmt.Sprint(k)), struct{}{})

	return h, nil
}

// GetMut returns an exclusive, read-write handle on k's value, activating
// k if needed.
//
// GetMut panics with a [ProgrammerError] if k already has any outstanding
// handle, shared or exclusive. Unlike Get, which waits out an exclusive
// handle, GetMut's contract is fail-fast, not block-and-wait, so a caller
// that reenters GetMut on a key it is already holding finds out
// immediately rather than deadlocking.
func (c *Cache[K, V]) GetMut(k K) (*ExclusiveHandle[V], error) {
	c.mu.Lock()

	e, err := c.resolve(k)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	if e.outstanding > 0 {
		c.mu.Unlock()
		failFast("GetMut", fmt.Sprintf("key %v already has an outstanding handle", k))
	}

	e.outstanding++
	e.dirty = true
	c.mu.Unlock()

	e.cell.mu.Lock()

	h := &ExclusiveHandle[V]{cell: e.cell, onRelease: func() { c.deactivate(k) }}
	h.cleanup = runtime.AddCleanup(h, leakWarning(c.logger, "GetMut", fmt.Sprint(k)), struct{}{})

	return h, nil
}

// resolve finds or creates the active entry for k, moving it out of the
// LRU or pulling it from the backend as needed. c.mu must be held.
func (c *Cache[K, V]) resolve(k K) (*entry[V], error) {
	if e, ok := c.active[k]; ok {
		return e, nil
	}

	if e, ok := c.lru.remove(k); ok {
		c.active[k] = e
		return e, nil
	}

	v, err := c.backend.Get(k)
	if err != nil {
		return nil, err
	}

	e := &entry[V]{cell: newCell(v)}
	c.active[k] = e

	return e, nil
}

// Insert stores v under k. Three cases: a key already in the LRU has its
// cell overwritten in place and is marked dirty, with no backend call
// until eviction or commit; a brand-new key (not active, not in the LRU)
// is written straight through to the backend and never occupies an LRU
// slot.
//
// Insert panics with a [ProgrammerError] if k is active: overwriting a
// value a caller currently holds a handle on would silently invalidate
// what that caller is looking at.
func (c *Cache[K, V]) Insert(k K, v V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[k]; ok {
		failFast("Insert", fmt.Sprintf("key %v is active", k))
	}

	if e, ok := c.lru.get(k); ok {
		e.cell.v = v
		e.dirty = true
		return nil
	}

	return c.backend.Insert(k, v)
}

// Remove deletes k from both the cache and the backend.
//
// Remove panics with a [ProgrammerError] if k is active. Removing a key
// out from under a live borrow would leave that handle pointing at a
// value no longer reachable from the cache, violating I1.
func (c *Cache[K, V]) Remove(k K) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[k]; ok {
		failFast("Remove", fmt.Sprintf("key %v is active", k))
	}

	c.lru.remove(k)

	return c.backend.Remove(k)
}

// Active reports whether k currently has an active entry, that is, whether
// at least one handle on k is outstanding.
func (c *Cache[K, V]) Active(k K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.active[k]
	return ok
}

// Commit drains the LRU, oldest to newest, writing each entry through to
// the backend (insert if dirty, replace if clean) and leaving the cache
// with no LRU entries, then calls the backend's own Commit.
//
// Commit panics with a [ProgrammerError] if any entry is currently
// active: a commit must observe a quiescent cache, or it cannot guarantee
// the backend ends up consistent with what every handle believes it
// holds.
func (c *Cache[K, V]) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.active) > 0 {
		failFast("Commit", fmt.Sprintf("%d entries still active", len(c.active)))
	}

	for {
		k, e, ok := c.lru.popOldest()
		if !ok {
			break
		}

		var err error
		if e.dirty {
			err = c.backend.Insert(k, e.cell.v)
		} else {
			err = c.backend.Replace(k, e.cell.v)
		}
		if err != nil {
			return err
		}
	}

	return c.backend.Commit()
}

// deactivate moves k from the active set back into the LRU once its
// outstanding handle count reaches zero, evicting and writing through the
// LRU's victim if this overflows capacity.
//
// deactivate is a silent no-op if k is not active, which can happen if
// Remove raced a handle's release (Remove requires no outstanding handle,
// so this is only reachable via misuse already reported elsewhere; kept
// defensive rather than panicking again on an already-fatal path).
func (c *Cache[K, V]) deactivate(k K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.active[k]
	if !ok {
		return
	}

	e.outstanding--
	if e.outstanding > 0 {
		return
	}

	delete(c.active, k)

	victimKey, victim, evicted := c.lru.pushFront(k, e)
	if !evicted {
		return
	}

	var err error
	if victim.dirty {
		err = c.backend.Insert(victimKey, victim.cell.v)
	} else {
		err = c.backend.Replace(victimKey, victim.cell.v)
	}
	if err != nil {
		c.logger.Error("entrycache: write-through on eviction failed", "key", fmt.Sprint(victimKey), "err", err)
	}
}

// Close commits the cache's remaining LRU entries and discards any error
// from doing so, logging it instead at warn level: a drop is best-effort,
// with no caller left to hand an error back to. Callers that need to
// observe commit failures should call [Cache.Commit] explicitly before
// Close.
//
// Close panics with a [ProgrammerError] if any entry is still active, the
// same precondition [Cache.Commit] enforces.
func (c *Cache[K, V]) Close() error {
	if err := c.Commit(); err != nil {
		c.logger.Warn("entrycache: commit on close failed", "err", err)
	}

	return nil
}
