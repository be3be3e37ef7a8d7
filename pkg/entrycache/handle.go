package entrycache

import (
	"log/slog"
	"runtime"
	"sync/atomic"
)

// SharedHandle is a scoped shared (read-only) borrow of a cached value.
//
// Call [SharedHandle.Release] exactly once when done; Go has no
// destructors, so release is not automatic. A debug-only leak check logs a
// warning (via the owning cache's logger) if a SharedHandle is garbage
// collected without Release ever having been called.
type SharedHandle[V any] struct {
	cell      *cell[V]
	released  atomic.Bool
	onRelease func()
	cleanup   runtime.Cleanup
}

// Value returns the borrowed value. Valid until Release.
func (h *SharedHandle[V]) Value() V {
	return h.cell.v
}

// Release ends the borrow, making the entry eligible to move from active
// to the LRU once every outstanding handle on the key has been released.
// Release is idempotent.
func (h *SharedHandle[V]) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}

	h.cleanup.Stop()
	h.cell.mu.RUnlock()
	h.onRelease()
}

// ExclusiveHandle is a scoped exclusive (read-write) borrow of a cached
// value. Only one exclusive handle, and no shared handles, may be
// outstanding for a key at a time; see [Cache.GetMut].
type ExclusiveHandle[V any] struct {
	cell      *cell[V]
	released  atomic.Bool
	onRelease func()
	cleanup   runtime.Cleanup
}

// Value returns the current value. Valid until Release.
func (h *ExclusiveHandle[V]) Value() V {
	return h.cell.v
}

// Set overwrites the value in place.
func (h *ExclusiveHandle[V]) Set(v V) {
	h.cell.v = v
}

// Release ends the borrow, making the entry eligible for deactivation.
// Release is idempotent.
func (h *ExclusiveHandle[V]) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}

	h.cleanup.Stop()
	h.cell.mu.Unlock()
	h.onRelease()
}

// leakWarning logs a handle released by the garbage collector instead of
// by an explicit call, per spec.md §9's "debug-build leak check" guidance.
// It must not close over the handle itself, or the cleanup would keep the
// handle permanently reachable and never fire.
func leakWarning(logger *slog.Logger, op string, keyDesc string) func(struct{}) {
	return func(struct{}) {
		logger.Warn("entrycache: handle garbage collected without Release", "op", op, "key", keyDesc)
	}
}
