// Package entrycache implements a write-through LRU cache with pinned
// active entries, layered above a pluggable [Backend].
//
// entrycache is the C1 layer: it hands out shared or exclusive handles to
// cached entries, keeps every handed-out entry pinned against eviction for
// as long as any handle is outstanding, and reclaims entries into a
// bounded, capacity-limited LRU list once their last handle is released.
// Evicted or committed entries are streamed back to the backend through
// Insert (dirty entries) or Replace (clean entries, a no-op opportunity
// for the backend to reclaim a lent-out value).
//
// # Basic usage
//
//	cache, err := entrycache.New[string, string](4, backend)
//	if err != nil {
//	    // handle configuration error
//	}
//	defer cache.Close()
//
//	h, err := cache.Get("k")
//	if err != nil {
//	    // handle backend error
//	}
//	defer h.Release()
//	fmt.Println(h.Value())
//
// # Concurrency
//
// A single coarse mutex guards the cache's active map, LRU list, and
// backend reference. Individual entries carry their own reader/writer lock
// (a "cell"), so holding a handle to one key never blocks operations on a
// distinct key. Handles have no destructor in Go; callers must call
// Release on every exit path. A debug-only leak check (via
// [runtime.AddCleanup]) logs a warning if a handle is garbage collected
// without having been released.
//
// # Errors
//
// Backend failures surface as wrapped [ErrNotPresent], [ErrIo], or
// [ErrCodec]. Contract violations (inserting over an active key, taking a
// second exclusive handle on an already-active key, committing with
// entries still active) are programmer errors: they panic with a
// [ProgrammerError] rather than returning an error, because returning an
// error here would let a real bug in caller code silently slip past.
package entrycache
