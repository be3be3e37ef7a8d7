package entrycache

// Backend is the authoritative K->V store beneath a [Cache].
//
// Implementations: [github.com/calvinalkan/cachetwo/pkg/memstore.Store]
// (a trivial in-memory map, for witnessing this contract) and
// [github.com/calvinalkan/cachetwo/pkg/bucketstore.Store] (the
// size-bucketed on-disk store).
//
// A Cache holds its single coarse lock while calling into the backend,
// so backend methods must not call back into the same Cache instance.
type Backend[K comparable, V any] interface {
	// Contains reports whether k is present, without mutating state.
	Contains(k K) (bool, error)

	// Get retrieves the value for k, or a wrapped [ErrNotPresent].
	Get(k K) (V, error)

	// Replace returns ownership of v to the backend. The backend never
	// lent v out by move in this implementation, so Replace may be a
	// no-op; it exists so backends that do lend out values (e.g. pooled
	// buffers) have a hook to reclaim them.
	Replace(k K, v V) error

	// Insert stores v under k, creating or overwriting.
	Insert(k K, v V) error

	// Remove deletes k. Removing an absent key is not an error.
	Remove(k K) error

	// Commit flushes any buffered backend-internal state. May be a no-op.
	Commit() error
}
