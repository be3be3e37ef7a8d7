package entrycache

import "sync"

// cell is the shared-mutable-cell backing one cached value: many
// concurrent shared (read) borrows, or a single exclusive (write) borrow,
// exactly [sync.RWMutex]'s own contract.
//
// While cached, a cell is reachable from exactly one of the cache's active
// map or LRU list, never both (I1). Pinning (I2) is not done by the cell:
// the owning entry's outstanding handle count keeps it in the active map.
type cell[V any] struct {
	mu sync.RWMutex
	v  V
}

func newCell[V any](v V) *cell[V] {
	return &cell[V]{v: v}
}
