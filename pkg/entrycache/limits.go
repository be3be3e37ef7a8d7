package entrycache

// Hardcoded implementation limits.
//
// These exist to keep the LRU's bookkeeping structures away from absurd
// sizes on misconfiguration, not because the algorithm itself has a
// smaller natural ceiling. Violating them is a configuration error,
// reported by [New] as [ErrInvalidCapacity], not a programmer error against
// an already-running cache.
const (
	// maxCapacity bounds the LRU's fixed capacity N.
	maxCapacity = 1 << 24
)
