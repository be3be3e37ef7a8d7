package bucketstore

// ref locates a live record on disk: bucket file S, slot index i.
type ref struct {
	s uint64
	i uint64
}
