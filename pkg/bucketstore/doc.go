// Package bucketstore implements a size-bucketed, swap-compacting on-disk
// [github.com/calvinalkan/cachetwo/pkg/entrycache.Backend].
//
// Records of heterogeneous serialized length are routed into a family of
// fixed-slot files ("buckets"), one file per slot size, named "<S>.cache"
// where S is a power of two strictly larger than the record's framed
// length. Deletion is O(1) via swap-removal with the last live slot;
// growth doubles a bucket's reserved slot count; an in-place overwrite
// that no longer fits its current bucket migrates to a new one.
//
// A Store owns its folder exclusively for its lifetime (via an advisory
// lock file); concurrent processes against the same folder are undefined
// behavior. At most one bucket file is held open at a time.
package bucketstore
