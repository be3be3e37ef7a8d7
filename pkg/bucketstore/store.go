package bucketstore

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/calvinalkan/cachetwo/internal/storagefs"
	"github.com/calvinalkan/cachetwo/pkg/entrycache"
)

const lockFileName = ".bucketstore.lock"

var bucketFileNamePattern = regexp.MustCompile(`^([1-9][0-9]*)\.cache$`)

// Options configures a [Store].
type Options[K comparable, V any] struct {
	// KeyCodec and ValueCodec encode and decode keys and values to and
	// from their on-disk byte representation.
	KeyCodec   Codec[K]
	ValueCodec Codec[V]

	// InitialReservedSlots is the reservedSlots a brand-new bucket file
	// starts with. Must be a power of two >= minInitialReservedSlots if
	// set; zero selects the default.
	InitialReservedSlots uint64

	// KeepBucketWarm controls whether the Store's single open bucket
	// file handle stays open until the next bucket switch (true, the
	// default) or is closed at the end of every call that touches it
	// (false). Either way, at most one bucket file is ever open at a
	// time; this only trades "one fewer syscall per call" against "one
	// fewer open file descriptor between calls". Nil selects the
	// default (true).
	KeepBucketWarm *bool

	// FS is the filesystem a Store reads and writes through. Nil selects
	// [storagefs.NewReal].
	FS storagefs.FS
}

// WithConfig returns a copy of o with cfg's tuning knobs applied. A zero
// InitialReservedSlots in cfg leaves o's own value untouched; cfg always
// sets KeepBucketWarm explicitly, since a loaded Config is a complete
// statement of that knob.
func (o Options[K, V]) WithConfig(cfg Config) Options[K, V] {
	if cfg.InitialReservedSlots != 0 {
		o.InitialReservedSlots = cfg.InitialReservedSlots
	}

	keepWarm := cfg.KeepBucketWarm
	o.KeepBucketWarm = &keepWarm

	return o
}

func validateOptions[K comparable, V any](opts Options[K, V]) (Options[K, V], error) {
	if opts.KeyCodec == nil {
		return opts, fmt.Errorf("%w: KeyCodec is required", ErrInvalidOptions)
	}
	if opts.ValueCodec == nil {
		return opts, fmt.Errorf("%w: ValueCodec is required", ErrInvalidOptions)
	}

	if opts.InitialReservedSlots == 0 {
		opts.InitialReservedSlots = minInitialReservedSlots
	} else if opts.InitialReservedSlots < minInitialReservedSlots || opts.InitialReservedSlots&(opts.InitialReservedSlots-1) != 0 {
		return opts, fmt.Errorf("%w: InitialReservedSlots must be a power of two >= %d", ErrInvalidOptions, minInitialReservedSlots)
	}

	if opts.KeepBucketWarm == nil {
		defaultWarm := true
		opts.KeepBucketWarm = &defaultWarm
	}

	if opts.FS == nil {
		opts.FS = storagefs.NewReal()
	}

	return opts, nil
}

func acquireLock(fs storagefs.FS, folder string) (*storagefs.Lock, error) {
	lock, err := storagefs.NewLocker(fs).TryLock(filepath.Join(folder, lockFileName))
	if err != nil {
		if errors.Is(err, storagefs.ErrWouldBlock) {
			return nil, fmt.Errorf("%w: folder %q is owned by another store", ErrBusy, folder)
		}

		return nil, fmt.Errorf("%w: acquire lock on %q: %w", ErrIo, folder, err)
	}

	return lock, nil
}

// Store is a size-bucketed, swap-compacting on-disk [entrycache.Backend].
//
// A Store owns its folder exclusively for its lifetime (enforced by an
// advisory lock file) and keeps at most one bucket file open at a time.
type Store[K comparable, V any] struct {
	mu sync.Mutex

	folder     string
	fs         storagefs.FS
	keyCodec   Codec[K]
	valueCodec Codec[V]
	reserved   uint64
	keepWarm   bool
	lock       *storagefs.Lock

	buckets map[uint64]*bucket
	openS   uint64

	index  map[K]ref
	closed bool
}

// Cleared opens folder as an empty Store, deleting any existing bucket
// files it finds there.
func Cleared[K comparable, V any](folder string, opts Options[K, V]) (*Store[K, V], error) {
	opts, err := validateOptions(opts)
	if err != nil {
		return nil, err
	}

	if err := opts.FS.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create folder %q: %w", ErrIo, folder, err)
	}

	lock, err := acquireLock(opts.FS, folder)
	if err != nil {
		return nil, err
	}

	entries, err := opts.FS.ReadDir(folder)
	if err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("%w: read folder %q: %w", ErrIo, folder, err)
	}

	for _, entry := range entries {
		if !bucketFileNamePattern.MatchString(entry.Name()) {
			continue
		}

		if err := opts.FS.Remove(filepath.Join(folder, entry.Name())); err != nil {
			_ = lock.Close()
			return nil, fmt.Errorf("%w: remove %q: %w", ErrIo, entry.Name(), err)
		}
	}

	return &Store[K, V]{
		folder:     folder,
		fs:         opts.FS,
		keyCodec:   opts.KeyCodec,
		valueCodec: opts.ValueCodec,
		reserved:   opts.InitialReservedSlots,
		keepWarm:   *opts.KeepBucketWarm,
		lock:       lock,
		buckets:    make(map[uint64]*bucket),
		index:      make(map[K]ref),
	}, nil
}

// Continued opens folder as a Store, rebuilding its index by scanning the
// bucket files already present there. Values are not read during the
// scan, only keys.
func Continued[K comparable, V any](folder string, opts Options[K, V]) (*Store[K, V], error) {
	opts, err := validateOptions(opts)
	if err != nil {
		return nil, err
	}

	if err := opts.FS.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create folder %q: %w", ErrIo, folder, err)
	}

	lock, err := acquireLock(opts.FS, folder)
	if err != nil {
		return nil, err
	}

	s := &Store[K, V]{
		folder:     folder,
		fs:         opts.FS,
		keyCodec:   opts.KeyCodec,
		valueCodec: opts.ValueCodec,
		reserved:   opts.InitialReservedSlots,
		keepWarm:   *opts.KeepBucketWarm,
		lock:       lock,
		buckets:    make(map[uint64]*bucket),
		index:      make(map[K]ref),
	}

	if err := s.scan(); err != nil {
		_ = lock.Close()
		return nil, err
	}

	return s, nil
}

// scan lists folder, opens every existing bucket file in ascending slot
// size order, and walks its live slots to populate the index, reading
// only keys. It leaves no bucket file open when it returns.
func (s *Store[K, V]) scan() error {
	entries, err := s.fs.ReadDir(s.folder)
	if err != nil {
		return fmt.Errorf("%w: read folder %q: %w", ErrIo, s.folder, err)
	}

	var sizes []uint64

	for _, entry := range entries {
		m := bucketFileNamePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}

		size, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}

		sizes = append(sizes, size)
	}

	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })

	for _, size := range sizes {
		b, err := openExistingBucket(s.fs, s.folder, size)
		if err != nil {
			return err
		}

		s.buckets[size] = b

		for i := uint64(0); i < b.numItems; i++ {
			keyBytes, err := b.readSlotKey(i)
			if err != nil {
				_ = b.close()
				return err
			}

			key, err := s.keyCodec.Decode(keyBytes)
			if err != nil {
				_ = b.close()
				return fmt.Errorf("%w: decode key in bucket %d slot %d: %w", ErrCodec, size, i, err)
			}

			s.index[key] = ref{s: size, i: i}
		}

		if err := b.close(); err != nil {
			return fmt.Errorf("%w: close bucket %d after scan: %w", ErrIo, size, err)
		}
	}

	return nil
}

// ensureOpen makes b the Store's single open bucket file, closing
// whichever bucket was previously open if it is a different one.
func (s *Store[K, V]) ensureOpen(b *bucket) error {
	if s.openS == b.s && b.file != nil {
		return nil
	}

	if s.openS != 0 && s.openS != b.s {
		if cur, ok := s.buckets[s.openS]; ok {
			if err := cur.close(); err != nil {
				return fmt.Errorf("%w: close bucket %d: %w", ErrIo, s.openS, err)
			}
		}
	}

	if b.file == nil {
		reopened, err := openExistingBucket(s.fs, s.folder, b.s)
		if err != nil {
			return err
		}

		b.file = reopened.file
	}

	s.openS = b.s

	return nil
}

// getOrCreateBucket returns the bucket for slot size size, opening it as
// the Store's current bucket, creating the file on disk if it does not
// exist yet.
func (s *Store[K, V]) getOrCreateBucket(size uint64) (*bucket, error) {
	if b, ok := s.buckets[size]; ok {
		if err := s.ensureOpen(b); err != nil {
			return nil, err
		}

		return b, nil
	}

	b, err := createBucket(s.fs, s.folder, size, s.reserved)
	if err != nil {
		return nil, err
	}

	s.buckets[size] = b

	if s.openS != 0 {
		if cur, ok := s.buckets[s.openS]; ok {
			if err := cur.close(); err != nil {
				return nil, fmt.Errorf("%w: close bucket %d: %w", ErrIo, s.openS, err)
			}
		}
	}

	s.openS = size

	return b, nil
}

// releaseIfEager closes the Store's currently open bucket file when
// keepWarm is false, leaving its file and index metadata untouched. The
// caller must hold s.mu.
func (s *Store[K, V]) releaseIfEager() error {
	if s.keepWarm || s.openS == 0 {
		return nil
	}

	b, ok := s.buckets[s.openS]
	s.openS = 0

	if !ok {
		return nil
	}

	if err := b.close(); err != nil {
		return fmt.Errorf("%w: close bucket %d: %w", ErrIo, b.s, err)
	}

	return nil
}

// Contains reports whether k is present, without mutating state.
func (s *Store[K, V]) Contains(k K) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.index[k]

	return ok, nil
}

// Get retrieves the value stored for k, or a wrapped [ErrNotPresent].
func (s *Store[K, V]) Get(k K) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V

	r, ok := s.index[k]
	if !ok {
		return zero, fmt.Errorf("%w: %v", ErrNotPresent, k)
	}

	b, err := s.getOrCreateBucket(r.s)
	if err != nil {
		return zero, err
	}

	_, valueBytes, err := b.readSlot(r.i)
	if err != nil {
		return zero, err
	}

	value, err := s.valueCodec.Decode(valueBytes)
	if err != nil {
		return zero, fmt.Errorf("%w: decode value for %v: %w", ErrCodec, k, err)
	}

	if err := s.releaseIfEager(); err != nil {
		return value, err
	}

	return value, nil
}

// Replace is a no-op: Store never lends a value out by move, so there is
// nothing to reclaim.
func (s *Store[K, V]) Replace(_ K, _ V) error {
	return nil
}

// Insert stores v under k, creating or overwriting.
func (s *Store[K, V]) Insert(k K, v V) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyBytes, err := s.keyCodec.Encode(k)
	if err != nil {
		return fmt.Errorf("%w: encode key %v: %w", ErrCodec, k, err)
	}

	valueBytes, err := s.valueCodec.Encode(v)
	if err != nil {
		return fmt.Errorf("%w: encode value for %v: %w", ErrCodec, k, err)
	}

	size := bucketSize(framedLen(len(keyBytes), len(valueBytes)))

	if existing, ok := s.index[k]; ok {
		if err := s.overwrite(k, existing, size, keyBytes, valueBytes); err != nil {
			return err
		}

		return s.releaseIfEager()
	}

	b, err := s.getOrCreateBucket(size)
	if err != nil {
		return err
	}

	i, err := b.add(keyBytes, valueBytes)
	if err != nil {
		return err
	}

	s.index[k] = ref{s: size, i: i}

	return s.releaseIfEager()
}

// overwrite replaces the record stored at old with (key, value), which
// now frames to newSize bytes. If newSize matches old's bucket, the slot
// is rewritten in place; otherwise the old slot is vacated via swap
// removal and the record is added to the new bucket.
//
// swapRemove may move a third key into the vacated slot; that key's
// index entry is repointed at old's Ref, which is exactly where its
// record now lives.
func (s *Store[K, V]) overwrite(key K, old ref, newSize uint64, keyBytes, valueBytes []byte) error {
	if newSize == old.s {
		b, err := s.getOrCreateBucket(old.s)
		if err != nil {
			return err
		}

		if err := b.writeSlot(old.i, keyBytes, valueBytes); err != nil {
			return err
		}

		return nil
	}

	oldBucket, err := s.getOrCreateBucket(old.s)
	if err != nil {
		return err
	}

	movedKeyBytes, movedSomething, err := oldBucket.swapRemove(old.i)
	if err != nil {
		return err
	}

	if movedSomething {
		movedKey, err := s.keyCodec.Decode(movedKeyBytes)
		if err != nil {
			return fmt.Errorf("%w: decode moved key in bucket %d: %w", ErrCodec, old.s, err)
		}

		s.index[movedKey] = old
	}

	newBucket, err := s.getOrCreateBucket(newSize)
	if err != nil {
		return err
	}

	i, err := newBucket.add(keyBytes, valueBytes)
	if err != nil {
		return err
	}

	s.index[key] = ref{s: newSize, i: i}

	return nil
}

// Remove deletes k. Removing an absent key is not an error.
func (s *Store[K, V]) Remove(k K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.index[k]
	if !ok {
		return nil
	}

	b, err := s.getOrCreateBucket(r.s)
	if err != nil {
		return err
	}

	movedKeyBytes, movedSomething, err := b.swapRemove(r.i)
	if err != nil {
		return err
	}

	delete(s.index, k)

	if movedSomething {
		movedKey, err := s.keyCodec.Decode(movedKeyBytes)
		if err != nil {
			return fmt.Errorf("%w: decode moved key in bucket %d: %w", ErrCodec, r.s, err)
		}

		s.index[movedKey] = r
	}

	return s.releaseIfEager()
}

// Commit is a no-op: every Insert/Remove has already been written to its
// bucket file on return. Commit does not sync the files to disk.
func (s *Store[K, V]) Commit() error {
	return nil
}

// Close closes the current bucket file, if any, and releases the
// folder's advisory lock. Close is idempotent.
func (s *Store[K, V]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error

	if s.openS != 0 {
		if b, ok := s.buckets[s.openS]; ok {
			if err := b.close(); err != nil {
				firstErr = err
			}
		}
	}

	if err := s.lock.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

var _ entrycache.Backend[string, string] = (*Store[string, string])(nil)
