package bucketstore

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/cachetwo/pkg/entrycache"
)

// Error classification. Implementations may wrap these with additional
// context via fmt.Errorf("%w: ..."). Callers must classify with errors.Is.
//
// ErrNotPresent, ErrIo and ErrCodec wrap their entrycache counterparts, so
// an error from a Store also satisfies errors.Is against entrycache's.
var (
	// ErrNotPresent mirrors entrycache.ErrNotPresent: Get was called for
	// a key not in the index.
	ErrNotPresent = fmt.Errorf("bucketstore: %w", entrycache.ErrNotPresent)

	// ErrIo indicates a filesystem failure.
	ErrIo = fmt.Errorf("bucketstore: %w", entrycache.ErrIo)

	// ErrCodec indicates a key or value encode/decode failure.
	ErrCodec = fmt.Errorf("bucketstore: %w", entrycache.ErrCodec)

	// ErrCorrupt indicates a bucket file's on-disk content violates the
	// format invariants (truncated header, length mismatch) in a way
	// that cannot be attributed to ordinary I/O failure.
	ErrCorrupt = errors.New("bucketstore: corrupt")

	// ErrInvalidOptions indicates a misconfigured Options value.
	ErrInvalidOptions = errors.New("bucketstore: invalid options")

	// ErrBusy indicates the folder's advisory lock is held by another
	// Store instance.
	ErrBusy = errors.New("bucketstore: busy")
)
