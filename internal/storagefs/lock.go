package storagefs

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by [Locker.TryLock] when the lock is already
// held through another open file, whether by another process or by another
// Lock in the same process.
var ErrWouldBlock = errors.New("storagefs: lock would block")

// Locker acquires advisory, whole-file locks via flock(2).
//
// A [bucketstore] folder is owned exclusively by one backend instance for
// its lifetime (spec §5); Locker enforces that within the reach of flock,
// which is: single-host, and only against other processes that also use
// flock against the same path. It does not protect against a network
// filesystem shared by multiple hosts.
type Locker struct {
	fs FS
}

// NewLocker creates a Locker that opens lock files through fs.
func NewLocker(fs FS) *Locker {
	return &Locker{fs: fs}
}

// Lock represents a held file lock. Call [Lock.Close] to release it.
type Lock struct {
	file File
}

// TryLock attempts to acquire an exclusive, non-blocking lock on path,
// creating the file if necessary. Returns [ErrWouldBlock] if another holder
// has it locked.
func (l *Locker) TryLock(path string) (*Lock, error) {
	file, err := l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %q: %w", path, err)
	}

	flockErr := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if flockErr != nil {
		_ = file.Close()

		if errors.Is(flockErr, unix.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}

		return nil, fmt.Errorf("flock %q: %w", path, flockErr)
	}

	return &Lock{file: file}, nil
}

// Close releases the lock and closes the underlying file descriptor.
//
// Close is idempotent on a nil receiver. Closing the descriptor also
// releases the flock, but Close unlocks explicitly first so the release is
// visible even if the caller keeps the descriptor open elsewhere.
func (lk *Lock) Close() error {
	if lk == nil || lk.file == nil {
		return nil
	}

	_ = unix.Flock(int(lk.file.Fd()), unix.LOCK_UN)

	return lk.file.Close()
}
