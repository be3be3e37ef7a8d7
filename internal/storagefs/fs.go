// Package storagefs provides the filesystem abstraction consumed by
// pkg/bucketstore.
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using the [os] package
//
// Tests substitute other [FS] implementations (see internal/storagefs/fsfault)
// to exercise bucketstore's handling of truncated reads, short writes, and
// outright I/O failures without touching the real disk.
package storagefs

import (
	"io"
	"os"
)

// File represents an open file descriptor.
//
// This interface is satisfied by [os.File] and can be used with all
// standard library functions that accept [io.Reader], [io.Writer],
// [io.Seeker], or [io.Closer].
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor. Used for [Locker].
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file.
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk.
	Sync() error

	// Truncate changes the size of the file.
	Truncate(size int64) error
}

// FS defines the filesystem operations pkg/bucketstore needs.
//
// Paths use OS semantics, not the slash-separated paths of the standard
// library io/fs package. Implementations must be safe for concurrent use.
type FS interface {
	// OpenFile opens a file with the given flags and permissions, with the
	// same semantics as [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadDir reads a directory and returns its entries sorted by name.
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory and all parents.
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info, or an error satisfying [os.IsNotExist].
	Stat(path string) (os.FileInfo, error)

	// Remove deletes a file.
	Remove(path string) error

	// ReadFile reads an entire small file into memory (used for config only,
	// never for bucket data files).
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic writes data to path atomically: the whole file either
	// appears with its new contents or not at all from a reader's point of
	// view. Used for config only, never for bucket data files, which require
	// in-place seeked writes incompatible with whole-file replacement.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
