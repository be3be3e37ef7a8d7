// Package fsfault provides a small rate-based fault-injecting
// [storagefs.FS] for exercising pkg/bucketstore's I/O error paths.
//
// It is deliberately much smaller than a crash-consistency simulator: the
// spec's Non-goals explicitly exclude crash-consistent durability, so
// fsfault only injects outright failures and short reads/writes, not
// torn writes or reordering.
package fsfault

import (
	"errors"
	"io"
	"math/rand/v2"
	"os"
	"sync"

	"github.com/calvinalkan/cachetwo/internal/storagefs"
)

// Config controls fault injection rates. Each rate is in [0.0, 1.0].
// The zero value disables all injection.
type Config struct {
	// ReadFailRate is the chance a File.Read call fails outright.
	ReadFailRate float64

	// ShortReadRate is the chance a File.Read call returns fewer bytes
	// than requested without an error, valid io.Reader behavior that
	// exercises diskio.ReadFull's looping.
	ShortReadRate float64

	// WriteFailRate is the chance a File.Write call fails outright.
	WriteFailRate float64

	// ShortWriteRate is the chance a File.Write call writes fewer bytes
	// than requested, returning io.ErrShortWrite as io.Writer's contract
	// requires. diskio.WriteFull treats this as a terminal error rather
	// than looping, since a conforming Write must never return n < len(p)
	// without one.
	ShortWriteRate float64
}

// FS wraps a [storagefs.FS] and injects faults according to Config.
type FS struct {
	inner storagefs.FS
	cfg   Config

	mu   sync.Mutex
	rand *rand.Rand
}

// New wraps inner with fault injection controlled by cfg. seed makes
// injected failures reproducible across test runs.
func New(inner storagefs.FS, cfg Config, seed uint64) *FS {
	return &FS{
		inner: inner,
		cfg:   cfg,
		rand:  rand.New(rand.NewPCG(seed, seed)), //nolint:gosec // test-only determinism, not security
	}
}

func (f *FS) chance(rate float64) bool {
	if rate <= 0 {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.rand.Float64() < rate
}

// OpenFile opens the file through inner and wraps the result with fault
// injection.
func (f *FS) OpenFile(path string, flag int, perm os.FileMode) (storagefs.File, error) {
	file, err := f.inner.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &faultFile{inner: file, fs: f}, nil
}

func (f *FS) ReadDir(path string) ([]os.DirEntry, error)   { return f.inner.ReadDir(path) }
func (f *FS) MkdirAll(path string, perm os.FileMode) error { return f.inner.MkdirAll(path, perm) }
func (f *FS) Stat(path string) (os.FileInfo, error)        { return f.inner.Stat(path) }
func (f *FS) Remove(path string) error                     { return f.inner.Remove(path) }
func (f *FS) ReadFile(path string) ([]byte, error)         { return f.inner.ReadFile(path) }

func (f *FS) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return f.inner.WriteFileAtomic(path, data, perm)
}

// faultFile wraps a storagefs.File, injecting read/write faults.
type faultFile struct {
	inner storagefs.File
	fs    *FS
}

func (ff *faultFile) Read(p []byte) (int, error) {
	if ff.fs.chance(ff.fs.cfg.ReadFailRate) {
		return 0, errors.New("fsfault: injected read failure")
	}

	if ff.fs.chance(ff.fs.cfg.ShortReadRate) && len(p) > 1 {
		p = p[:len(p)/2+1]
	}

	return ff.inner.Read(p)
}

func (ff *faultFile) Write(p []byte) (int, error) {
	if ff.fs.chance(ff.fs.cfg.WriteFailRate) {
		return 0, errors.New("fsfault: injected write failure")
	}

	if ff.fs.chance(ff.fs.cfg.ShortWriteRate) && len(p) > 1 {
		short := len(p)/2 + 1

		n, err := ff.inner.Write(p[:short])
		if err != nil {
			return n, err
		}

		return n, io.ErrShortWrite
	}

	return ff.inner.Write(p)
}

func (ff *faultFile) Seek(offset int64, whence int) (int64, error) {
	return ff.inner.Seek(offset, whence)
}

func (ff *faultFile) Close() error               { return ff.inner.Close() }
func (ff *faultFile) Fd() uintptr                { return ff.inner.Fd() }
func (ff *faultFile) Stat() (os.FileInfo, error) { return ff.inner.Stat() }
func (ff *faultFile) Sync() error                { return ff.inner.Sync() }
func (ff *faultFile) Truncate(size int64) error  { return ff.inner.Truncate(size) }

var _ storagefs.FS = (*FS)(nil)
var _ storagefs.File = (*faultFile)(nil)
