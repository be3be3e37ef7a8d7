// Package diskio provides short-read/short-write-safe primitives for
// seeked file I/O.
//
// The teacher implementation this module is derived from issued single,
// non-looping read/write syscalls at each offset (spec.md §9 flags this as
// an open question). This package closes that question per spec.md's own
// recommendation: loop until the full transfer completes or an
// unrecoverable error occurs.
package diskio

import (
	"fmt"
	"io"
)

// reader is the plain io.Reader subset ReadFull loops on. Bucket files are
// accessed through Seek+Read, so the storagefs.File interface does not
// need to provide io.ReaderAt.
type reader interface {
	Read(p []byte) (int, error)
}

type writer interface {
	Write(p []byte) (int, error)
}

// ReadFull reads exactly len(buf) bytes from r, looping across short reads.
// It wraps [io.ErrUnexpectedEOF] with context identifying the read.
func ReadFull(r reader, buf []byte, what string) error {
	_, err := io.ReadFull(r, buf)
	if err != nil {
		return fmt.Errorf("diskio: short read (%s): %w", what, err)
	}

	return nil
}

// WriteFull writes all of buf to w, looping across short writes.
func WriteFull(w writer, buf []byte, what string) error {
	total := 0

	for total < len(buf) {
		n, err := w.Write(buf[total:])
		if n > 0 {
			total += n
		}

		if err != nil {
			return fmt.Errorf("diskio: short write (%s): %w", what, err)
		}

		if n == 0 {
			return fmt.Errorf("diskio: zero-length write with no error (%s): %w", what, io.ErrShortWrite)
		}
	}

	return nil
}
