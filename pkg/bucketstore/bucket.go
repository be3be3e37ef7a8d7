package bucketstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/calvinalkan/cachetwo/internal/diskio"
	"github.com/calvinalkan/cachetwo/internal/storagefs"
)

// bucket tracks one slot-size file's metadata. Its file handle is open
// only while it is the Store's single "current" bucket; metadata
// (numItems, reservedSlots) is always kept current regardless of whether
// the handle is open.
type bucket struct {
	s             uint64
	numItems      uint64
	reservedSlots uint64

	file storagefs.File // nil unless this is the Store's open bucket
}

func bucketFileName(s uint64) string {
	return strconv.FormatUint(s, 10) + ".cache"
}

func bucketPath(folder string, s uint64) string {
	return filepath.Join(folder, bucketFileName(s))
}

// createBucket creates a brand-new bucket file for slot size s with
// initialReservedSlots reserved slots, all zeroed, numItems == 0.
func createBucket(fsys storagefs.FS, folder string, s, initialReservedSlots uint64) (*bucket, error) {
	path := bucketPath(folder, s)

	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create bucket %d: %w", ErrIo, s, err)
	}

	if err := f.Truncate(fileLenForReservedSlots(s, initialReservedSlots)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: size bucket %d: %w", ErrIo, s, err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: seek bucket %d: %w", ErrIo, s, err)
	}

	if err := diskio.WriteFull(f, encodeNumItems(0), "bucket header"); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: init header bucket %d: %w", ErrIo, s, err)
	}

	return &bucket{s: s, numItems: 0, reservedSlots: initialReservedSlots, file: f}, nil
}

// openExistingBucket opens a bucket file that is already known to exist
// (from a prior scan), reading its current numItems and deriving
// reservedSlots from the file length.
func openExistingBucket(fsys storagefs.FS, folder string, s uint64) (*bucket, error) {
	path := bucketPath(folder, s)

	f, err := fsys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open bucket %d: %w", ErrIo, s, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: stat bucket %d: %w", ErrIo, s, err)
	}

	size := info.Size()
	if size < headerBytes {
		_ = f.Close()
		return nil, fmt.Errorf("%w: bucket %d shorter than header", ErrCorrupt, s)
	}

	header := make([]byte, headerBytes)
	if err := diskio.ReadFull(f, header, "bucket header"); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: read header bucket %d: %w", ErrIo, s, err)
	}

	reservedSlots := uint64(size-headerBytes) / s

	return &bucket{
		s:             s,
		numItems:      decodeNumItems(header),
		reservedSlots: reservedSlots,
		file:          f,
	}, nil
}

// close drops this bucket's open file handle, leaving its metadata
// (numItems, reservedSlots) intact for the next time it is opened.
func (b *bucket) close() error {
	if b.file == nil {
		return nil
	}

	err := b.file.Close()
	b.file = nil

	return err
}

func (b *bucket) writeNumItems() error {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek bucket %d header: %w", ErrIo, b.s, err)
	}

	return diskio.WriteFull(b.file, encodeNumItems(b.numItems), "bucket header")
}

// growIfFull doubles reservedSlots (and the file's length) if numItems
// has reached capacity.
func (b *bucket) growIfFull() error {
	if b.numItems < b.reservedSlots {
		return nil
	}

	newReserved := b.reservedSlots * 2

	if err := b.file.Truncate(fileLenForReservedSlots(b.s, newReserved)); err != nil {
		return fmt.Errorf("%w: grow bucket %d: %w", ErrIo, b.s, err)
	}

	b.reservedSlots = newReserved

	return nil
}

// add appends (key, value) as the new last live slot, growing the file
// first if it is at capacity. Returns the new slot index.
func (b *bucket) add(key, value []byte) (uint64, error) {
	if err := b.growIfFull(); err != nil {
		return 0, err
	}

	i := b.numItems

	if err := b.writeSlot(i, key, value); err != nil {
		return 0, err
	}

	b.numItems++
	if err := b.writeNumItems(); err != nil {
		return 0, err
	}

	return i, nil
}

// writeSlot writes a record at slot i. The record may be shorter than the
// slot's capacity S; trailing slack bytes are left untouched.
func (b *bucket) writeSlot(i uint64, key, value []byte) error {
	if _, err := b.file.Seek(slotOffset(b.s, i), io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek bucket %d slot %d: %w", ErrIo, b.s, i, err)
	}

	return diskio.WriteFull(b.file, encodeRecord(key, value), "bucket slot")
}

// readSlot reads the full record stored at slot i.
func (b *bucket) readSlot(i uint64) (key, value []byte, err error) {
	if _, err := b.file.Seek(slotOffset(b.s, i), io.SeekStart); err != nil {
		return nil, nil, fmt.Errorf("%w: seek bucket %d slot %d: %w", ErrIo, b.s, i, err)
	}

	header := make([]byte, 16)
	if err := diskio.ReadFull(b.file, header, "bucket slot header"); err != nil {
		return nil, nil, fmt.Errorf("%w: read bucket %d slot %d: %w", ErrIo, b.s, i, err)
	}

	kLen, vLen := decodeRecordHeader(header)
	if framedLen(int(kLen), int(vLen)) > b.s {
		return nil, nil, fmt.Errorf("%w: bucket %d slot %d framed length exceeds slot size", ErrCorrupt, b.s, i)
	}

	body := make([]byte, kLen+vLen)
	if err := diskio.ReadFull(b.file, body, "bucket slot body"); err != nil {
		return nil, nil, fmt.Errorf("%w: read bucket %d slot %d: %w", ErrIo, b.s, i, err)
	}

	k, v := splitRecordBody(body, kLen, vLen)

	return k, v, nil
}

// readSlotKey reads only the key stored at slot i, seeking past the
// value bytes rather than reading them. Used when scanning a folder to
// rebuild the index, where values are not needed.
func (b *bucket) readSlotKey(i uint64) ([]byte, error) {
	if _, err := b.file.Seek(slotOffset(b.s, i), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek bucket %d slot %d: %w", ErrIo, b.s, i, err)
	}

	header := make([]byte, 16)
	if err := diskio.ReadFull(b.file, header, "bucket slot header"); err != nil {
		return nil, fmt.Errorf("%w: read bucket %d slot %d: %w", ErrIo, b.s, i, err)
	}

	kLen, vLen := decodeRecordHeader(header)
	if framedLen(int(kLen), int(vLen)) > b.s {
		return nil, fmt.Errorf("%w: bucket %d slot %d framed length exceeds slot size", ErrCorrupt, b.s, i)
	}

	if _, err := b.file.Seek(int64(vLen), io.SeekCurrent); err != nil {
		return nil, fmt.Errorf("%w: seek bucket %d slot %d: %w", ErrIo, b.s, i, err)
	}

	key := make([]byte, kLen)
	if err := diskio.ReadFull(b.file, key, "bucket slot key"); err != nil {
		return nil, fmt.Errorf("%w: read bucket %d slot %d: %w", ErrIo, b.s, i, err)
	}

	return key, nil
}

// swapRemove deletes slot i by moving the last live slot's record over
// it (unless i is already the last slot), decrementing numItems.
//
// It returns the key of the record that was moved into slot i, and
// movedSomething == false if i was already the last live slot (nothing
// needed to move).
func (b *bucket) swapRemove(i uint64) (movedKey []byte, movedSomething bool, err error) {
	last := b.numItems - 1

	if i == last {
		b.numItems--
		if err := b.writeNumItems(); err != nil {
			return nil, false, err
		}

		return nil, false, nil
	}

	key, value, err := b.readSlot(last)
	if err != nil {
		return nil, false, err
	}

	if err := b.writeSlot(i, key, value); err != nil {
		return nil, false, err
	}

	b.numItems--
	if err := b.writeNumItems(); err != nil {
		return nil, false, err
	}

	return key, true, nil
}
