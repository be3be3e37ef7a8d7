package bucketstore

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// On-disk layout (little-endian throughout):
//
//	file header:   numItems uint64                          (headerBytes)
//	slot [i]:      kLen uint64, vLen uint64, vBytes, kBytes  (framedLen(kLen, vLen) bytes, <= S)
//
// A bucket file is named "<S>.cache"; slotOffset gives the byte offset of
// slot i within the file, counting from the start of the file (i.e. past
// the header).

// framedLen returns the total on-disk size of a record with the given key
// and value lengths: a 16-byte entry header plus the key and value bytes.
func framedLen(kLen, vLen int) uint64 {
	return 16 + uint64(kLen) + uint64(vLen)
}

// bucketSize returns the slot size S for a record of framed length L: if
// L's highest set bit is at position b (0-indexed), S is 1<<(b+2), four
// times the largest power of two not exceeding L. This leaves every
// bucket with room to spare rather than packing records against the
// slot boundary, at the cost of a coarser size ladder than "next power
// of two above L" would give.
//
// L is never 0 through the public API (the minimum framed length is 16,
// for a zero-length key and value); bucketSize panics on L == 0 so a bug
// in a caller's length arithmetic surfaces immediately rather than
// silently producing the degenerate S == 2.
func bucketSize(framed uint64) uint64 {
	if framed == 0 {
		panic("bucketstore: bucketSize called with framed length 0")
	}
	if framed > maxRecordLen {
		panic(fmt.Sprintf("bucketstore: framed length %d exceeds maxRecordLen", framed))
	}

	return 1 << (bits.Len64(framed) + 1)
}

// slotOffset returns the byte offset of slot i within a bucket file of
// slot size s, counting from the start of the file.
func slotOffset(s, i uint64) int64 {
	return headerBytes + int64(i)*int64(s)
}

// fileLenForReservedSlots returns the total file length for a bucket of
// slot size s with the given reserved slot count.
func fileLenForReservedSlots(s, reservedSlots uint64) int64 {
	return headerBytes + int64(reservedSlots)*int64(s)
}

// encodeNumItems serializes the file header.
func encodeNumItems(n uint64) []byte {
	buf := make([]byte, headerBytes)
	binary.LittleEndian.PutUint64(buf, n)
	return buf
}

// decodeNumItems deserializes the file header.
func decodeNumItems(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}

// encodeRecord serializes a record's entry header and body: kLen, vLen,
// vBytes, then kBytes.
func encodeRecord(key, value []byte) []byte {
	buf := make([]byte, framedLen(len(key), len(value)))

	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(key)))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(value)))
	copy(buf[16:16+len(value)], value)
	copy(buf[16+len(value):], key)

	return buf
}

// decodeRecordHeader reads the 16-byte entry header from buf.
func decodeRecordHeader(buf []byte) (kLen, vLen uint64) {
	kLen = binary.LittleEndian.Uint64(buf[0:8])
	vLen = binary.LittleEndian.Uint64(buf[8:16])
	return kLen, vLen
}

// splitRecordBody splits a record body (everything after the 16-byte
// header) into value and key, given their lengths.
func splitRecordBody(body []byte, kLen, vLen uint64) (key, value []byte) {
	value = body[:vLen]
	key = body[vLen : vLen+kLen]
	return key, value
}
