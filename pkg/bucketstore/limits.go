package bucketstore

// Hardcoded implementation limits.
//
// These exist to keep bucket arithmetic away from overflow boundaries and
// to bound resource usage on misconfiguration, not because the on-disk
// format has a smaller natural ceiling. An InitialReservedSlots below
// minInitialReservedSlots is reported as [ErrInvalidOptions] by
// [Cleared]/[Continued]. maxRecordLen is checked per record by bucketSize,
// which panics when a framed length exceeds it.
const (
	// minInitialReservedSlots is the smallest InitialReservedSlots Options
	// accepts, keeping every non-empty bucket file's reservedSlots a power
	// of two of at least this size (mirrors P5's "reservedSlots is a power
	// of two >= 4" property).
	minInitialReservedSlots = 4

	// maxRecordLen bounds a single record's framed length (16 + kLen +
	// vLen), keeping bucketSize's bit-shift comfortably inside uint64.
	maxRecordLen = 1 << 40

	// headerBytes is the fixed size of a bucket file's numItems header.
	headerBytes = 8

	// minSlotSize is the on-disk format's floor for a slot size (§6: "slot
	// size S is a power of two and >= 32"). bucketSize itself never
	// produces less than 64, since the minimum framed length is 16.
	minSlotSize = 32
)
