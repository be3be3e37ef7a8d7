package bucketstore_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/cachetwo/internal/storagefs"
	"github.com/calvinalkan/cachetwo/internal/storagefs/fsfault"
	"github.com/calvinalkan/cachetwo/pkg/bucketstore"
)

func newOptions() bucketstore.Options[string, string] {
	return bucketstore.Options[string, string]{
		KeyCodec:   bucketstore.StringCodec{},
		ValueCodec: bucketstore.StringCodec{},
	}
}

func TestCleared_StartsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ok, err := s.Contains("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCleared_RemovesExistingBucketFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)
	require.NoError(t, s.Insert("a", "1"))
	require.NoError(t, s.Close())

	s2, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	ok, err := s2.Contains("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsertAndGet_RoundTrips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Insert("key-one", "value-one"))
	require.NoError(t, s.Insert("key-two", "a much longer value that forces a different bucket size"))

	v, err := s.Get("key-one")
	require.NoError(t, err)
	assert.Equal(t, "value-one", v)

	v, err = s.Get("key-two")
	require.NoError(t, err)
	assert.Equal(t, "a much longer value that forces a different bucket size", v)
}

func TestGet_MissingKey_ReturnsErrNotPresent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, bucketstore.ErrNotPresent)
}

func TestInsert_Overwrite_SameBucketSize_RewritesInPlace(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Insert("key", "short"))
	require.NoError(t, s.Insert("key", "again"))

	v, err := s.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "again", v)
}

func TestInsert_Overwrite_DifferentBucketSize_MovesRecord(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Insert("key", "x"))
	require.NoError(t, s.Insert("key", "a value long enough to require a much bigger bucket file entirely"))

	v, err := s.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "a value long enough to require a much bigger bucket file entirely", v)
}

func TestInsert_Overwrite_RepointsSwapDisplacedKeyToOldRef(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	// "a" and "b" both land in the same (small) bucket, "a" at slot 0
	// and "b" at slot 1, the bucket's last live slot.
	require.NoError(t, s.Insert("a", "1"))
	require.NoError(t, s.Insert("b", "2"))

	// Overwriting "a" with a value long enough to need a bigger bucket
	// forces overwrite to vacate slot 0 via swapRemove, which moves "b"
	// (the last live slot) into slot 0 rather than leaving a hole.
	// "b"'s index entry must be repointed to "a"'s old Ref, since that
	// is exactly where "b" now lives.
	require.NoError(t, s.Insert("a", "a value long enough to require a much bigger bucket file entirely"))

	v, err := s.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "2", v, "swap-displaced key must remain readable at its repointed slot")

	v, err = s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a value long enough to require a much bigger bucket file entirely", v)
}

func TestRemove_DropsKeyAndRepointsSwappedKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Insert("a", "1"))
	require.NoError(t, s.Insert("b", "2"))
	require.NoError(t, s.Insert("c", "3"))

	require.NoError(t, s.Remove("a"))

	ok, err := s.Contains("a")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, key := range []string{"b", "c"} {
		ok, err := s.Contains(key)
		require.NoError(t, err)
		assert.True(t, ok, "key %q should survive removal of an unrelated key", key)
	}

	v, err := s.Get("c")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
}

func TestRemove_AbsentKey_IsNotAnError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.NoError(t, s.Remove("never-existed"))
}

func TestContinued_RebuildsIndexFromExistingBucketFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)

	want := map[string]string{
		"alpha":   "one",
		"beta":    "two",
		"gamma":   "a somewhat longer value to land in a bigger bucket",
		"delta":   "3",
		"epsilon": "4",
	}

	for k, v := range want {
		require.NoError(t, s.Insert(k, v))
	}

	require.NoError(t, s.Close())

	s2, err := bucketstore.Continued[string, string](dir, newOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	for k, v := range want {
		got, err := s2.Get(k)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestContinued_SurvivesDeleteThenReinsertOfSameKeySet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)

	keys := []string{"a", "b", "c", "d"}
	for _, k := range keys {
		require.NoError(t, s.Insert(k, "value-"+k))
	}

	for _, k := range keys {
		require.NoError(t, s.Remove(k))
	}

	for _, k := range keys {
		require.NoError(t, s.Insert(k, "value-"+k))
	}

	require.NoError(t, s.Close())

	s2, err := bucketstore.Continued[string, string](dir, newOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	for _, k := range keys {
		v, err := s2.Get(k)
		require.NoError(t, err)
		assert.Equal(t, "value-"+k, v)
	}
}

func TestCleared_SecondInstance_FailsWithErrBusy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = bucketstore.Continued[string, string](dir, newOptions())
	assert.ErrorIs(t, err, bucketstore.ErrBusy)
}

func TestClose_ReleasesLockForNextOwner(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := bucketstore.Continued[string, string](dir, newOptions())
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestValidateOptions_RejectsNonPowerOfTwoReservedSlots(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	opts := newOptions()
	opts.InitialReservedSlots = 6

	_, err := bucketstore.Cleared[string, string](dir, opts)
	assert.ErrorIs(t, err, bucketstore.ErrInvalidOptions)
}

func TestInsert_SurfacesInjectedIOFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	faulty := fsfault.New(storagefs.NewReal(), fsfault.Config{WriteFailRate: 1}, 1)

	opts := newOptions()
	opts.FS = faulty

	s, err := bucketstore.Cleared[string, string](dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	err = s.Insert("key", "value")
	require.Error(t, err)
	assert.True(t, errors.Is(err, bucketstore.ErrIo))
}

func TestKeepBucketWarmFalse_ClosesBucketAfterEveryCall(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	closeEagerly := false
	opts := newOptions()
	opts.KeepBucketWarm = &closeEagerly

	s, err := bucketstore.Cleared[string, string](dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	// Values land in the same bucket, so a KeepBucketWarm-true Store
	// would reuse one open file handle across all four calls; with it
	// false, Get/Insert must still behave identically even though the
	// bucket file is closed and reopened between each one.
	require.NoError(t, s.Insert("a", "1"))
	require.NoError(t, s.Insert("b", "2"))

	v, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	v, err = s.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestGet_SurvivesInjectedShortReads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := bucketstore.Cleared[string, string](dir, newOptions())
	require.NoError(t, err)

	for i := 0; i < 26; i++ {
		key := "key-" + string(rune('a'+i))
		require.NoError(t, s.Insert(key, "value-for-a-reasonably-sized-record"))
	}

	require.NoError(t, s.Close())

	faulty := fsfault.New(storagefs.NewReal(), fsfault.Config{ShortReadRate: 0.3}, 2)

	opts := newOptions()
	opts.FS = faulty

	s2, err := bucketstore.Continued[string, string](dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	for i := 0; i < 26; i++ {
		key := "key-" + string(rune('a'+i))

		v, err := s2.Get(key)
		require.NoError(t, err)
		assert.Equal(t, "value-for-a-reasonably-sized-record", v)
	}
}
