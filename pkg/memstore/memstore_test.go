package memstore_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/cachetwo/pkg/entrycache"
	"github.com/calvinalkan/cachetwo/pkg/memstore"
)

func TestStore_EmptyByDefault(t *testing.T) {
	t.Parallel()

	s := memstore.New[string, string]()

	contains, err := s.Contains("k")
	require.NoError(t, err)
	assert.False(t, contains)
	assert.Equal(t, 0, s.Len())
}

func TestStore_Get_Missing_ReturnsErrNotPresent(t *testing.T) {
	t.Parallel()

	s := memstore.New[string, string]()

	_, err := s.Get("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, entrycache.ErrNotPresent)
}

func TestStore_InsertAndGet(t *testing.T) {
	t.Parallel()

	s := memstore.New[string, int]()

	require.NoError(t, s.Insert("k", 42))

	v, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	contains, err := s.Contains("k")
	require.NoError(t, err)
	assert.True(t, contains)
}

func TestStore_Insert_Overwrites(t *testing.T) {
	t.Parallel()

	s := memstore.New[string, int]()

	require.NoError(t, s.Insert("k", 1))
	require.NoError(t, s.Insert("k", 2))

	v, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestStore_Remove(t *testing.T) {
	t.Parallel()

	s := memstore.New[string, int]()
	require.NoError(t, s.Insert("k", 1))

	require.NoError(t, s.Remove("k"))

	contains, err := s.Contains("k")
	require.NoError(t, err)
	assert.False(t, contains)
}

func TestStore_Remove_AbsentKey_IsNotAnError(t *testing.T) {
	t.Parallel()

	s := memstore.New[string, int]()
	assert.NoError(t, s.Remove("missing"))
}

func TestStore_Replace_IsNoOp(t *testing.T) {
	t.Parallel()

	s := memstore.New[string, int]()
	require.NoError(t, s.Insert("k", 1))

	assert.NoError(t, s.Replace("k", 99))

	v, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, 1, v, "Replace must not mutate the stored value")
}

func TestStore_Commit_IsNoOp(t *testing.T) {
	t.Parallel()

	s := memstore.New[string, int]()
	assert.NoError(t, s.Commit())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := memstore.New[int, int]()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Insert(i, i*i)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, s.Len())
}
