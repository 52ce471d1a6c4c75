package pagedb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagedb/pagestore"
	"github.com/hupe1980/pagedb/resource"
)

func TestOpenPutCommitReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir, WithAssertions(), WithPageSplitSize(512))
	require.NoError(t, err)

	users, err := db.OpenMap("users", pagestore.StringType{}, pagestore.BytesType{})
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		_, err := users.Put(fmt.Sprintf("user-%03d", i), []byte(fmt.Sprintf("payload-%d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, db.Commit())
	assert.Equal(t, uint64(1), db.Version())
	require.NoError(t, db.Close())

	db2, err := Open(dir, WithAssertions(), WithPageSplitSize(512))
	require.NoError(t, err)
	defer db2.Close()
	users2, err := db2.OpenMap("users", pagestore.StringType{}, pagestore.BytesType{})
	require.NoError(t, err)
	assert.Equal(t, int64(200), users2.Len())
	v, ok, err := users2.Get("user-042")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload-42"), v)
}

func TestCloseCommitsPendingChanges(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	m, err := db.OpenMap("kv", pagestore.Int64Type{}, pagestore.StringType{})
	require.NoError(t, err)
	_, err = m.Put(int64(1), "kept")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := Open(dir)
	require.NoError(t, err)
	defer db2.Close()
	m2, err := db2.OpenMap("kv", pagestore.Int64Type{}, pagestore.StringType{})
	require.NoError(t, err)
	v, ok, err := m2.Get(int64(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "kept", v)
}

func TestStatsAndGarbageCollection(t *testing.T) {
	db, err := Open(t.TempDir(), WithPageSplitSize(512), WithCompression(1))
	require.NoError(t, err)
	defer db.Close()

	m, err := db.OpenMap("kv", pagestore.Int64Type{}, pagestore.StringType{})
	require.NoError(t, err)
	for round := 0; round < 3; round++ {
		for i := 0; i < 100; i++ {
			_, err := m.Put(int64(i), fmt.Sprintf("round-%d", round))
			require.NoError(t, err)
		}
		require.NoError(t, db.Commit())
	}
	st := db.Stats()
	assert.Equal(t, 3, st.Chunks)
	assert.Greater(t, st.FileSize, int64(0))

	require.NoError(t, db.CollectGarbage())
	assert.Less(t, db.Stats().Chunks, 3)
}

func TestWithResourceController(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 32 << 20})
	db, err := Open(t.TempDir(), WithResourceController(rc), WithCacheSize(1<<20))
	require.NoError(t, err)
	defer db.Close()

	m, err := db.OpenMap("kv", pagestore.Int64Type{}, pagestore.StringType{})
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		_, err := m.Put(int64(i), "v")
		require.NoError(t, err)
	}
	require.NoError(t, db.Commit())
	// committed pages are cached and charged to the controller
	assert.Greater(t, rc.MemoryUsage(), int64(0))
}

func TestReadOnlyOpen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	m, err := db.OpenMap("kv", pagestore.Int64Type{}, pagestore.StringType{})
	require.NoError(t, err)
	_, err = m.Put(int64(1), "one")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ro, err := Open(dir, WithReadOnly())
	require.NoError(t, err)
	defer ro.Close()
	mro, err := ro.OpenMap("kv", pagestore.Int64Type{}, pagestore.StringType{})
	require.NoError(t, err)
	_, ok, err := mro.Get(int64(1))
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = mro.Put(int64(2), "nope")
	assert.ErrorIs(t, err, ErrReadOnly)
}
