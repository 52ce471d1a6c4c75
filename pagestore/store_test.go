package pagestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagedb/internal/fs"
)

var errInjected = errors.New("injected")

func TestCommitWithoutChangesIsNoop(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStore(dir, Config{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Commit())
	assert.Zero(t, s.Version())
	assert.Zero(t, s.Stats().Chunks)

	m, err := s.OpenMap("kv", Int64Type{}, StringType{})
	require.NoError(t, err)
	_, err = m.Put(int64(1), "one")
	require.NoError(t, err)

	require.NoError(t, s.Commit())
	v1 := s.Version()
	assert.Equal(t, uint64(1), v1)

	// nothing changed since; version must not advance
	require.NoError(t, s.Commit())
	assert.Equal(t, v1, s.Version())
}

func TestCommitWritesChunkHeader(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStore(dir, Config{})
	require.NoError(t, err)
	m, err := s.OpenMap("kv", Int64Type{}, StringType{})
	require.NoError(t, err)
	_, err = m.Put(int64(1), "one")
	require.NoError(t, err)
	require.NoError(t, s.Commit())
	require.NoError(t, s.Close())

	data, err := os.ReadFile(filepath.Join(dir, dataFileName))
	require.NoError(t, err)
	c, err := readChunkHeader(data, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, c.ID)
	assert.Equal(t, int64(len(data)), c.Len)
	assert.Equal(t, uint64(1), c.Version)
	assert.Greater(t, c.PageCount, 0)
}

func TestMultipleMapsShareOneChunkPerCommit(t *testing.T) {
	s := newTestStore(t)
	a, err := s.OpenMap("a", Int64Type{}, StringType{})
	require.NoError(t, err)
	b, err := s.OpenMap("b", StringType{}, BytesType{})
	require.NoError(t, err)

	_, err = a.Put(int64(1), "one")
	require.NoError(t, err)
	_, err = b.Put("k", []byte("v"))
	require.NoError(t, err)
	require.NoError(t, s.Commit())

	assert.Equal(t, 1, s.Stats().Chunks)
	require.NotZero(t, a.Root().Pos())
	require.NotZero(t, b.Root().Pos())

	v, ok, err := b.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestReadPageCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStore(dir, Config{})
	require.NoError(t, err)
	m, err := s.OpenMap("kv", Int64Type{}, StringType{})
	require.NoError(t, err)
	_, err = m.Put(int64(1), "one")
	require.NoError(t, err)
	require.NoError(t, s.Commit())
	require.NoError(t, s.Close())

	// The first page starts right after the chunk header; byte 4 of the
	// page is its check value.
	path := filepath.Join(dir, dataFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[chunkHeaderLen+4] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s2, err := OpenStore(dir, Config{})
	require.NoError(t, err)
	defer s2.Close()
	_, err = s2.OpenMap("kv", Int64Type{}, StringType{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileCorrupt)
}

func TestCollectGarbage(t *testing.T) {
	s := newTestStore(t, func(c *Config) { c.PageSplitSize = 512 })
	m, err := s.OpenMap("kv", Int64Type{}, StringType{})
	require.NoError(t, err)

	// Rewrite the same keys across several commits so earlier chunks decay
	// to fully dead.
	for round := 0; round < 5; round++ {
		for i := 0; i < 200; i++ {
			_, err := m.Put(int64(i), fmt.Sprintf("round-%d-value-%d", round, i))
			require.NoError(t, err)
		}
		require.NoError(t, s.Commit())
	}
	before := s.Stats().Chunks
	require.Equal(t, 5, before)

	require.NoError(t, s.CollectGarbage())
	after := s.Stats().Chunks
	assert.Less(t, after, before, "fully superseded chunks must be dropped")

	// everything still readable through the surviving chunks
	for i := 0; i < 200; i++ {
		v, ok, err := m.Get(int64(i))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("round-4-value-%d", i), v)
	}
}

func TestCollectGarbageKeepsReachableChunks(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStore(dir, Config{PageSplitSize: 512})
	require.NoError(t, err)
	m, err := s.OpenMap("kv", Int64Type{}, StringType{})
	require.NoError(t, err)

	// Two commits with disjoint keys: the second chunk's tree references
	// leaves in the first chunk.
	for i := 0; i < 200; i++ {
		_, err := m.Put(int64(i), "first-batch-value")
		require.NoError(t, err)
	}
	require.NoError(t, s.Commit())
	for i := 200; i < 220; i++ {
		_, err := m.Put(int64(i), "second-batch-value")
		require.NoError(t, err)
	}
	require.NoError(t, s.Commit())

	require.NoError(t, s.CollectGarbage())

	// Reopen with a cold cache and verify every key resolves: nothing
	// reachable was freed.
	require.NoError(t, s.Close())
	s2, err := OpenStore(dir, Config{PageSplitSize: 512})
	require.NoError(t, err)
	defer s2.Close()
	m2, err := s2.OpenMap("kv", Int64Type{}, StringType{})
	require.NoError(t, err)
	for i := 0; i < 220; i++ {
		_, ok, err := m2.Get(int64(i))
		require.NoError(t, err)
		require.True(t, ok, "key %d", i)
	}
}

func TestStoreStats(t *testing.T) {
	s := newTestStore(t)
	m, err := s.OpenMap("kv", Int64Type{}, StringType{})
	require.NoError(t, err)

	assert.Greater(t, s.Stats().UnsavedMemory, int64(0), "a fresh root counts as unsaved")

	_, err = m.Put(int64(1), "one")
	require.NoError(t, err)
	require.NoError(t, s.Commit())

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Version)
	assert.Equal(t, 1, st.Chunks)
	assert.Greater(t, st.FileSize, int64(chunkHeaderLen))
	assert.Zero(t, st.UnsavedMemory)
}

func TestStoreClosedErrors(t *testing.T) {
	s, err := OpenStore(t.TempDir(), Config{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is a no-op")

	assert.ErrorIs(t, s.Commit(), ErrClosed)
	_, err = s.OpenMap("kv", Int64Type{}, StringType{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.CollectGarbage(), ErrClosed)
}

func TestFileStoreMMapReads(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStore(dir, Config{MMap: true, PageSplitSize: 512})
	require.NoError(t, err)
	m, err := s.OpenMap("kv", Int64Type{}, StringType{})
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		_, err := m.Put(int64(i), fmt.Sprintf("v%d", i))
		require.NoError(t, err)
	}
	require.NoError(t, s.Commit())
	require.NoError(t, s.Close())

	s2, err := OpenStore(dir, Config{MMap: true, PageSplitSize: 512})
	require.NoError(t, err)
	defer s2.Close()
	m2, err := s2.OpenMap("kv", Int64Type{}, StringType{})
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		v, ok, err := m2.Get(int64(i))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("v%d", i), v)
	}
}

func TestManifestCarriesUnopenedMaps(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStore(dir, Config{})
	require.NoError(t, err)
	for _, name := range []string{"a", "b"} {
		m, err := s.OpenMap(name, Int64Type{}, StringType{})
		require.NoError(t, err)
		_, err = m.Put(int64(1), name)
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	// Second session opens only "a" and commits; "b" must survive in the
	// manifest untouched.
	s2, err := OpenStore(dir, Config{})
	require.NoError(t, err)
	a, err := s2.OpenMap("a", Int64Type{}, StringType{})
	require.NoError(t, err)
	_, err = a.Put(int64(2), "a2")
	require.NoError(t, err)
	require.NoError(t, s2.Close())

	s3, err := OpenStore(dir, Config{})
	require.NoError(t, err)
	defer s3.Close()
	b, err := s3.OpenMap("b", Int64Type{}, StringType{})
	require.NoError(t, err)
	v, ok, err := b.Get(int64(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestLargePageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStore(dir, Config{})
	require.NoError(t, err)
	m, err := s.OpenMap("kv", Int64Type{}, BytesType{})
	require.NoError(t, err)

	// A single 2 MiB value exceeds every bounded length class, forcing the
	// PAGE_LARGE prefetch path on read.
	big := make([]byte, 2<<20)
	for i := range big {
		big[i] = byte(i)
	}
	_, err = m.Put(int64(1), big)
	require.NoError(t, err)
	require.NoError(t, s.Commit())
	require.NoError(t, s.Close())

	s2, err := OpenStore(dir, Config{})
	require.NoError(t, err)
	defer s2.Close()
	m2, err := s2.OpenMap("kv", Int64Type{}, BytesType{})
	require.NoError(t, err)
	v, ok, err := m2.Get(int64(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, big, v)
}

func TestCommitSurfacesSyncFault(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule(dataFileName, fs.Fault{
		FailOnSync: true,
		Err:        errInjected,
	})

	s, err := OpenStore(t.TempDir(), Config{FS: ffs})
	require.NoError(t, err)
	m, err := s.OpenMap("kv", Int64Type{}, StringType{})
	require.NoError(t, err)
	_, err = m.Put(int64(1), "one")
	require.NoError(t, err)

	err = s.Commit()
	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)
}

func TestFailedManifestWriteLeavesNoTemporary(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule(manifestFileName+".tmp", fs.Fault{FailOnSync: true, Err: errInjected})

	dir := t.TempDir()
	s, err := OpenStore(dir, Config{FS: ffs})
	require.NoError(t, err)
	m, err := s.OpenMap("kv", Int64Type{}, StringType{})
	require.NoError(t, err)
	_, err = m.Put(int64(1), "one")
	require.NoError(t, err)

	err = s.Commit()
	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)

	_, err = os.Stat(filepath.Join(dir, manifestFileName+".tmp"))
	assert.True(t, os.IsNotExist(err), "failed manifest temporary must be cleaned up")
}
