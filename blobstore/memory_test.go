package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutOpen(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, "a/data", []byte("hello")))

	b, err := s.Open(ctx, "a/data")
	require.NoError(t, err)
	defer b.Close()
	assert.EqualValues(t, 5, b.Size())

	p := make([]byte, 3)
	n, err := b.ReadAt(p, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "llo", string(p))

	_, err = s.Open(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCreateAndAbort(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	w, err := s.Create(ctx, "x")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	// not visible before Close
	_, err = s.Open(ctx, "x")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, w.Close())
	_, err = s.Open(ctx, "x")
	require.NoError(t, err)

	w2, err := s.Create(ctx, "y")
	require.NoError(t, err)
	_, err = w2.Write([]byte("doomed"))
	require.NoError(t, err)
	require.NoError(t, w2.Abort())
	require.NoError(t, w2.Close(), "close after abort is a no-op")
	_, err = s.Open(ctx, "y")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "a/1", nil))
	require.NoError(t, s.Put(ctx, "a/2", nil))
	require.NoError(t, s.Put(ctx, "b/1", nil))

	names, err := s.List(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "a/2"}, names)

	require.NoError(t, s.Delete(ctx, "a/1"))
	require.NoError(t, s.Delete(ctx, "a/1"), "deleting a missing blob is fine")
	names, err = s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/2", "b/1"}, names)
}
