package pagestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBufferGrowAndSeek(t *testing.T) {
	b := NewWriteBuffer(8)

	b.PutInt32(42)
	b.PutUint16(7)
	b.PutByte(1)
	b.PutUint64(1 << 40)
	assert.Equal(t, 15, b.Pos())
	assert.Equal(t, 15, b.Len())

	b.Seek(4)
	assert.Equal(t, 4, b.Pos())
	b.PutUint16(9)
	// overwriting mid-buffer must not change the high-water mark
	assert.Equal(t, 15, b.Len())

	b.Seek(100)
	b.PutByte(0xaa)
	assert.Equal(t, 101, b.Len())
	assert.Equal(t, byte(0xaa), b.Bytes()[100])
}

func TestWriteBufferAbsolutePatches(t *testing.T) {
	b := NewWriteBuffer(0)
	b.PutInt32(0) // length placeholder
	b.PutUint16(0)
	for i := 0; i < 10; i++ {
		b.PutVarLong(int64(i * 1000))
	}
	end := b.Pos()

	// Absolute patches never move the cursor and never disturb the
	// relative stream.
	b.PutInt32At(0, int32(end))
	b.PutUint16At(4, 0xbeef)
	assert.Equal(t, end, b.Pos())

	r := NewReader(b.Bytes())
	assert.Equal(t, int32(end), r.Int32())
	assert.Equal(t, uint16(0xbeef), r.Uint16())
	for i := 0; i < 10; i++ {
		assert.Equal(t, int64(i*1000), r.VarLong())
	}
	require.NoError(t, r.Err())
}

func TestWriteBufferTruncate(t *testing.T) {
	b := NewWriteBuffer(0)
	_, _ = b.Write(make([]byte, 64))
	b.Seek(16)
	b.PutByte(1)
	b.Truncate(b.Pos())
	assert.Equal(t, 17, b.Len())
}

func TestWriteBufferReadAt(t *testing.T) {
	b := NewWriteBuffer(0)
	_, _ = b.Write([]byte("hello world"))

	p := make([]byte, 5)
	n, err := b.ReadAt(p, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(p))
	// reads never move the write cursor
	assert.Equal(t, 11, b.Pos())

	_, err = b.ReadAt(make([]byte, 5), 9)
	assert.Error(t, err)
}

func TestReaderBoundsAndStickyError(t *testing.T) {
	r := NewReader([]byte{0, 0, 0, 9, 1, 2})
	assert.Equal(t, int32(9), r.Int32())
	r.SetLimit(5)
	assert.Equal(t, byte(1), r.Byte())
	assert.Zero(t, r.Remaining())

	// running past the limit poisons the reader
	assert.Zero(t, r.Uint64())
	require.Error(t, r.Err())
	assert.Zero(t, r.Byte())
}

func TestReaderVarInts(t *testing.T) {
	b := NewWriteBuffer(0)
	values := []int64{0, 1, 127, 128, 16383, 16384, 1 << 40}
	for _, v := range values {
		b.PutVarLong(v)
	}
	b.PutVarInt(-1)

	r := NewReader(b.Bytes())
	for _, v := range values {
		assert.Equal(t, v, r.VarLong())
	}
	assert.Equal(t, int32(-1), r.VarInt())
	require.NoError(t, r.Err())
	assert.Zero(t, r.Remaining())
}
