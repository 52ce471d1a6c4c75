package pagestore

import (
	"encoding/binary"
	"io"

	"github.com/hupe1980/pagedb/internal/encoding"
)

// WriteBuffer is a growable in-memory buffer with a position cursor and
// absolute-overwrite forms for the fields that are patched after the fact
// (page length, check value, child positions). All multi-byte integers are
// big-endian, matching the on-disk page format.
//
// WriteBuffer is not safe for concurrent use; the commit cycle owns one
// buffer per chunk under the store lock.
type WriteBuffer struct {
	buf []byte
	pos int
}

// NewWriteBuffer creates a WriteBuffer with the given initial capacity.
func NewWriteBuffer(capacity int) *WriteBuffer {
	if capacity <= 0 {
		capacity = 1024 * 1024
	}
	return &WriteBuffer{buf: make([]byte, 0, capacity)}
}

// Pos returns the current position.
func (b *WriteBuffer) Pos() int { return b.pos }

// Seek sets the current position. Seeking past the end grows the buffer
// with zero bytes.
func (b *WriteBuffer) Seek(pos int) {
	b.grow(pos)
	b.pos = pos
}

// Len returns the number of bytes written (the high-water mark, independent
// of the current position).
func (b *WriteBuffer) Len() int { return len(b.buf) }

// Bytes returns the underlying byte slice up to the high-water mark.
func (b *WriteBuffer) Bytes() []byte { return b.buf }

// Reset clears the buffer for reuse.
func (b *WriteBuffer) Reset() {
	b.buf = b.buf[:0]
	b.pos = 0
}

// grow ensures the buffer covers [0, minLen).
func (b *WriteBuffer) grow(minLen int) {
	if minLen <= len(b.buf) {
		return
	}
	if minLen > cap(b.buf) {
		newCap := 2 * cap(b.buf)
		if newCap < minLen {
			newCap = minLen
		}
		newBuf := make([]byte, len(b.buf), newCap)
		copy(newBuf, b.buf)
		b.buf = newBuf
	}
	b.buf = b.buf[:minLen]
}

// Write appends p at the current position, implementing io.Writer.
func (b *WriteBuffer) Write(p []byte) (int, error) {
	b.grow(b.pos + len(p))
	n := copy(b.buf[b.pos:], p)
	b.pos += n
	return n, nil
}

// PutByte writes a single byte at the current position.
func (b *WriteBuffer) PutByte(v byte) {
	b.grow(b.pos + 1)
	b.buf[b.pos] = v
	b.pos++
}

// PutUint16 writes a big-endian 16-bit value at the current position.
func (b *WriteBuffer) PutUint16(v uint16) {
	b.grow(b.pos + 2)
	binary.BigEndian.PutUint16(b.buf[b.pos:], v)
	b.pos += 2
}

// PutInt32 writes a big-endian 32-bit value at the current position.
func (b *WriteBuffer) PutInt32(v int32) {
	b.grow(b.pos + 4)
	binary.BigEndian.PutUint32(b.buf[b.pos:], uint32(v))
	b.pos += 4
}

// PutUint64 writes a big-endian 64-bit value at the current position.
func (b *WriteBuffer) PutUint64(v uint64) {
	b.grow(b.pos + 8)
	binary.BigEndian.PutUint64(b.buf[b.pos:], v)
	b.pos += 8
}

// PutVarInt writes a 7-bit group varint at the current position.
func (b *WriteBuffer) PutVarInt(v int32) {
	var tmp [5]byte
	enc := encoding.AppendVarInt(tmp[:0], v)
	_, _ = b.Write(enc)
}

// PutVarLong writes a 7-bit group varlong at the current position.
func (b *WriteBuffer) PutVarLong(v int64) {
	var tmp [10]byte
	enc := encoding.AppendVarLong(tmp[:0], v)
	_, _ = b.Write(enc)
}

// Truncate drops everything beyond n. Used after a compression pass shrinks
// a page in place, so stale tail bytes never leak into the chunk.
func (b *WriteBuffer) Truncate(n int) {
	if n < len(b.buf) {
		b.buf = b.buf[:n]
	}
	if b.pos > n {
		b.pos = n
	}
}

// PutInt32At overwrites a big-endian 32-bit value at an absolute position
// without moving the cursor.
func (b *WriteBuffer) PutInt32At(pos int, v int32) {
	b.grow(pos + 4)
	binary.BigEndian.PutUint32(b.buf[pos:], uint32(v))
}

// PutUint16At overwrites a big-endian 16-bit value at an absolute position
// without moving the cursor.
func (b *WriteBuffer) PutUint16At(pos int, v uint16) {
	b.grow(pos + 2)
	binary.BigEndian.PutUint16(b.buf[pos:], v)
}

// ReadAt copies len(p) bytes starting at off into p, implementing
// io.ReaderAt over the written region. Used by the compression pass to read
// back the payload it is about to replace.
func (b *WriteBuffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(b.buf)) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}
