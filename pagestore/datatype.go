package pagestore

import (
	"bytes"
	"fmt"
	"strings"
)

// DataType is the codec capability set a map provides for its keys and
// values. The page never introspects key or value types; everything it needs
// is behind this interface: ordering, memory estimation, and streamed
// serialization of a run of values into a WriteBuffer.
//
// Write and Read operate on n values at once so implementations can share
// per-run state (dictionaries, deltas) if they want to; the built-in types
// simply loop.
type DataType interface {
	// Compare orders a against b: negative, zero, or positive.
	Compare(a, b any) int

	// Memory estimates the heap bytes held by v, feeding the page's
	// memory accounting and, through it, cache eviction.
	Memory(v any) int

	// Write encodes vals[0:n] into buf. key reports whether the run holds
	// keys or values.
	Write(buf *WriteBuffer, vals []any, n int, key bool)

	// Read decodes n values from r into vals[0:n].
	Read(r *Reader, vals []any, n int, key bool) error
}

const perValueOverhead = 24

// StringType orders strings bytewise and encodes them length-prefixed.
type StringType struct{}

func (StringType) Compare(a, b any) int {
	return strings.Compare(a.(string), b.(string))
}

func (StringType) Memory(v any) int {
	return perValueOverhead + len(v.(string))
}

func (StringType) Write(buf *WriteBuffer, vals []any, n int, _ bool) {
	for i := 0; i < n; i++ {
		s := vals[i].(string)
		buf.PutVarInt(int32(len(s)))
		_, _ = buf.Write([]byte(s))
	}
}

func (StringType) Read(r *Reader, vals []any, n int, _ bool) error {
	for i := 0; i < n; i++ {
		slen := int(r.VarInt())
		if r.Err() != nil || slen < 0 || slen > r.Remaining() {
			return fmt.Errorf("string value %d: bad length %d", i, slen)
		}
		b := make([]byte, slen)
		r.ReadFull(b)
		vals[i] = string(b)
	}
	return r.Err()
}

// Int64Type orders int64 values numerically and encodes them as varlongs.
type Int64Type struct{}

func (Int64Type) Compare(a, b any) int {
	av, bv := a.(int64), b.(int64)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

func (Int64Type) Memory(any) int { return perValueOverhead }

func (Int64Type) Write(buf *WriteBuffer, vals []any, n int, _ bool) {
	for i := 0; i < n; i++ {
		buf.PutVarLong(vals[i].(int64))
	}
}

func (Int64Type) Read(r *Reader, vals []any, n int, _ bool) error {
	for i := 0; i < n; i++ {
		vals[i] = r.VarLong()
	}
	return r.Err()
}

// BytesType orders byte slices lexicographically and encodes them
// length-prefixed.
type BytesType struct{}

func (BytesType) Compare(a, b any) int {
	return bytes.Compare(a.([]byte), b.([]byte))
}

func (BytesType) Memory(v any) int {
	return perValueOverhead + len(v.([]byte))
}

func (BytesType) Write(buf *WriteBuffer, vals []any, n int, _ bool) {
	for i := 0; i < n; i++ {
		b := vals[i].([]byte)
		buf.PutVarInt(int32(len(b)))
		_, _ = buf.Write(b)
	}
}

func (BytesType) Read(r *Reader, vals []any, n int, _ bool) error {
	for i := 0; i < n; i++ {
		blen := int(r.VarInt())
		if r.Err() != nil || blen < 0 || blen > r.Remaining() {
			return fmt.Errorf("bytes value %d: bad length %d", i, blen)
		}
		b := make([]byte, blen)
		r.ReadFull(b)
		vals[i] = b
	}
	return r.Err()
}
