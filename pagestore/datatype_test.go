package pagestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataTypeCompare(t *testing.T) {
	assert.Negative(t, StringType{}.Compare("a", "b"))
	assert.Positive(t, StringType{}.Compare("b", "a"))
	assert.Zero(t, StringType{}.Compare("a", "a"))

	assert.Negative(t, Int64Type{}.Compare(int64(-5), int64(3)))
	assert.Positive(t, Int64Type{}.Compare(int64(9), int64(3)))
	assert.Zero(t, Int64Type{}.Compare(int64(3), int64(3)))

	assert.Negative(t, BytesType{}.Compare([]byte("aa"), []byte("ab")))
	assert.Zero(t, BytesType{}.Compare([]byte{}, []byte{}))
}

func TestDataTypeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		dt   DataType
		vals []any
	}{
		{"strings", StringType{}, []any{"", "a", "hello world", "Ω≈ç"}},
		{"int64s", Int64Type{}, []any{int64(0), int64(-1), int64(1 << 50)}},
		{"bytes", BytesType{}, []any{[]byte{}, []byte{0xff, 0x00}, make([]byte, 300)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := NewWriteBuffer(0)
			tc.dt.Write(buf, tc.vals, len(tc.vals), true)

			got := make([]any, len(tc.vals))
			r := NewReader(buf.Bytes())
			require.NoError(t, tc.dt.Read(r, got, len(got), true))
			assert.Equal(t, tc.vals, got)
		})
	}
}

func TestDataTypeReadTruncated(t *testing.T) {
	buf := NewWriteBuffer(0)
	StringType{}.Write(buf, []any{"something long enough"}, 1, true)

	r := NewReader(buf.Bytes()[:4])
	got := make([]any, 1)
	assert.Error(t, StringType{}.Read(r, got, 1, true))
}

func TestDataTypeMemory(t *testing.T) {
	assert.Greater(t, StringType{}.Memory("abc"), StringType{}.Memory(""))
	assert.Equal(t, Int64Type{}.Memory(int64(1)), Int64Type{}.Memory(int64(1<<60)))
	assert.Greater(t, BytesType{}.Memory(make([]byte, 100)), BytesType{}.Memory([]byte{}))
}
