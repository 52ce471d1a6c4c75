package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPagePosRoundTrip(t *testing.T) {
	pos := PagePos(7, 4096, 100, PageTypeNode)

	assert.Equal(t, 7, PageChunkID(pos))
	assert.Equal(t, 4096, PageOffset(pos))
	assert.Equal(t, PageTypeNode, PageType(pos))
	assert.GreaterOrEqual(t, PageMaxLength(pos), 100)
}

func TestPagePosNonzeroForChunkOne(t *testing.T) {
	// Chunk ids start at 1, so every stored position is nonzero even at
	// offset 0 for a tiny leaf.
	pos := PagePos(1, 0, 4, PageTypeLeaf)
	assert.NotZero(t, pos)
}

func TestLengthClasses(t *testing.T) {
	// Classes bound 32, 48, 64, 96, 128, ...; the bound is tight.
	for _, tc := range []struct {
		length, max int
	}{
		{1, 32}, {32, 32}, {33, 48}, {48, 48}, {49, 64}, {96, 96},
		{97, 128}, {1024, 1024}, {1025, 1536},
	} {
		pos := PagePos(1, 0, tc.length, PageTypeLeaf)
		assert.Equal(t, tc.max, PageMaxLength(pos), "length %d", tc.length)
	}
}

func TestLengthClassLarge(t *testing.T) {
	pos := PagePos(1, 0, 2<<20, PageTypeLeaf)
	assert.Equal(t, PageLarge, PageMaxLength(pos))
}

func TestCheckValue(t *testing.T) {
	assert.Equal(t, uint16(0), CheckValue(0))
	assert.Equal(t, uint16(0x1234), CheckValue(0x1234))
	assert.Equal(t, uint16(0x0001^0x1234), CheckValue(0x00011234))
}
