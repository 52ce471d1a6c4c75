package pagestore

import (
	"encoding/binary"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/pagedb/internal/encoding"
)

// PageChildren is the garbage collector's projection of an internal page:
// the page's position plus the positions of its direct children, parsed
// without materializing keys or values. The collector uses it to find out
// quickly which chunks are still referenced.
type PageChildren struct {
	pos      uint64
	children []uint64

	// chunkList marks a projection reduced to one reference per chunk.
	chunkList bool
}

var emptyPositions = make([]uint64, 0)

func newPageChildren(p *Page) *PageChildren {
	count := p.RawChildPageCount()
	children := make([]uint64, count)
	for i := 0; i < count; i++ {
		children[i] = p.ChildPagePos(i)
	}
	return &PageChildren{pos: p.Pos(), children: children}
}

// Memory estimates the heap bytes held by this projection.
func (pc *PageChildren) Memory() int {
	return 64 + 8*len(pc.children)
}

// readPageChildren parses only the header and child-position table of the
// page at pos. Leaves have no children and yield nil.
func readPageChildren(fileStore *FileStore, pos uint64, mapID int, filePos, maxPos int64) (*PageChildren, error) {
	maxLength := encoding.PageMaxLength(pos)
	if maxLength == encoding.PageLarge {
		head, err := fileStore.ReadFully(filePos, 128)
		if err != nil {
			return nil, err
		}
		maxLength = int(int32(binary.BigEndian.Uint32(head)))
	}
	if rest := maxPos - filePos; int64(maxLength) > rest {
		maxLength = int(rest)
	}
	chunkID := encoding.PageChunkID(pos)
	if maxLength < 0 {
		return nil, corruptf(chunkID,
			"illegal page length %d reading at %d; max pos %d", maxLength, filePos, maxPos)
	}
	b, err := fileStore.ReadFully(filePos, maxLength)
	if err != nil {
		return nil, err
	}
	offset := encoding.PageOffset(pos)
	r := NewReader(b)
	pageLength := int(r.Int32())
	if r.Err() != nil || pageLength > maxLength || pageLength < 4 {
		return nil, corruptf(chunkID, "expected page length 4..%d, got %d", maxLength, pageLength)
	}
	r.SetLimit(pageLength)
	check := r.Uint16()
	m := int(r.VarInt())
	if r.Err() != nil {
		return nil, corruptf(chunkID, "truncated page header")
	}
	if m != mapID {
		return nil, corruptf(chunkID, "expected map id %d, got %d", mapID, m)
	}
	checkTest := encoding.CheckValue(chunkID) ^
		encoding.CheckValue(offset) ^
		encoding.CheckValue(pageLength)
	if check != checkTest {
		return nil, corruptf(chunkID, "expected check value %d, got %d", checkTest, check)
	}
	keyCount := int(r.VarInt())
	typ := int(r.Byte())
	if r.Err() != nil || keyCount < 0 {
		return nil, corruptf(chunkID, "bad key count %d", keyCount)
	}
	if typ&1 != encoding.PageTypeNode {
		return nil, nil
	}
	children := make([]uint64, keyCount+1)
	for i := 0; i <= keyCount; i++ {
		children[i] = r.Uint64()
	}
	if r.Err() != nil {
		return nil, corruptf(chunkID, "truncated child table")
	}
	return &PageChildren{pos: pos, children: children}, nil
}

// removeDuplicateChunkReferences keeps at most one reference per chunk.
// Only leaf references are dropped; references to internal pages stay, as
// they can transitively point into other chunks.
func (pc *PageChildren) removeDuplicateChunkReferences() {
	chunks := make(map[int]struct{})
	// references to leaves in the owning chunk are never needed
	chunks[encoding.PageChunkID(pc.pos)] = struct{}{}
	for i := 0; i < len(pc.children); i++ {
		p := pc.children[i]
		chunkID := encoding.PageChunkID(p)
		_, seen := chunks[chunkID]
		chunks[chunkID] = struct{}{}
		if encoding.PageType(p) == encoding.PageTypeNode {
			continue
		}
		if !seen {
			continue
		}
		pc.removeChild(i)
		i--
	}
}

// collectReferencedChunks unions the owning chunk and every child's chunk
// into target.
func (pc *PageChildren) collectReferencedChunks(target *roaring.Bitmap) {
	target.Add(uint32(encoding.PageChunkID(pc.pos)))
	for _, p := range pc.children {
		target.Add(uint32(encoding.PageChunkID(p)))
	}
}

func (pc *PageChildren) removeChild(index int) {
	if index == 0 && len(pc.children) == 1 {
		pc.children = emptyPositions
		return
	}
	c2 := make([]uint64, len(pc.children)-1)
	copyExcept(pc.children, c2, len(pc.children), index)
	pc.children = c2
}
