package pagestore

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/hupe1980/pagedb/internal/compress"
	"github.com/hupe1980/pagedb/internal/encoding"
)

// Fixed components of the per-page memory estimate. The base covers the
// struct itself plus array headers; the child overhead covers one
// PageReference slot in an internal page.
const (
	pageMemory      = 128
	pageMemoryChild = 16
)

// PageReference is an edge to a child page: by in-memory handle, by on-disk
// position, or both. Count carries the descendant entry count so parents can
// maintain totals without resolving children.
type PageReference struct {
	// Page is the in-memory child, or nil when only the position is known.
	Page *Page

	// Pos is the packed position, or 0 when the child was never serialized.
	Pos uint64

	// Count is the total entry count of the child's subtree.
	Count int64
}

// Page is a B-tree node, leaf or internal.
//
// For internal pages, the key at a given index is larger than the largest
// key of the child at the same index. Exactly one of values (leaf) or
// children (internal) is set.
//
// File format:
//
//	page length (including length): int32
//	check value: uint16
//	map id: varint
//	number of keys: varint
//	type: byte (bit 0: 0 leaf / 1 node; bit 1: compressed; bit 2: high)
//	node: child positions (n+1 uint64), child counts (n+1 varlong)
//	compressed: bytes saved (varint)
//	keys, then for leaves values, via the map's codecs
type Page struct {
	m       *BTreeMap
	version uint64
	pos     uint64

	// totalCount is the entry count of this page and all descendants.
	totalCount int64

	// cachedCompare seeds the first probe of the next binarySearch from the
	// last result. Racy by design; a stale value only costs comparisons.
	cachedCompare int

	// memory is the running estimate maintained by every mutator.
	memory int

	keys     []any
	values   []any
	children []PageReference

	// removedInMemory records a removal that happened before the page had a
	// position, so the live accounting can settle once one is assigned. Read
	// by the write cycle on another goroutine.
	removedInMemory atomic.Bool
}

var emptyEntries = make([]any, 0)

func newPage(m *BTreeMap, version uint64) *Page {
	return &Page{m: m, version: version}
}

// createEmpty creates a new, empty leaf page for a fresh tree root.
func createEmpty(m *BTreeMap, version uint64) *Page {
	return createPage(m, version, emptyEntries, emptyEntries, nil, 0, pageMemory)
}

// createPage creates a page over the given arrays without cloning them.
// A memory of 0 means "recalculate". Every creation with an owning store
// registers the estimate as unsaved.
func createPage(m *BTreeMap, version uint64, keys, values []any,
	children []PageReference, totalCount int64, memory int) *Page {
	p := newPage(m, version)
	// the position is 0
	p.keys = keys
	p.values = values
	p.children = children
	p.totalCount = totalCount
	if memory == 0 {
		p.recalculateMemory()
	} else {
		p.addMemory(memory)
	}
	if store := m.store; store != nil {
		store.registerUnsavedPage(p.memory)
	}
	return p
}

// readPageAt parses a page from the file. filePos is the absolute file
// offset; maxPos bounds the read at the end of the chunk.
func readPageAt(fileStore *FileStore, pos uint64, m *BTreeMap, filePos, maxPos int64) (*Page, error) {
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
	if maxLength < 0 {
		return nil, corruptf(encoding.PageChunkID(pos),
			"illegal page length %d reading at %d; max pos %d", maxLength, filePos, maxPos)
	}
	b, err := fileStore.ReadFully(filePos, maxLength)
	if err != nil {
		return nil, err
	}
	p := newPage(m, 0)
	p.pos = pos
	if err := p.read(b, encoding.PageChunkID(pos), encoding.PageOffset(pos), maxLength); err != nil {
		return nil, err
	}
	return p, nil
}

// Key returns the key at the given index.
func (p *Page) Key(index int) any { return p.keys[index] }

// Value returns the value at the given index.
func (p *Page) Value(index int) any { return p.values[index] }

// KeyCount returns the number of keys in this page.
func (p *Page) KeyCount() int { return len(p.keys) }

// IsLeaf reports whether this is a leaf page.
func (p *Page) IsLeaf() bool { return p.children == nil }

// Pos returns the packed position, or 0 if the page was never serialized.
func (p *Page) Pos() uint64 { return p.pos }

// Version returns the map version that produced this page.
func (p *Page) Version() uint64 { return p.version }

// TotalCount returns the entry count of this page and all descendants.
func (p *Page) TotalCount() int64 { return p.totalCount }

// Memory returns the current memory estimate.
func (p *Page) Memory() int { return p.memory }

// RawChildPageCount returns the length of the children array, including any
// auxiliary child a map subclass hides from traversal.
func (p *Page) RawChildPageCount() int { return len(p.children) }

// ChildPagePos returns the position of the child at the given index.
func (p *Page) ChildPagePos(index int) uint64 { return p.children[index].Pos }

// ChildCount returns the descendant count recorded for the given child.
func (p *Page) ChildCount(index int) int64 { return p.children[index].Count }

// ChildPage resolves the child at the given index, loading it through the
// map's page loader when only a position is held.
func (p *Page) ChildPage(index int) (*Page, error) {
	ref := p.children[index]
	if ref.Page != nil {
		return ref.Page, nil
	}
	return p.m.readPage(ref.Pos)
}

// Equal reports page equality: by position when both pages are stored,
// otherwise by identity.
func (p *Page) Equal(other *Page) bool {
	if p == other {
		return true
	}
	return other != nil && p.pos != 0 && other.pos == p.pos
}

// copy creates a copy of this page under a new version and marks the
// original as removed. The arrays are shared until the first mutation on
// the copy replaces them.
func (p *Page) copy(version uint64) *Page {
	newPage := createPage(p.m, version, p.keys, p.values, p.children, p.totalCount, p.memory)
	// mark the old as deleted
	p.removePage()
	newPage.cachedCompare = p.cachedCompare
	return newPage
}

// binarySearch looks up key. It returns the index if found, otherwise
// -(insertionPoint + 1), like sort.Search with the sign convention of
// Java's Arrays.binarySearch. Instead of always starting in the middle, the
// first probe is seeded from the last result.
func (p *Page) binarySearch(key any) int {
	low, high := 0, len(p.keys)-1
	// the cached index minus one, so that the default is used the first
	// time (when cachedCompare is 0)
	x := p.cachedCompare - 1
	if x < 0 || x > high {
		x = high >> 1
	}
	k := p.keys
	for low <= high {
		compare := p.m.compare(key, k[x])
		if compare > 0 {
			low = x + 1
		} else if compare < 0 {
			high = x - 1
		} else {
			p.cachedCompare = x + 1
			return x
		}
		x = (low + high) >> 1
	}
	p.cachedCompare = low
	return -(low + 1)
}

// split divides this page at the given index. The current page keeps the
// left half; the returned page holds the right half under the same version.
// The caller promotes the split key into the parent.
func (p *Page) split(at int) *Page {
	if p.IsLeaf() {
		return p.splitLeaf(at)
	}
	return p.splitNode(at)
}

func (p *Page) splitLeaf(at int) *Page {
	a, b := at, len(p.keys)-at
	aKeys := make([]any, a)
	bKeys := make([]any, b)
	copy(aKeys, p.keys[:a])
	copy(bKeys, p.keys[a:])
	p.keys = aKeys
	aValues := make([]any, a)
	bValues := make([]any, b)
	copy(aValues, p.values[:a])
	copy(bValues, p.values[a:])
	p.values = aValues
	p.totalCount = int64(a)
	newPage := createPage(p.m, p.version, bKeys, bValues, nil, int64(b), 0)
	p.recalculateMemory()
	return newPage
}

func (p *Page) splitNode(at int) *Page {
	a, b := at, len(p.keys)-at

	aKeys := make([]any, a)
	bKeys := make([]any, b-1)
	copy(aKeys, p.keys[:a])
	copy(bKeys, p.keys[a+1:])
	p.keys = aKeys

	aChildren := make([]PageReference, a+1)
	bChildren := make([]PageReference, b)
	copy(aChildren, p.children[:a+1])
	copy(bChildren, p.children[a+1:])
	p.children = aChildren

	var t int64
	for _, x := range aChildren {
		t += x.Count
	}
	p.totalCount = t
	t = 0
	for _, x := range bChildren {
		t += x.Count
	}
	newPage := createPage(p.m, p.version, bKeys, nil, bChildren, t, 0)
	p.recalculateMemory()
	return newPage
}

// SetChild replaces the child page at an index. Passing the identical child
// (same handle and position) is a no-op; passing nil clears the slot.
func (p *Page) SetChild(index int, c *Page) {
	if c == nil {
		oldCount := p.children[index].Count
		children := make([]PageReference, len(p.children))
		copy(children, p.children)
		children[index] = PageReference{}
		p.children = children
		p.totalCount -= oldCount
	} else if c != p.children[index].Page || c.pos != p.children[index].Pos {
		oldCount := p.children[index].Count
		children := make([]PageReference, len(p.children))
		copy(children, p.children)
		children[index] = PageReference{Page: c, Pos: c.pos, Count: c.totalCount}
		p.children = children
		p.totalCount += c.totalCount - oldCount
	}
}

// SetKey replaces the key at an index.
func (p *Page) SetKey(index int, key any) {
	keys := make([]any, len(p.keys))
	copy(keys, p.keys)
	old := keys[index]
	keyType := p.m.keyType
	mem := keyType.Memory(key)
	if old != nil {
		mem -= keyType.Memory(old)
	}
	p.addMemory(mem)
	keys[index] = key
	p.keys = keys
}

// SetValue replaces the value at an index and returns the old value.
func (p *Page) SetValue(index int, value any) any {
	old := p.values[index]
	values := make([]any, len(p.values))
	copy(values, p.values)
	valueType := p.m.valueType
	p.addMemory(valueType.Memory(value) - valueType.Memory(old))
	values[index] = value
	p.values = values
	return old
}

// InsertLeaf inserts a key-value pair into this leaf at the given index.
func (p *Page) InsertLeaf(index int, key, value any) {
	n := len(p.keys) + 1
	newKeys := make([]any, n)
	copyWithGap(p.keys, newKeys, n-1, index)
	p.keys = newKeys
	newValues := make([]any, n)
	copyWithGap(p.values, newValues, n-1, index)
	p.values = newValues
	p.keys[index] = key
	p.values[index] = value
	p.totalCount++
	p.addMemory(p.m.keyType.Memory(key) + p.m.valueType.Memory(value))
}

// InsertNode inserts a child page into this internal page at the given index.
func (p *Page) InsertNode(index int, key any, childPage *Page) {
	newKeys := make([]any, len(p.keys)+1)
	copyWithGap(p.keys, newKeys, len(p.keys), index)
	newKeys[index] = key
	p.keys = newKeys

	childCount := len(p.children)
	newChildren := make([]PageReference, childCount+1)
	copyWithGap(p.children, newChildren, childCount, index)
	newChildren[index] = PageReference{Page: childPage, Pos: childPage.pos, Count: childPage.totalCount}
	p.children = newChildren

	p.totalCount += childPage.totalCount
	p.addMemory(p.m.keyType.Memory(key) + pageMemoryChild)
}

// Remove removes the key and value (or child) at the given index. When the
// last child of an internal page is removed, the preceding key goes with it.
func (p *Page) Remove(index int) {
	keyLength := len(p.keys)
	keyIndex := index
	if index >= keyLength {
		keyIndex = index - 1
	}
	old := p.keys[keyIndex]
	p.addMemory(-p.m.keyType.Memory(old))
	newKeys := make([]any, keyLength-1)
	copyExcept(p.keys, newKeys, keyLength, keyIndex)
	p.keys = newKeys

	if p.values != nil {
		old = p.values[index]
		p.addMemory(-p.m.valueType.Memory(old))
		newValues := make([]any, keyLength-1)
		copyExcept(p.values, newValues, keyLength, index)
		p.values = newValues
		p.totalCount--
	}
	if p.children != nil {
		p.addMemory(-pageMemoryChild)
		countOffset := p.children[index].Count

		childCount := len(p.children)
		newChildren := make([]PageReference, childCount-1)
		copyExcept(p.children, newChildren, childCount, index)
		p.children = newChildren

		p.totalCount -= countOffset
	}
}

// removeAllRecursive removes this page and every descendant. Children held
// only by position are loaded when internal, or settled by maximum length
// when they are leaves.
func (p *Page) removeAllRecursive() error {
	if p.children != nil {
		for i, size := 0, p.m.childPageCount(p); i < size; i++ {
			ref := p.children[i]
			if ref.Page != nil {
				if err := ref.Page.removeAllRecursive(); err != nil {
					return err
				}
			} else if encoding.PageType(ref.Pos) == encoding.PageTypeLeaf {
				p.m.removePage(ref.Pos, encoding.PageMaxLength(ref.Pos))
			} else {
				child, err := p.m.readPage(ref.Pos)
				if err != nil {
					return err
				}
				if err := child.removeAllRecursive(); err != nil {
					return err
				}
			}
		}
	}
	p.removePage()
	return nil
}

// read parses the page from b, which starts at the page's first byte.
func (p *Page) read(b []byte, chunkID, offset, maxLength int) error {
	r := NewReader(b)
	pageLength := int(r.Int32())
	if r.Err() != nil || pageLength > maxLength || pageLength < 4 {
		return corruptf(chunkID, "expected page length 4..%d, got %d", maxLength, pageLength)
	}
	r.SetLimit(pageLength)
	check := r.Uint16()
	mapID := int(r.VarInt())
	if r.Err() != nil {
		return corruptf(chunkID, "truncated page header")
	}
	if mapID != p.m.id {
		return corruptf(chunkID, "expected map id %d, got %d", p.m.id, mapID)
	}
	checkTest := encoding.CheckValue(chunkID) ^
		encoding.CheckValue(offset) ^
		encoding.CheckValue(pageLength)
	if check != checkTest {
		return corruptf(chunkID, "expected check value %d, got %d", checkTest, check)
	}
	keyCount := int(r.VarInt())
	typ := int(r.Byte())
	if r.Err() != nil || keyCount < 0 {
		return corruptf(chunkID, "bad key count %d", keyCount)
	}
	p.keys = make([]any, keyCount)
	node := typ&1 == encoding.PageTypeNode
	if node {
		p.children = make([]PageReference, keyCount+1)
		positions := make([]uint64, keyCount+1)
		for i := 0; i <= keyCount; i++ {
			positions[i] = r.Uint64()
		}
		var total int64
		for i := 0; i <= keyCount; i++ {
			s := r.VarLong()
			total += s
			p.children[i] = PageReference{Pos: positions[i], Count: s}
		}
		p.totalCount = total
		if r.Err() != nil {
			return corruptf(chunkID, "truncated child tables")
		}
	}
	if typ&encoding.PageCompressed != 0 {
		var compressor compress.Compressor
		if typ&encoding.PageCompressedHigh == encoding.PageCompressedHigh {
			compressor = p.m.store.compressorHigh()
		} else {
			compressor = p.m.store.compressorFast()
		}
		lenAdd := int(r.VarInt())
		compLen := pageLength - r.Pos()
		if r.Err() != nil || lenAdd < 0 || compLen < 0 {
			return corruptf(chunkID, "bad compression header")
		}
		comp := make([]byte, compLen)
		r.ReadFull(comp)
		exp := make([]byte, compLen+lenAdd)
		if err := compressor.Expand(comp, exp); err != nil {
			return corruptf(chunkID, "expand page payload: %v", err)
		}
		r = NewReader(exp)
	}
	if err := p.m.keyType.Read(r, p.keys, keyCount, true); err != nil {
		return corruptf(chunkID, "read keys: %v", err)
	}
	if !node {
		p.values = make([]any, keyCount)
		if err := p.m.valueType.Read(r, p.values, keyCount, false); err != nil {
			return corruptf(chunkID, "read values: %v", err)
		}
		p.totalCount = int64(keyCount)
	}
	p.recalculateMemory()
	return nil
}

// write emits the page into buff, assigns its position, and returns the
// buffer offset just past the type byte, where the child-position table
// begins. Child positions may still be zero-filled here; the caller patches
// them once children are assigned positions.
func (p *Page) write(chunk *Chunk, buff *WriteBuffer) (int, error) {
	if p.pos != 0 {
		return 0, internalf("page already stored")
	}
	start := buff.Pos()
	keyCount := len(p.keys)
	typ := encoding.PageTypeLeaf
	if p.children != nil {
		typ = encoding.PageTypeNode
	}
	buff.PutInt32(0) // page length, patched below
	buff.PutUint16(0)
	buff.PutVarInt(int32(p.m.id))
	buff.PutVarInt(int32(keyCount))
	typePos := buff.Pos()
	buff.PutByte(byte(typ))
	if typ == encoding.PageTypeNode {
		p.writeChildren(buff)
		for i := 0; i <= keyCount; i++ {
			buff.PutVarLong(p.children[i].Count)
		}
	}
	compressStart := buff.Pos()
	p.m.keyType.Write(buff, p.keys, keyCount, true)
	if typ == encoding.PageTypeLeaf {
		p.m.valueType.Write(buff, p.values, keyCount, false)
	}
	store := p.m.store
	expLen := buff.Pos() - compressStart
	if expLen > 16 && store.compressionLevel() > 0 {
		var compressor compress.Compressor
		var compressType int
		if store.compressionLevel() == 1 {
			compressor = store.compressorFast()
			compressType = encoding.PageCompressed
		} else {
			compressor = store.compressorHigh()
			compressType = encoding.PageCompressedHigh
		}
		exp := make([]byte, expLen)
		_, _ = buff.ReadAt(exp, int64(compressStart))
		comp := make([]byte, 2*expLen)
		compLen, err := compressor.Compress(exp, comp)
		if err != nil {
			return 0, err
		}
		if compLen > 0 {
			plus := encoding.VarIntLen(int32(expLen - compLen))
			if compLen+plus < expLen {
				buff.Seek(typePos)
				buff.PutByte(byte(typ + compressType))
				buff.Seek(compressStart)
				buff.PutVarInt(int32(expLen - compLen))
				_, _ = buff.Write(comp[:compLen])
				buff.Truncate(buff.Pos())
			}
		}
	}
	pageLength := buff.Pos() - start
	chunkID := chunk.ID
	check := encoding.CheckValue(chunkID) ^
		encoding.CheckValue(start) ^
		encoding.CheckValue(pageLength)
	buff.PutInt32At(start, int32(pageLength))
	buff.PutUint16At(start+4, check)
	if store.assertions() {
		if err := p.verify(); err != nil {
			return 0, err
		}
	}
	p.pos = encoding.PagePos(chunkID, start, pageLength, typ)
	store.cachePage(p.pos, p, p.memory)
	if typ == encoding.PageTypeNode {
		// cache again, so internal pages stay resident longer than leaves
		store.cachePage(p.pos, p, p.memory)
	}
	max := int64(encoding.PageMaxLength(p.pos))
	chunk.MaxLen += max
	chunk.MaxLenLive += max
	chunk.PageCount++
	chunk.PageCountLive++
	if p.removedInMemory.Load() {
		// removed before the position was assigned; settle the live
		// accounting within the same write cycle
		p.m.removePage(p.pos, p.memory)
	}
	return typePos + 1, nil
}

func (p *Page) writeChildren(buff *WriteBuffer) {
	for i := 0; i <= len(p.keys); i++ {
		buff.PutUint64(p.children[i].Pos)
	}
}

// writeUnsavedRecursive stores this page and every changed descendant,
// depth first, then patches the child-position table now that children have
// positions.
func (p *Page) writeUnsavedRecursive(chunk *Chunk, buff *WriteBuffer) error {
	if p.pos != 0 {
		// already stored before
		return nil
	}
	patch, err := p.write(chunk, buff)
	if err != nil {
		return err
	}
	if !p.IsLeaf() {
		for i := range p.children {
			if c := p.children[i].Page; c != nil {
				if err := c.writeUnsavedRecursive(chunk, buff); err != nil {
					return err
				}
				p.children[i] = PageReference{Page: c, Pos: c.pos, Count: c.totalCount}
			}
		}
		old := buff.Pos()
		buff.Seek(patch)
		p.writeChildren(buff)
		buff.Seek(old)
	}
	return nil
}

// writeEnd unlinks the in-memory children recursively after the chunk is
// persisted, retaining position-only references.
func (p *Page) writeEnd() error {
	if p.IsLeaf() {
		return nil
	}
	for i := range p.children {
		ref := p.children[i]
		if ref.Page != nil {
			if ref.Page.pos == 0 {
				return internalf("page not written")
			}
			if err := ref.Page.writeEnd(); err != nil {
				return err
			}
			p.children[i] = PageReference{Pos: ref.Pos, Count: ref.Count}
		}
	}
	return nil
}

func (p *Page) addMemory(mem int) {
	p.memory += mem
}

// recalculateMemory rebuilds the memory estimate from scratch.
func (p *Page) recalculateMemory() {
	mem := pageMemory
	keyType := p.m.keyType
	for i := range p.keys {
		mem += keyType.Memory(p.keys[i])
	}
	if p.IsLeaf() {
		valueType := p.m.valueType
		for i := range p.keys {
			mem += valueType.Memory(p.values[i])
		}
	} else {
		mem += len(p.children) * pageMemoryChild
	}
	p.addMemory(mem - p.memory)
}

// verify checks the running totalCount and memory against recomputation.
// Only called when the store's assertions are enabled.
func (p *Page) verify() error {
	var check int64
	if p.IsLeaf() {
		check = int64(len(p.keys))
	} else {
		for _, c := range p.children {
			check += c.Count
		}
	}
	if check != p.totalCount {
		return internalf("total count expected %d, got %d", check, p.totalCount)
	}
	mem := p.memory
	p.recalculateMemory()
	if mem != p.memory {
		return internalf("memory calculation error: expected %d, got %d", p.memory, mem)
	}
	return nil
}

// removePage releases this page's live bytes. If the page was never stored,
// the removal is deferred until a position is assigned during write-out.
func (p *Page) removePage() {
	pos := p.pos
	if pos == 0 {
		p.removedInMemory.Store(true)
	}
	p.m.removePage(pos, p.memory)
}

// copyWithGap copies oldSize elements from src into dst, leaving a one-slot
// gap at gapIndex.
func copyWithGap[T any](src, dst []T, oldSize, gapIndex int) {
	copy(dst[:gapIndex], src[:gapIndex])
	copy(dst[gapIndex+1:], src[gapIndex:oldSize])
}

// copyExcept copies oldSize elements from src into dst, skipping the
// element at removeIndex.
func copyExcept[T any](src, dst []T, oldSize, removeIndex int) {
	copy(dst[:removeIndex], src[:removeIndex])
	copy(dst[removeIndex:], src[removeIndex+1:oldSize])
}
