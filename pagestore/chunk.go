package pagestore

import "encoding/binary"

// chunkHeaderLen is the fixed number of bytes reserved at the start of every
// chunk. Page offsets are measured from the chunk start, so the first page
// of a chunk sits at offset chunkHeaderLen.
const chunkHeaderLen = 32

// chunkMagic marks the start of a chunk in the data file ("PDBC").
const chunkMagic = 0x50444243

// Chunk is an append-only region of the data file holding pages written in
// one commit, plus the live-bytes counters the garbage collector consumes.
// MaxLen/PageCount are fixed once the chunk is sealed; the Live counterparts
// decay as newer versions supersede pages.
type Chunk struct {
	ID      int
	Start   int64 // file offset of the chunk's first byte
	Len     int64
	Version uint64

	MaxLen        int64
	MaxLenLive    int64
	PageCount     int
	PageCountLive int
}

// writeHeader patches the chunk header into the first chunkHeaderLen bytes
// of buff, which the commit cycle reserved before emitting pages.
func (c *Chunk) writeHeader(buff *WriteBuffer) {
	var h [chunkHeaderLen]byte
	binary.BigEndian.PutUint32(h[0:], chunkMagic)
	binary.BigEndian.PutUint32(h[4:], uint32(c.ID))
	binary.BigEndian.PutUint64(h[8:], uint64(c.Len))
	binary.BigEndian.PutUint64(h[16:], c.Version)
	binary.BigEndian.PutUint32(h[24:], uint32(c.PageCount))
	old := buff.Pos()
	buff.Seek(0)
	_, _ = buff.Write(h[:])
	buff.Seek(old)
}

// readChunkHeader validates the header bytes at a chunk's start.
func readChunkHeader(b []byte, wantID int) (*Chunk, error) {
	if len(b) < chunkHeaderLen {
		return nil, corruptf(wantID, "short chunk header: %d bytes", len(b))
	}
	if binary.BigEndian.Uint32(b[0:]) != chunkMagic {
		return nil, corruptf(wantID, "bad chunk magic")
	}
	id := int(int32(binary.BigEndian.Uint32(b[4:])))
	if id != wantID {
		return nil, corruptf(wantID, "expected chunk id %d, got %d", wantID, id)
	}
	return &Chunk{
		ID:        id,
		Len:       int64(binary.BigEndian.Uint64(b[8:])),
		Version:   binary.BigEndian.Uint64(b[16:]),
		PageCount: int(int32(binary.BigEndian.Uint32(b[24:]))),
	}, nil
}
