package pagestore

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/pagedb/internal/encoding"
)

// pageChildrenCacheLimit bounds the per-run PageChildren cache; internal
// pages shared across map roots are only parsed once within that budget.
const pageChildrenCacheLimit = 1024

// CollectGarbage drops chunks that are no longer referenced by any map root
// and hold no live pages. Pending changes are committed first so every root
// is on disk before the reachability walk.
func (s *Store) CollectGarbage() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	if err := s.commitLocked(); err != nil {
		return err
	}

	referenced := roaring.New()
	seen := make(map[uint64]*PageChildren)
	for _, m := range s.maps {
		rootPos := m.root.Load().Pos()
		if rootPos == 0 {
			continue // empty map that never committed a page
		}
		if err := s.collectReachable(m.id, rootPos, referenced, seen); err != nil {
			return err
		}
	}
	// Roots persisted by earlier sessions but not opened here still pin
	// their chunks.
	for name, meta := range s.mapMeta {
		if _, open := s.maps[name]; open || meta.Root == 0 {
			continue
		}
		if err := s.collectReachable(meta.ID, meta.Root, referenced, seen); err != nil {
			return err
		}
	}

	var freed []int
	s.accountMu.Lock()
	for id, c := range s.chunks {
		if id == s.lastChunkID {
			continue // never drop the chunk holding the current roots
		}
		if !referenced.Contains(uint32(id)) && c.PageCountLive <= 0 {
			delete(s.chunks, id)
			freed = append(freed, id)
		}
	}
	s.accountMu.Unlock()
	if len(freed) > 0 {
		for _, id := range freed {
			chunkID := id
			s.cache.Invalidate(func(pos uint64) bool {
				return encoding.PageChunkID(pos) == chunkID
			})
		}
		if err := s.writeManifestLocked(); err != nil {
			return err
		}
	}
	s.logger.Info("garbage collection",
		"referenced_chunks", referenced.GetCardinality(),
		"freed_chunks", len(freed),
	)
	return nil
}

// collectReachable walks the internal pages reachable from pos via
// header-only reads, unioning every referenced chunk id into target.
func (s *Store) collectReachable(mapID int, pos uint64, target *roaring.Bitmap, seen map[uint64]*PageChildren) error {
	target.Add(uint32(encoding.PageChunkID(pos)))
	if encoding.PageType(pos) == encoding.PageTypeLeaf {
		return nil
	}
	pc, ok := seen[pos]
	if !ok {
		chunkID := encoding.PageChunkID(pos)
		c, found := s.chunk(chunkID)
		if !found {
			return corruptf(chunkID, "chunk not found for position %x", pos)
		}
		filePos := c.Start + int64(encoding.PageOffset(pos))
		var err error
		pc, err = readPageChildren(s.fileStore, pos, mapID, filePos, c.Start+c.Len)
		if err != nil {
			return err
		}
		if pc == nil {
			return nil
		}
		pc.removeDuplicateChunkReferences()
		if len(seen) < pageChildrenCacheLimit {
			seen[pos] = pc
		}
	}
	pc.collectReferencedChunks(target)
	for _, child := range pc.children {
		if encoding.PageType(child) == encoding.PageTypeNode {
			if err := s.collectReachable(mapID, child, target, seen); err != nil {
				return err
			}
		}
	}
	return nil
}
