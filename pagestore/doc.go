// Package pagestore implements the versioned B-tree page store at the heart
// of pagedb: an embedded, append-only, copy-on-write key/value engine.
//
// The central type is Page, which is simultaneously a B-tree node (leaf or
// internal), a memory-accounted cache entry, and a self-describing record in
// a log-structured chunk file. Pages are immutable after publication: every
// mutator replaces the underlying arrays rather than writing into them, so
// concurrent readers holding an older root continue to observe a stable
// snapshot while a single writer advances the tree under a new version.
//
// On disk, pages live inside chunks appended to a single data file. A page's
// stable identity is its position, a packed 64-bit integer locating it by
// (chunk id, offset, length class, type bit). Positions are assigned by a
// two-phase write-out: children are serialized depth-first and the parent's
// child-position table is patched once their positions are known.
//
// Store owns the chunk allocator, the commit cycle, the page cache and the
// manifest; BTreeMap is the map container owning a tree root and the key and
// value codecs. Neither is safe to construct directly; use the root pagedb
// package to open a database.
package pagestore
