// Package encoding implements the low-level wire primitives of the page
// format: 7-bit variable-length integers, the 16-bit page check value, and
// the packed 64-bit page position.
//
// A page position packs (chunkId, offset-within-chunk, length code, type bit)
// into a single uint64:
//
//	bits 38..63  chunk id
//	bits  6..37  offset within the chunk
//	bits  1..5   length code (0..30 bounded classes, 31 = "large")
//	bit   0      page type (0 = leaf, 1 = node)
//
// Length codes map to maximum encoded page lengths of
// 32, 48, 64, 96, 128, ... up to 1 MiB; pages above that use code 31
// (PageLarge) and the reader recovers the real length from the page_length
// field via a short prefetch.
package encoding
