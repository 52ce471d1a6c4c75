// Package mmap provides read-only memory-mapped file access for zero-copy
// reads of the data file and of backup blobs.
//
// # Overview
//
// Memory mapping lets page reads come straight out of the kernel page cache
// without a copy per read syscall. The FileStore maps the data file after
// every commit and serves reads from the mapping when the requested range
// is covered, falling back to pread otherwise.
//
// # Usage
//
//	m, err := mmap.Open("pagedb.data")
//	if err != nil { ... }
//	defer m.Close()
//
//	// Zero-copy access to file contents
//	data := m.Bytes()
//
//	// Create a view into a specific region
//	region, _ := m.Region(offset, size)
//
//	// Provide kernel hints for access patterns
//	m.Advise(mmap.AccessRandom)
//
// # Platform Support
//
// The package provides a unified API across platforms:
//
//   - Unix (Linux, macOS, BSD): Uses mmap(2) with madvise(2) for access hints
//   - Windows: Uses CreateFileMapping/MapViewOfFile (madvise is a no-op)
//
// # Thread Safety
//
// Mapping and Region are safe for concurrent read access. The Close() method
// is idempotent and protected by atomic operations. However, callers must
// ensure no goroutines access Bytes() after Close() returns.
package mmap
