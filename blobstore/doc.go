// Package blobstore provides the storage abstraction behind pagedb backups.
//
// A backup uploads the sealed data file and the manifest as named blobs;
// restore downloads them back before a normal Open. BlobStore keeps that
// protocol independent of where the bytes land.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem directory with mmap reads
//   - MemoryStore: in-memory store for tests
//   - s3.Store: Amazon S3 with range reads and managed multipart uploads
//   - minio.Store: MinIO and other S3-compatible endpoints
//
// Implement the BlobStore interface to support custom backends.
package blobstore
