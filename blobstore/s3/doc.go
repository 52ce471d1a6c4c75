// Package s3 provides an S3 implementation of the blobstore.BlobStore
// interface, used as a pagedb backup target.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", "backups/mydb/")
//	if err != nil { ... }
//	err = db.Backup(ctx, store)
//
// # Features
//
//   - Range reads for partial restores
//   - Managed multipart uploads for large data files
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
