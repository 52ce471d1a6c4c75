// Package minio provides a MinIO implementation of the
// blobstore.BlobStore interface, used as a pagedb backup target for
// self-hosted S3-compatible storage.
//
// # Usage
//
//	client, err := minio.New("play.min.io", &minio.Options{...})
//	store := miniostore.NewStore(client, "my-bucket", "backups/mydb/")
//	err = db.Backup(ctx, store)
package minio
