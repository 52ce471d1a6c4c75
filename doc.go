// Package pagedb is an embedded, append-only, copy-on-write key/value
// storage engine.
//
// A database holds named B-tree maps sharing one log-structured data file.
// Mutations never overwrite pages in place: each commit appends a chunk of
// freshly written pages and atomically replaces the manifest, so readers
// keep traversing their snapshot while a single writer per map advances the
// tree. Garbage collection reclaims chunks no live root references.
//
// # Usage
//
//	db, err := pagedb.Open("./data",
//	    pagedb.WithCompression(1),
//	    pagedb.WithCacheSize(64<<20),
//	)
//	if err != nil { ... }
//	defer db.Close()
//
//	users, err := db.OpenMap("users", pagestore.StringType{}, pagestore.BytesType{})
//	if err != nil { ... }
//	_, err = users.Put("alice", []byte(`{"role":"admin"}`))
//	...
//	err = db.Commit()
//
// The pagestore package holds the page and map machinery; blobstore holds
// the backup targets (local directory, memory, S3, MinIO).
package pagedb
