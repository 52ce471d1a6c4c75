// Package fs provides the small filesystem abstraction behind the store's
// data file and manifest.
//
// The surface is deliberately narrow: pagedb opens files, renames a
// manifest temporary into place, removes a failed temporary, and creates
// the store directory. Everything else the os package offers stays out of
// the interface so fakes have little to implement.
//
// Production code uses fs.Default (which is [LocalFS]):
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
//
// Tests inject [FaultyFS] to simulate IO failures mid-commit:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("pagedb.data", fs.Fault{FailOnSync: true})
//	// open the store with this filesystem and watch Commit surface the error
//
// The interfaces intentionally take no context.Context: local file
// operations are fast and non-interruptible at the syscall level. Slow
// remote operations (e.g. S3 backups) live behind the blobstore
// interfaces instead, which do take contexts.
package fs
