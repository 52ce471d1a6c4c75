package pagedb

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pagedb/blobstore"
	"github.com/hupe1980/pagedb/resource"
)

// Blob names used by Backup and Restore.
const (
	backupDataBlob     = "pagedb.data"
	backupManifestBlob = "MANIFEST"
)

// Backup commits pending changes and uploads a consistent snapshot of the
// database (data file plus manifest) to the blob store. Reads of the data
// file are paced through the resource controller, if one is configured.
//
// Backup can run while the database stays open for writes: the data file is
// append-only, so commits racing with the upload only append beyond the
// snapshot length.
func (db *DB) Backup(ctx context.Context, bs blobstore.BlobStore) error {
	manifest, dataLen, err := db.store.BackupSnapshot()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := db.uploadDataFile(gctx, bs, dataLen); err != nil {
			return &BackupError{Name: backupDataBlob, cause: err}
		}
		return nil
	})
	g.Go(func() error {
		if err := bs.Put(gctx, backupManifestBlob, manifest); err != nil {
			return &BackupError{Name: backupManifestBlob, cause: err}
		}
		return nil
	})
	err = g.Wait()
	db.logger.LogBackup(ctx, backupDataBlob, dataLen, err)
	return err
}

func (db *DB) uploadDataFile(ctx context.Context, bs blobstore.BlobStore, dataLen int64) error {
	f, err := os.Open(db.store.FileStorePath())
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := bs.Create(ctx, backupDataBlob)
	if err != nil {
		return err
	}
	var src io.Reader = io.NewSectionReader(f, 0, dataLen)
	src = resource.NewRateLimitedReader(src, db.opts.rc, ctx)
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}

// Restore downloads a backup written by Backup into dir, which must not
// already hold a database. Open the restored database with Open afterwards.
func Restore(ctx context.Context, bs blobstore.BlobStore, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, backupManifestBlob)); err == nil {
		return fmt.Errorf("restore target %s already holds a database", dir)
	}
	for _, name := range []string{backupDataBlob, backupManifestBlob} {
		if err := downloadBlob(ctx, bs, name, filepath.Join(dir, name)); err != nil {
			return &BackupError{Name: name, cause: err}
		}
	}
	return nil
}

func downloadBlob(ctx context.Context, bs blobstore.BlobStore, name, path string) error {
	b, err := bs.Open(ctx, name)
	if err != nil {
		return err
	}
	defer b.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	src := io.NewSectionReader(b, 0, b.Size())
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
