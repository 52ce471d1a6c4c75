package pagedb

import (
	"fmt"

	"github.com/hupe1980/pagedb/pagestore"
)

// Sentinels from the page store, re-exported so callers matching with
// errors.Is never need to import pagestore.
var (
	// ErrFileCorrupt indicates a page failed validation during read.
	ErrFileCorrupt = pagestore.ErrFileCorrupt

	// ErrInternal indicates a broken invariant inside the store.
	ErrInternal = pagestore.ErrInternal

	// ErrClosed is returned for operations on a closed database.
	ErrClosed = pagestore.ErrClosed

	// ErrReadOnly is returned for mutations on a read-only database.
	ErrReadOnly = pagestore.ErrReadOnly
)

// BackupError indicates a failed backup or restore of one blob.
//
// The original underlying error can be accessed via errors.Unwrap.
type BackupError struct {
	Name  string
	cause error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backup blob %q: %v", e.Name, e.cause)
}

func (e *BackupError) Unwrap() error { return e.cause }
