package pagedb

import (
	"github.com/hupe1980/pagedb/pagestore"
)

// DB is an open database: a set of named B-tree maps over one shared page
// store. All methods are safe for concurrent use; each map additionally
// serializes its own writers.
type DB struct {
	store  *pagestore.Store
	logger *Logger
	opts   options
}

// Open opens (or creates) a database rooted at dir.
func Open(dir string, optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns)
	store, err := pagestore.OpenStore(dir, pagestore.Config{
		FS:               opts.fsys,
		Codec:            opts.codec,
		Controller:       opts.rc,
		Logger:           opts.logger.Logger,
		CompressionLevel: opts.compressionLevel,
		CacheSize:        opts.cacheSize,
		PageSplitSize:    opts.pageSplitSize,
		AutoCommitMemory: opts.autoCommitMemory,
		Assertions:       opts.assertions,
		MMap:             opts.mmap,
		ReadOnly:         opts.readOnly,
	})
	if err != nil {
		return nil, err
	}
	return &DB{
		store:  store,
		logger: opts.logger,
		opts:   opts,
	}, nil
}

// OpenMap opens (or creates) the named map with the given key and value
// types. Reopening a name returns the existing instance; the types must
// match those the map was created with.
func (db *DB) OpenMap(name string, keyType, valueType pagestore.DataType, opts ...pagestore.MapOption) (*pagestore.BTreeMap, error) {
	return db.store.OpenMap(name, keyType, valueType, opts...)
}

// Commit seals all pending changes into a new chunk and persists the
// manifest. Committing with no pending changes is a no-op.
func (db *DB) Commit() error {
	return db.store.Commit()
}

// CollectGarbage drops chunks no live map root references.
func (db *DB) CollectGarbage() error {
	return db.store.CollectGarbage()
}

// Version returns the last committed version.
func (db *DB) Version() uint64 {
	return db.store.Version()
}

// Stats returns current store counters.
func (db *DB) Stats() pagestore.Stats {
	return db.store.Stats()
}
