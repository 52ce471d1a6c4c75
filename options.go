package pagedb

import (
	"log/slog"

	"github.com/hupe1980/pagedb/codec"
	"github.com/hupe1980/pagedb/internal/fs"
	"github.com/hupe1980/pagedb/resource"
)

type options struct {
	fsys             fs.FileSystem
	codec            codec.Codec
	logger           *Logger
	rc               *resource.Controller
	compressionLevel int
	cacheSize        int64
	pageSplitSize    int
	autoCommitMemory int
	assertions       bool
	mmap             bool
	readOnly         bool
}

// Option configures Open behavior.
//
// Breaking changes are expected while pagedb is pre-release.
type Option func(*options)

// WithFS overrides the filesystem used for the data file and manifest.
// Tests use this to inject fault-injecting filesystems.
func WithFS(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fsys = fsys
	}
}

// WithCodec configures the codec used for the manifest.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression sets the page payload compression level:
//
//	0  off (default)
//	1  fast (LZ4)
//	2  high (zstd)
//
// Compression applies to the keys/values region of each page; headers and
// child tables stay uncompressed so garbage collection can scan them.
func WithCompression(level int) Option {
	return func(o *options) {
		if level < 0 {
			level = 0
		}
		if level > 2 {
			level = 2
		}
		o.compressionLevel = level
	}
}

// WithCacheSize bounds the page cache by the summed memory estimate of the
// cached pages, in bytes. Default: 16 MiB.
func WithCacheSize(bytes int64) Option {
	return func(o *options) {
		o.cacheSize = bytes
	}
}

// WithPageSplitSize sets the memory estimate above which a page is split
// during descent. Default: 16 KiB.
func WithPageSplitSize(bytes int) Option {
	return func(o *options) {
		o.pageSplitSize = bytes
	}
}

// WithAutoCommitMemory commits automatically once the estimated memory of
// unsaved pages exceeds the given number of bytes. 0 (the default) disables
// auto-commit; every commit is explicit.
func WithAutoCommitMemory(bytes int) Option {
	return func(o *options) {
		o.autoCommitMemory = bytes
	}
}

// WithAssertions enables expensive internal verification: page totals and
// memory estimates are recomputed and compared on every write-out. Intended
// for tests.
func WithAssertions() Option {
	return func(o *options) {
		o.assertions = true
	}
}

// WithMMap enables a read-only memory mapping of the data file, refreshed
// after each commit. Reads outside the mapped region fall back to pread.
func WithMMap() Option {
	return func(o *options) {
		o.mmap = true
	}
}

// WithReadOnly opens the database for reading only. Commit and map
// mutations fail with ErrReadOnly.
func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// WithResourceController attaches a shared resource controller. The page
// cache charges its memory budget and backup IO obeys its rate limit.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithLogger configures structured logging for store-level events (open,
// commit, gc, close, backup). Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger: NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
