package pagestore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/pagedb/codec"
	"github.com/hupe1980/pagedb/internal/cache"
	"github.com/hupe1980/pagedb/internal/compress"
	"github.com/hupe1980/pagedb/internal/encoding"
	"github.com/hupe1980/pagedb/internal/fs"
	"github.com/hupe1980/pagedb/resource"
)

const (
	dataFileName     = "pagedb.data"
	manifestFileName = "MANIFEST"

	defaultCacheSize        = 16 * 1024 * 1024
	defaultPageSplitSize    = 16 * 1024
	defaultWriteBufferSize  = 4 * 1024 * 1024
	defaultAutoCommitMemory = 0 // disabled
)

// Config carries the store construction parameters resolved by the root
// package's options.
type Config struct {
	FS               fs.FileSystem
	Codec            codec.Codec
	Controller       *resource.Controller
	Logger           *slog.Logger
	CompressionLevel int // 0 off, 1 fast (LZ4), 2 high (zstd)
	CacheSize        int64
	PageSplitSize    int
	AutoCommitMemory int
	Assertions       bool
	MMap             bool
	ReadOnly         bool
}

// Store owns the data file, the chunk allocator, the commit cycle, the page
// cache and the manifest. All maps of one database share a single store.
type Store struct {
	mu sync.Mutex // serializes commit, open/close, map registry, gc

	dir       string
	fsys      fs.FileSystem
	fileStore *FileStore
	codec     codec.Codec
	rc        *resource.Controller
	logger    *slog.Logger
	cache     *cache.PageCache

	compressionLvl int
	fast           compress.Compressor
	high           compress.Compressor
	assert         bool
	pageSplitSize  int
	autoCommitMem  int
	readOnly       bool
	closed         bool

	version     atomic.Uint64
	lastChunkID int
	lastMapID   int
	chunks      map[int]*Chunk
	maps        map[string]*BTreeMap
	mapMeta     map[string]manifestMap // manifest entries not yet opened

	// accountMu guards the per-chunk live counters, which are touched by
	// map writers outside the store lock.
	accountMu     sync.Mutex
	unsavedMemory atomic.Int64

	sf singleflight.Group
}

type manifestChunk struct {
	ID            int    `json:"id"`
	Start         int64  `json:"start"`
	Len           int64  `json:"len"`
	Version       uint64 `json:"version"`
	MaxLen        int64  `json:"max_len"`
	MaxLenLive    int64  `json:"max_len_live"`
	PageCount     int    `json:"page_count"`
	PageCountLive int    `json:"page_count_live"`
}

type manifestMap struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
	Root uint64 `json:"root"`
}

type manifestRoot struct {
	Version     uint64          `json:"version"`
	LastChunkID int             `json:"last_chunk_id"`
	LastMapID   int             `json:"last_map_id"`
	Chunks      []manifestChunk `json:"chunks"`
	Maps        []manifestMap   `json:"maps"`
}

// OpenStore opens the store rooted at dir, creating it if needed.
func OpenStore(dir string, cfg Config) (*Store, error) {
	if cfg.FS == nil {
		cfg.FS = fs.Default
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.PageSplitSize <= 0 {
		cfg.PageSplitSize = defaultPageSplitSize
	}
	if err := cfg.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	fileStore, err := OpenFileStore(cfg.FS, filepath.Join(dir, dataFileName), cfg.ReadOnly, cfg.MMap)
	if err != nil {
		return nil, err
	}
	s := &Store{
		dir:            dir,
		fsys:           cfg.FS,
		fileStore:      fileStore,
		codec:          cfg.Codec,
		rc:             cfg.Controller,
		logger:         cfg.Logger,
		cache:          cache.New(cfg.CacheSize, cfg.Controller),
		compressionLvl: cfg.CompressionLevel,
		fast:           compress.LZ4{},
		high:           compress.Zstd{},
		assert:         cfg.Assertions,
		pageSplitSize:  cfg.PageSplitSize,
		autoCommitMem:  cfg.AutoCommitMemory,
		readOnly:       cfg.ReadOnly,
		chunks:         make(map[int]*Chunk),
		maps:           make(map[string]*BTreeMap),
		mapMeta:        make(map[string]manifestMap),
	}
	if err := s.readManifest(); err != nil {
		_ = fileStore.Close()
		return nil, err
	}
	s.logger.Info("store opened",
		"dir", dir,
		"version", s.version.Load(),
		"chunks", len(s.chunks),
		"file_size", fileStore.Size(),
	)
	return s, nil
}

// OpenMap opens (or creates) the named map with the given key and value
// types. Reopening a name returns the existing instance.
func (s *Store) OpenMap(name string, keyType, valueType DataType, opts ...MapOption) (*BTreeMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if m, ok := s.maps[name]; ok {
		return m, nil
	}
	m := &BTreeMap{
		store:     s,
		name:      name,
		keyType:   keyType,
		valueType: valueType,
	}
	for _, opt := range opts {
		opt(m)
	}
	if meta, ok := s.mapMeta[name]; ok {
		m.id = meta.ID
		if meta.Root != 0 {
			root, err := s.readPage(m, meta.Root)
			if err != nil {
				return nil, err
			}
			m.root.Store(root)
		}
	} else {
		s.lastMapID++
		m.id = s.lastMapID
	}
	if m.root.Load() == nil {
		m.root.Store(createEmpty(m, s.version.Load()+1))
	}
	s.maps[name] = m
	return m, nil
}

// Commit seals the pending changes of every dirty map into a new chunk,
// fsyncs the data file, and persists the manifest.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked()
}

func (s *Store) commitLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	dirty := s.dirtyMapsLocked()
	if len(dirty) == 0 {
		return nil
	}
	for _, m := range dirty {
		m.mu.Lock()
	}
	defer func() {
		for _, m := range dirty {
			m.mu.Unlock()
		}
	}()

	version := s.version.Add(1)
	c := &Chunk{ID: s.lastChunkID + 1, Version: version}
	buff := NewWriteBuffer(defaultWriteBufferSize)
	buff.Seek(chunkHeaderLen)
	for _, m := range dirty {
		if err := m.root.Load().writeUnsavedRecursive(c, buff); err != nil {
			s.version.Add(^uint64(0))
			return err
		}
	}
	c.Len = int64(buff.Len())
	c.writeHeader(buff)
	c.Start = s.fileStore.Size()
	if err := s.fileStore.WriteAt(buff.Bytes(), c.Start); err != nil {
		return err
	}
	if err := s.fileStore.Sync(); err != nil {
		return err
	}
	for _, m := range dirty {
		if err := m.root.Load().writeEnd(); err != nil {
			return err
		}
	}
	s.lastChunkID = c.ID
	s.accountMu.Lock()
	s.chunks[c.ID] = c
	s.accountMu.Unlock()
	s.unsavedMemory.Store(0)
	if err := s.writeManifestLocked(); err != nil {
		return err
	}
	s.logger.Info("commit",
		"version", s.version.Load(),
		"chunk", c.ID,
		"chunk_len", c.Len,
		"pages", c.PageCount,
		"maps", len(dirty),
	)
	return nil
}

// dirtyMapsLocked returns the maps whose root was replaced since the last
// commit, in map-id order so lock acquisition is deterministic.
func (s *Store) dirtyMapsLocked() []*BTreeMap {
	var dirty []*BTreeMap
	for _, m := range s.maps {
		if m.root.Load().Pos() == 0 {
			dirty = append(dirty, m)
		}
	}
	sort.Slice(dirty, func(i, j int) bool { return dirty[i].id < dirty[j].id })
	return dirty
}

// Close commits pending changes and releases the data file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	var firstErr error
	if !s.readOnly {
		if err := s.commitLocked(); err != nil {
			firstErr = err
		}
	}
	if err := s.fileStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.closed = true
	s.logger.Info("store closed", "dir", s.dir, "version", s.version.Load())
	return firstErr
}

// readPage resolves the page at pos for map m: page-cache lookup, then a
// singleflight-deduplicated read from the data file.
func (s *Store) readPage(m *BTreeMap, pos uint64) (*Page, error) {
	if pos == 0 {
		return nil, internalf("cannot read page at position 0")
	}
	if v, ok := s.cache.Get(pos); ok {
		return v.(*Page), nil
	}
	v, err, _ := s.sf.Do(strconv.FormatUint(pos, 16), func() (any, error) {
		if v, ok := s.cache.Get(pos); ok {
			return v, nil
		}
		chunkID := encoding.PageChunkID(pos)
		c, ok := s.chunk(chunkID)
		if !ok {
			return nil, corruptf(chunkID, "chunk not found for position %x", pos)
		}
		filePos := c.Start + int64(encoding.PageOffset(pos))
		p, err := readPageAt(s.fileStore, pos, m, filePos, c.Start+c.Len)
		if err != nil {
			return nil, err
		}
		s.cache.Set(pos, p, int64(p.Memory()))
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Page), nil
}

func (s *Store) chunk(id int) (*Chunk, bool) {
	s.accountMu.Lock()
	defer s.accountMu.Unlock()
	c, ok := s.chunks[id]
	return c, ok
}

// registerUnsavedPage raises the unsaved-memory watermark that drives
// auto-commit.
func (s *Store) registerUnsavedPage(memory int) {
	s.unsavedMemory.Add(int64(memory))
}

// UnsavedMemory returns the estimated bytes of pages created since the last
// commit.
func (s *Store) UnsavedMemory() int64 {
	return s.unsavedMemory.Load()
}

func (s *Store) shouldAutoCommit() bool {
	return s.autoCommitMem > 0 && s.unsavedMemory.Load() > int64(s.autoCommitMem)
}

// accountRemovedPage settles the accounting for a removed page: unsaved
// memory when it never had a position, the owning chunk's live counters
// otherwise.
func (s *Store) accountRemovedPage(pos uint64, memory int) {
	if pos == 0 {
		s.unsavedMemory.Add(int64(-memory))
		return
	}
	s.accountMu.Lock()
	defer s.accountMu.Unlock()
	if c, ok := s.chunks[encoding.PageChunkID(pos)]; ok {
		c.MaxLenLive -= int64(encoding.PageMaxLength(pos))
		c.PageCountLive--
	}
}

// cachePage inserts a page into the page cache under its position. Calling
// it again for a resident position refreshes recency, which the write path
// uses to promote internal pages.
func (s *Store) cachePage(pos uint64, p *Page, memory int) {
	s.cache.Set(pos, p, int64(memory))
}

func (s *Store) compressorFast() compress.Compressor { return s.fast }
func (s *Store) compressorHigh() compress.Compressor { return s.high }
func (s *Store) compressionLevel() int               { return s.compressionLvl }
func (s *Store) assertions() bool                    { return s.assert }

// nextVersion is the version the next commit will seal.
func (s *Store) nextVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version.Load() + 1
}

// Version returns the last committed version.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

func (s *Store) maybeAutoCommit() {
	if !s.shouldAutoCommit() {
		return
	}
	if err := s.Commit(); err != nil {
		s.logger.Error("auto-commit failed", "error", err)
	}
}

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Version       uint64
	Chunks        int
	FileSize      int64
	UnsavedMemory int64
	CacheSize     int64
	CacheHits     int64
	CacheMisses   int64
}

// Stats returns current store counters.
func (s *Store) Stats() Stats {
	s.accountMu.Lock()
	chunks := len(s.chunks)
	s.accountMu.Unlock()
	version := s.version.Load()
	hits, misses := s.cache.Stats()
	return Stats{
		Version:       version,
		Chunks:        chunks,
		FileSize:      s.fileStore.Size(),
		UnsavedMemory: s.unsavedMemory.Load(),
		CacheSize:     s.cache.Size(),
		CacheHits:     hits,
		CacheMisses:   misses,
	}
}

// FileStorePath returns the path of the data file, for backup.
func (s *Store) FileStorePath() string { return s.fileStore.Path() }

// ManifestPath returns the path of the manifest file, for backup.
func (s *Store) ManifestPath() string {
	return filepath.Join(s.dir, manifestFileName)
}

// BackupSnapshot commits pending changes and returns the manifest bytes
// plus the data file length they describe. Because the data file is
// append-only, any commit racing after the snapshot only appends beyond
// the returned length, so a backup of the first dataLen bytes plus this
// manifest is always consistent.
func (s *Store) BackupSnapshot() (manifest []byte, dataLen int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, ErrClosed
	}
	if !s.readOnly {
		if err := s.commitLocked(); err != nil {
			return nil, 0, err
		}
	}
	f, err := s.fsys.OpenFile(s.ManifestPath(), os.O_RDONLY, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	manifest, err = io.ReadAll(f)
	if err != nil {
		return nil, 0, fmt.Errorf("read manifest: %w", err)
	}
	return manifest, s.fileStore.Size(), nil
}
