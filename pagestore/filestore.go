package pagestore

import (
	"fmt"
	"os"
	"sync"

	"github.com/hupe1980/pagedb/internal/fs"
	"github.com/hupe1980/pagedb/internal/mmap"
)

// FileStore is the random-access surface over the single append-only data
// file. Reads go through an optional read-only memory mapping, refreshed
// after every sync, and fall back to pread for regions the mapping does not
// cover yet.
type FileStore struct {
	fsys     fs.FileSystem
	path     string
	file     fs.File
	readOnly bool
	useMMap  bool

	mu      sync.RWMutex
	size    int64
	mapping *mmap.Mapping
}

// OpenFileStore opens (or creates) the data file at path.
func OpenFileStore(fsys fs.FileSystem, path string, readOnly, useMMap bool) (*FileStore, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := fsys.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s := &FileStore{
		fsys:     fsys,
		path:     path,
		file:     f,
		readOnly: readOnly,
		useMMap:  useMMap,
		size:     fi.Size(),
	}
	if useMMap {
		// A failed map is not fatal; reads fall back to pread.
		if m, err := mmap.Open(path); err == nil {
			_ = m.Advise(mmap.AccessRandom)
			s.mapping = m
		}
	}
	return s, nil
}

// Path returns the data file path.
func (s *FileStore) Path() string { return s.path }

// Size returns the current file size in bytes.
func (s *FileStore) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// ReadFully reads exactly length bytes at the absolute file offset pos.
func (s *FileStore) ReadFully(pos int64, length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("negative read length %d", length)
	}
	b := make([]byte, length)
	s.mu.RLock()
	m := s.mapping
	s.mu.RUnlock()
	if m != nil && pos >= 0 {
		// A bounded region keeps the copy inside the requested range; a
		// range past the mapping (a chunk appended since the last remap)
		// falls through to pread.
		if r, err := m.Region(int(pos), length); err == nil {
			if data := r.Bytes(); data != nil {
				copy(b, data)
				return b, nil
			}
		}
	}
	if _, err := s.file.ReadAt(b, pos); err != nil {
		return nil, fmt.Errorf("read %d bytes at %d: %w", length, pos, err)
	}
	return b, nil
}

// WriteAt writes b at the absolute file offset pos, extending the file.
func (s *FileStore) WriteAt(b []byte, pos int64) error {
	if s.readOnly {
		return ErrReadOnly
	}
	type writerAt interface {
		WriteAt(p []byte, off int64) (int, error)
	}
	var err error
	if w, ok := s.file.(writerAt); ok {
		_, err = w.WriteAt(b, pos)
	} else {
		// Commit is serialized, so seek-and-write is safe for writers that
		// lack pwrite (e.g. fault-injecting test filesystems).
		if _, err = s.file.Seek(pos, 0); err == nil {
			_, err = s.file.Write(b)
		}
	}
	if err != nil {
		return fmt.Errorf("write %d bytes at %d: %w", len(b), pos, err)
	}
	s.mu.Lock()
	if end := pos + int64(len(b)); end > s.size {
		s.size = end
	}
	s.mu.Unlock()
	return nil
}

// Sync flushes the file and refreshes the read-only mapping so subsequent
// reads see the appended chunk through the fast path.
func (s *FileStore) Sync() error {
	if err := s.file.Sync(); err != nil {
		return err
	}
	if s.useMMap {
		s.remap()
	}
	return nil
}

func (s *FileStore) remap() {
	m, err := mmap.Open(s.path)
	if err != nil {
		return
	}
	_ = m.Advise(mmap.AccessRandom)
	s.mu.Lock()
	old := s.mapping
	s.mapping = m
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

// Close releases the mapping and the file handle.
func (s *FileStore) Close() error {
	s.mu.Lock()
	m := s.mapping
	s.mapping = nil
	s.mu.Unlock()
	if m != nil {
		_ = m.Close()
	}
	return s.file.Close()
}
