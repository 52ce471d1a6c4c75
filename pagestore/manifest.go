package pagestore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/pagedb/codec"
)

// The manifest is a small sidecar file naming every sealed chunk and every
// map root. It is the commit point of the store: a chunk only becomes
// reachable once a manifest referencing it has been renamed into place, so
// a torn final chunk is simply never referenced after reopen.
//
// Format: one header line "pagedb <codec-name>\n" followed by the encoded
// manifestRoot. The header makes the file self-describing, so it can be
// opened with a different configured codec.

const manifestHeaderPrefix = "pagedb "

func (s *Store) writeManifestLocked() error {
	root := manifestRoot{
		Version:     s.version.Load(),
		LastChunkID: s.lastChunkID,
		LastMapID:   s.lastMapID,
	}
	s.accountMu.Lock()
	for _, c := range s.chunks {
		root.Chunks = append(root.Chunks, manifestChunk{
			ID:            c.ID,
			Start:         c.Start,
			Len:           c.Len,
			Version:       c.Version,
			MaxLen:        c.MaxLen,
			MaxLenLive:    c.MaxLenLive,
			PageCount:     c.PageCount,
			PageCountLive: c.PageCountLive,
		})
	}
	s.accountMu.Unlock()
	for name, m := range s.maps {
		root.Maps = append(root.Maps, manifestMap{Name: name, ID: m.id, Root: m.root.Load().Pos()})
	}
	// Carry forward entries for maps persisted earlier but not opened in
	// this session.
	for name, meta := range s.mapMeta {
		if _, open := s.maps[name]; !open {
			root.Maps = append(root.Maps, meta)
		}
	}

	payload, err := s.codec.Marshal(root)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s%s\n", manifestHeaderPrefix, s.codec.Name())
	buf.Write(payload)

	// Write-then-rename keeps the previous manifest authoritative until the
	// new one is durable.
	path := s.ManifestPath()
	tmp := path + ".tmp"
	f, err := s.fsys.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		_ = s.fsys.Remove(tmp)
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = s.fsys.Remove(tmp)
		return fmt.Errorf("sync manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fsys.Remove(tmp)
		return err
	}
	return s.fsys.Rename(tmp, path)
}

func (s *Store) readManifest() error {
	f, err := s.fsys.OpenFile(s.ManifestPath(), os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // fresh store
		}
		return fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 || !bytes.HasPrefix(data, []byte(manifestHeaderPrefix)) {
		return fmt.Errorf("%w: malformed manifest header", ErrFileCorrupt)
	}
	codecName := string(data[len(manifestHeaderPrefix):nl])
	c, ok := codec.ByName(codecName)
	if !ok {
		return fmt.Errorf("%w: unknown manifest codec %q", ErrFileCorrupt, codecName)
	}
	var root manifestRoot
	if err := c.Unmarshal(data[nl+1:], &root); err != nil {
		return fmt.Errorf("%w: decode manifest: %v", ErrFileCorrupt, err)
	}

	s.version.Store(root.Version)
	s.lastChunkID = root.LastChunkID
	s.lastMapID = root.LastMapID
	for _, mc := range root.Chunks {
		s.chunks[mc.ID] = &Chunk{
			ID:            mc.ID,
			Start:         mc.Start,
			Len:           mc.Len,
			Version:       mc.Version,
			MaxLen:        mc.MaxLen,
			MaxLenLive:    mc.MaxLenLive,
			PageCount:     mc.PageCount,
			PageCountLive: mc.PageCountLive,
		}
	}
	for _, mm := range root.Maps {
		s.mapMeta[mm.Name] = mm
	}
	return nil
}
