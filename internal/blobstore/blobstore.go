// Package blobstore manages the on-disk directory of raw file bytes this
// node currently holds, keyed by content-id. It knows nothing about file
// names, owners, or replicas — that bookkeeping lives in metadata.Store.
package blobstore

import (
	"fmt"
	"os"
	"path/filepath"

	"gossipfs/internal/metadata"
)

// Store is a directory of blobs named by content-id.
type Store struct {
	dir string
}

// Open ensures dir exists and returns a Store rooted there.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(cid metadata.ContentID) string {
	return filepath.Join(s.dir, string(cid))
}

// Put writes data under cid, replacing it if already present. The write
// goes to a temp file followed by an atomic rename, matching the store's
// atomic-document-write discipline so a crash mid-transfer never leaves a
// truncated blob that Exists would wrongly report as present.
func (s *Store) Put(cid metadata.ContentID, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".blob-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.pathFor(cid)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Get reads the bytes stored under cid.
func (s *Store) Get(cid metadata.ContentID) ([]byte, error) {
	return os.ReadFile(s.pathFor(cid))
}

// Exists reports whether cid's blob is present on disk. The Metadata Store
// calls this rather than caching a local/remote flag of its own, so the two
// stores can never disagree about what bytes are actually on disk.
func (s *Store) Exists(cid metadata.ContentID) bool {
	_, err := os.Stat(s.pathFor(cid))
	return err == nil
}

// Delete removes cid's blob. A missing blob is not an error.
func (s *Store) Delete(cid metadata.ContentID) error {
	err := os.Remove(s.pathFor(cid))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
