package metadata

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gossipfs/internal/peer"
)

// Store is the persistent mapping from content-id to FileRecord. The whole
// document is loaded on construction and rewritten after every mutation,
// guarded end to end by a single mutex so that a read-modify-write such as
// upsert-then-add-replica never interleaves with another mutation.
type Store struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger

	records map[ContentID]*Record
}

// Open loads the metadata document at path, creating an empty one if it
// does not yet exist, mirroring the source's load_metadata behavior.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{path: path, log: log, records: make(map[ContentID]*Record)}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		s.log.Debug("metadata file does not exist, creating", "path", path)
		if err := s.writeLocked(); err != nil {
			return nil, fmt.Errorf("create metadata file: %w", err)
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read metadata file: %w", err)
	}

	if len(data) == 0 {
		return s, nil
	}

	var raw map[ContentID]*Record
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse metadata file: %w", err)
	}
	s.records = raw
	return s, nil
}

// writeLocked rewrites the full document to disk. Caller must hold mu. The
// write goes to a temp file in the same directory followed by an atomic
// rename, so a crash mid-write never leaves metadata.json truncated.
func (s *Store) writeLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".metadata-*.tmp")
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
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Get returns a copy of the record for cid, or nil if unknown.
func (s *Store) Get(cid ContentID) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[cid].Clone()
}

// Upsert applies the last-writer-wins merge rule for rec and returns true
// iff the record was newly inserted or its scalar fields were replaced by
// a newer version (i.e. the caller's write "took").
func (s *Store) Upsert(rec *Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.ContentID]
	updated := false

	switch {
	case !ok:
		cp := rec.Clone()
		if cp.Replicas == nil {
			cp.Replicas = make(map[peer.ID]bool)
		}
		s.records[rec.ContentID] = cp
		updated = true
	case existing.FileTimestamp < rec.FileTimestamp:
		merged := rec.Clone()
		merged.Replicas = existing.Replicas
		if merged.Replicas == nil {
			merged.Replicas = make(map[peer.ID]bool)
		}
		for p := range rec.Replicas {
			merged.Replicas[p] = true
		}
		s.records[rec.ContentID] = merged
		updated = true
	default:
		if existing.Replicas == nil {
			existing.Replicas = make(map[peer.ID]bool)
		}
		for p := range rec.Replicas {
			existing.Replicas[p] = true
		}
	}

	if err := s.writeLocked(); err != nil {
		return updated, err
	}
	return updated, nil
}

// AddReplica records p as holding cid's bytes. No-op if cid is unknown.
func (s *Store) AddReplica(cid ContentID, p peer.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[cid]
	if !ok {
		return nil
	}
	if rec.Replicas == nil {
		rec.Replicas = make(map[peer.ID]bool)
	}
	if rec.Replicas[p] {
		return nil
	}
	rec.Replicas[p] = true
	return s.writeLocked()
}

// RemovePeer strips p from every record's replica set, used when the peer
// table reaps p for inactivity.
func (s *Store) RemovePeer(p peer.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, rec := range s.records {
		if rec.Replicas[p] {
			delete(rec.Replicas, p)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.writeLocked()
}

// Drop removes cid's record entirely, used by an honored DELETE.
func (s *Store) Drop(cid ContentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[cid]; !ok {
		return nil
	}
	delete(s.records, cid)
	return s.writeLocked()
}

// All returns a copy of every known record, owner-unfiltered.
func (s *Store) All() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentID < out[j].ContentID })
	return out
}

// ListLocal returns records whose blob exists in blobDir.
func (s *Store) ListLocal(exists func(ContentID) bool) []*Record {
	out := make([]*Record, 0)
	for _, rec := range s.All() {
		if exists(rec.ContentID) {
			out = append(out, rec)
		}
	}
	return out
}

// ListRemote returns records whose blob does not exist in blobDir.
func (s *Store) ListRemote(exists func(ContentID) bool) []*Record {
	out := make([]*Record, 0)
	for _, rec := range s.All() {
		if !exists(rec.ContentID) {
			out = append(out, rec)
		}
	}
	return out
}

// CollapseToSelf rewrites the store so it retains only records whose blob
// is locally present, resetting each surviving record's replica set to
// {self}, per the clean-exit procedure in spec.md §4.7. The on-disk
// snapshot is not authoritative across restarts (DESIGN.md), so stale
// replica entries are discarded rather than carried forward.
func (s *Store) CollapseToSelf(self peer.ID, exists func(ContentID) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for cid, rec := range s.records {
		if !exists(cid) {
			delete(s.records, cid)
			continue
		}
		rec.Replicas = map[peer.ID]bool{self: true}
	}
	return s.writeLocked()
}
