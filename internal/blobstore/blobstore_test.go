package blobstore

import (
	"bytes"
	"path/filepath"
	"testing"

	"gossipfs/internal/metadata"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	cid := metadata.ContentID("abc123")
	want := []byte("hello world")
	if err := s.Put(cid, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(cid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExistsReflectsDisk(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cid := metadata.ContentID("abc123")
	if s.Exists(cid) {
		t.Fatal("blob should not exist before Put")
	}
	s.Put(cid, []byte("x"))
	if !s.Exists(cid) {
		t.Fatal("blob should exist after Put")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cid := metadata.ContentID("abc123")
	s.Put(cid, []byte("x"))
	if err := s.Delete(cid); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Exists(cid) {
		t.Fatal("blob should be gone after Delete")
	}
	if err := s.Delete(cid); err != nil {
		t.Fatalf("deleting an already-gone blob should not error: %v", err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "blobs", "nested")

	if _, err := Open(nested); err != nil {
		t.Fatalf("Open should create missing directories: %v", err)
	}
}
