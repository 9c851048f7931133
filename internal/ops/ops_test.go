package ops

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gossipfs/internal/blobstore"
	"gossipfs/internal/handlers"
	"gossipfs/internal/metadata"
	"gossipfs/internal/peer"
	"gossipfs/internal/peertable"
	"gossipfs/internal/transport"
	"gossipfs/internal/wire"
)

type testPeer struct {
	deps Deps
	ln   *transport.Listener
}

func newTestPeer(t *testing.T, self peer.ID) *testPeer {
	t.Helper()
	dir := t.TempDir()
	meta, err := metadata.Open(filepath.Join(dir, "metadata.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	blobs, err := blobstore.Open(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatal(err)
	}
	ln, err := transport.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := Deps{Self: self, Meta: meta, Blobs: blobs, Peers: peertable.New(time.Minute), Log: log}

	tp := &testPeer{deps: d, ln: ln}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() { cancel(); ln.Close() })

	hdeps := handlers.Deps{Self: self, Meta: meta, Blobs: blobs, Peers: d.Peers, Log: log}
	go ln.Serve(ctx, func(conn net.Conn) {
		defer conn.Close()
		msg, err := wire.Decode(conn)
		if err != nil {
			return
		}
		handlers.Dispatch(msg, conn, hdeps)
	})

	return tp
}

func (tp *testPeer) port(t *testing.T) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(tp.ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, c := range portStr {
		n = n*10 + int(c-'0')
	}
	return n
}

func TestPushDeliversFileToTrackedPeer(t *testing.T) {
	a := newTestPeer(t, "A")
	b := newTestPeer(t, "B")

	a.deps.Peers.Touch("B", "127.0.0.1", b.port(t))

	path := filepath.Join(t.TempDir(), "hello.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, err := Push(a.deps, path)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	// Give B's handler goroutine time to process the unsolicited push and
	// the subsequent announce.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.deps.Meta.Get(rec.ContentID) != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	got := b.deps.Meta.Get(rec.ContentID)
	if got == nil {
		t.Fatal("B never learned about the pushed file")
	}
	if !got.Replicas["A"] {
		t.Fatalf("expected A recorded as a replica on B: %+v", got.Replicas)
	}
	if !b.deps.Blobs.Exists(rec.ContentID) {
		t.Fatal("B should hold the pushed bytes")
	}
}

// TestFetchReannouncesToTrackedPeers covers spec.md §4.6's requirement that
// any FILE_DATA this node applies — including the answer to its own
// GET_FILE — is re-announced to every tracked peer, so a fresh downloader
// becomes discoverable rather than only being reachable through the
// original owner.
func TestFetchReannouncesToTrackedPeers(t *testing.T) {
	owner := newTestPeer(t, "owner")
	fetcher := newTestPeer(t, "fetcher")
	third := newTestPeer(t, "third")

	owner.deps.Meta.Upsert(&metadata.Record{
		ContentID: "cid1", FileOwner: "owner", FileTimestamp: 1,
		FileName: "f", FileSize: 1, Replicas: map[peer.ID]bool{"owner": true},
	})
	owner.deps.Blobs.Put("cid1", []byte("x"))

	fetcher.deps.Meta.Upsert(&metadata.Record{
		ContentID: "cid1", FileOwner: "owner", FileTimestamp: 1,
		FileName: "f", FileSize: 1, Replicas: map[peer.ID]bool{"owner": true},
	})
	fetcher.deps.Peers.Touch("owner", "127.0.0.1", owner.port(t))
	fetcher.deps.Peers.Touch("third", "127.0.0.1", third.port(t))

	if err := Fetch(fetcher.deps, "cid1"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !fetcher.deps.Blobs.Exists("cid1") {
		t.Fatal("fetcher should hold the fetched bytes")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if third.deps.Meta.Get("cid1") != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	got := third.deps.Meta.Get("cid1")
	if got == nil {
		t.Fatal("third peer should have learned about cid1 via re-announce after fetch")
	}
	if !got.Replicas["fetcher"] {
		t.Fatalf("expected fetcher recorded as a replica on third: %+v", got.Replicas)
	}
}

func TestFetchNoSourceFails(t *testing.T) {
	a := newTestPeer(t, "A")
	a.deps.Meta.Upsert(&metadata.Record{ContentID: "cid1", FileOwner: "B", FileTimestamp: 1, Replicas: map[peer.ID]bool{"B": true}})

	err := Fetch(a.deps, "cid1")
	if err != ErrNoSource {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
}

func TestFetchNoOpWhenAlreadyLocal(t *testing.T) {
	a := newTestPeer(t, "A")
	a.deps.Blobs.Put("cid1", []byte("x"))

	if err := Fetch(a.deps, "cid1"); err != nil {
		t.Fatalf("expected no-op success, got %v", err)
	}
}

func TestDeleteRefusesNonOwner(t *testing.T) {
	a := newTestPeer(t, "A")
	a.deps.Meta.Upsert(&metadata.Record{ContentID: "cid1", FileOwner: "B", FileTimestamp: 1})

	if err := Delete(a.deps, "cid1"); err == nil {
		t.Fatal("expected an error deleting a record owned by another peer")
	}
}

func TestDeleteOwnedRecordRemovesBlobAndFansOut(t *testing.T) {
	a := newTestPeer(t, "A")
	b := newTestPeer(t, "B")
	a.deps.Peers.Touch("B", "127.0.0.1", b.port(t))

	a.deps.Meta.Upsert(&metadata.Record{ContentID: "cid1", FileOwner: "A", FileTimestamp: 1})
	a.deps.Blobs.Put("cid1", []byte("x"))
	b.deps.Meta.Upsert(&metadata.Record{ContentID: "cid1", FileOwner: "A", FileTimestamp: 1})
	b.deps.Blobs.Put("cid1", []byte("x"))

	if err := Delete(a.deps, "cid1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if a.deps.Meta.Get("cid1") != nil {
		t.Fatal("owner's own record should be gone")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.deps.Meta.Get("cid1") == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if b.deps.Meta.Get("cid1") != nil {
		t.Fatal("B should have honored the owner's DELETE")
	}
}

func TestCleanExitCollapsesToSelf(t *testing.T) {
	a := newTestPeer(t, "A")
	a.deps.Meta.Upsert(&metadata.Record{ContentID: "local", FileOwner: "A", FileTimestamp: 1, Replicas: map[peer.ID]bool{"A": true, "B": true}})
	a.deps.Meta.Upsert(&metadata.Record{ContentID: "remote", FileOwner: "B", FileTimestamp: 1, Replicas: map[peer.ID]bool{"B": true}})
	a.deps.Blobs.Put("local", []byte("x"))

	if err := CleanExit(a.deps); err != nil {
		t.Fatalf("CleanExit: %v", err)
	}
	if a.deps.Meta.Get("remote") != nil {
		t.Fatal("non-local record should be dropped on clean exit")
	}
	got := a.deps.Meta.Get("local")
	if got == nil || len(got.Replicas) != 1 || !got.Replicas["A"] {
		t.Fatalf("local record replicas should collapse to {self}: %+v", got)
	}
}
