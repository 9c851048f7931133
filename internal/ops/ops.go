// Package ops implements the locally-initiated actions a node performs on
// its own behalf: publishing a file, fetching one from a peer, deleting an
// owned file, replicating a handful of files on join, and the clean-exit
// procedure run when the shell's "exit" command runs. Grounded on the
// teacher's Replicator.WriteWithReplication (local write, then fan out,
// tolerating partial per-target failure), generalized from hash-ring
// targeted replication to the spec's random-pick-one-then-announce-to-all
// flow since this overlay carries no consistent hash ring.
//
// applyFileData mirrors handlers.handleFileData's re-announce step: any
// FILE_DATA this node applies, whether it answered its own GET_FILE or
// arrived as an unsolicited push, must re-announce the newly-held record to
// every tracked peer so a fresh downloader becomes discoverable.
package ops

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"gossipfs/internal/blobstore"
	"gossipfs/internal/metadata"
	"gossipfs/internal/peer"
	"gossipfs/internal/peertable"
	"gossipfs/internal/transport"
	"gossipfs/internal/wire"
)

// Deps bundles the collaborators an operation needs.
type Deps struct {
	Self  peer.ID
	Meta  *metadata.Store
	Blobs *blobstore.Store
	Peers *peertable.Table
	Log   *slog.Logger

	// Now is injectable for deterministic tests; when nil, time.Now is
	// used.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Push publishes the file at path: computes its content-id, stores the
// blob, upserts the record with self as owner and sole replica, pushes the
// bytes unsolicited to one random peer, then announces to every peer.
func Push(d Deps, path string) (*metadata.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ops: read %s: %w", path, err)
	}

	ts := d.now().Unix()
	cid := metadata.ComputeContentID(data, ts)

	if err := d.Blobs.Put(cid, data); err != nil {
		return nil, fmt.Errorf("ops: store blob: %w", err)
	}

	rec := &metadata.Record{
		ContentID:     cid,
		FileName:      filepath.Base(path),
		FileSize:      int64(len(data)),
		FileOwner:     d.Self,
		FileTimestamp: ts,
		Replicas:      map[peer.ID]bool{d.Self: true},
	}
	if _, err := d.Meta.Upsert(rec); err != nil {
		return nil, fmt.Errorf("ops: upsert record: %w", err)
	}

	allPeers := d.Peers.Snapshot()
	if len(allPeers) > 0 {
		target := allPeers[randomIndex(len(allPeers))]
		fd := wire.NewFileData(rec, hex.EncodeToString(data))
		if err := sendFrame(target.Endpoint().Address(), fd); err != nil {
			d.Log.Debug("push: unsolicited file push failed, evicting peer", "peer", target.PeerID, "err", err)
			d.Peers.Remove(target.PeerID)
		}
	}

	announce := wire.Announce{
		Type: wire.TypeAnnounce, From: d.Self, FileName: rec.FileName,
		FileSize: rec.FileSize, FileID: rec.ContentID, FileOwner: rec.FileOwner,
		FileTimestamp: rec.FileTimestamp,
	}
	for _, p := range d.Peers.Snapshot() {
		if err := sendFrame(p.Endpoint().Address(), announce); err != nil {
			d.Log.Debug("push: announce failed, evicting peer", "peer", p.PeerID, "err", err)
			d.Peers.Remove(p.PeerID)
		}
	}

	return rec, nil
}

// ErrNoSource is returned by Fetch when no live replica is known.
var ErrNoSource = fmt.Errorf("ops: no live source holds this file")

// Fetch retrieves cid from a random live replica if not already held
// locally. A no-op if the blob is already present.
func Fetch(d Deps, cid metadata.ContentID) error {
	if d.Blobs.Exists(cid) {
		return nil
	}

	rec := d.Meta.Get(cid)
	if rec == nil {
		return fmt.Errorf("ops: unknown content id %s", cid)
	}

	var live []peer.Record
	for p := range rec.Replicas {
		if pr := d.Peers.Get(p); pr != nil {
			live = append(live, *pr)
		}
	}
	if len(live) == 0 {
		return ErrNoSource
	}
	source := live[randomIndex(len(live))]

	conn, err := transport.Dial(source.Endpoint().Address())
	if err != nil {
		d.Peers.Remove(source.PeerID)
		return fmt.Errorf("ops: dial %s: %w", source.PeerID, err)
	}
	defer conn.Close()

	if err := wire.Encode(conn, wire.GetFile{Type: wire.TypeGetFile, FileID: cid}); err != nil {
		return fmt.Errorf("ops: send GET_FILE: %w", err)
	}

	conn.SetReadDeadline(d.now().Add(transport.FetchResponseTimeout))
	msg, err := wire.Decode(conn)
	if err != nil {
		return fmt.Errorf("ops: read FILE_DATA: %w", err)
	}
	if msg.Type != wire.TypeFileData || !msg.FileData.Available() {
		return fmt.Errorf("ops: %s no longer has %s", source.PeerID, cid)
	}

	return applyFileData(d, msg.FileData)
}

func applyFileData(d Deps, f *wire.FileData) error {
	data, err := hex.DecodeString(*f.Data)
	if err != nil {
		return fmt.Errorf("ops: decode payload: %w", err)
	}
	rec := f.ToRecord()
	if err := d.Blobs.Put(rec.ContentID, data); err != nil {
		return fmt.Errorf("ops: write blob: %w", err)
	}
	if _, err := d.Meta.Upsert(rec); err != nil {
		return fmt.Errorf("ops: upsert record: %w", err)
	}
	d.Meta.AddReplica(rec.ContentID, rec.FileOwner)
	d.Meta.AddReplica(rec.ContentID, d.Self)

	announce := wire.Announce{
		Type: wire.TypeAnnounce, From: d.Self, FileName: rec.FileName,
		FileSize: rec.FileSize, FileID: rec.ContentID, FileOwner: rec.FileOwner,
		FileTimestamp: rec.FileTimestamp,
	}
	for _, p := range d.Peers.Snapshot() {
		if err := sendFrame(p.Endpoint().Address(), announce); err != nil {
			d.Log.Debug("fetch: re-announce failed, evicting peer", "peer", p.PeerID, "err", err)
			d.Peers.Remove(p.PeerID)
		}
	}

	return nil
}

// Delete performs an owner-initiated delete: verifies ownership, unlinks
// the blob, drops the record, and sends DELETE to every tracked peer.
func Delete(d Deps, cid metadata.ContentID) error {
	rec := d.Meta.Get(cid)
	if rec == nil {
		return fmt.Errorf("ops: unknown content id %s", cid)
	}
	if rec.FileOwner != d.Self {
		return fmt.Errorf("ops: refusing to delete %s: not the owner", cid)
	}

	if err := d.Blobs.Delete(cid); err != nil {
		return fmt.Errorf("ops: unlink blob: %w", err)
	}
	if err := d.Meta.Drop(cid); err != nil {
		return fmt.Errorf("ops: drop record: %w", err)
	}

	del := wire.Delete{Type: wire.TypeDelete, From: d.Self, FileID: cid}
	for _, p := range d.Peers.Snapshot() {
		if err := sendFrame(p.Endpoint().Address(), del); err != nil {
			d.Log.Debug("delete: fan-out failed, evicting peer", "peer", p.PeerID, "err", err)
			d.Peers.Remove(p.PeerID)
		}
	}
	return nil
}

// ReplicateOnJoin waits up to 10s for gossip replies to populate the
// Metadata Store, then fetches up to numFiles records this node does not
// yet hold locally but whose replicas are non-empty, per spec.md §4.7.
func ReplicateOnJoin(d Deps, numFiles int, deadline time.Duration) {
	cutoff := d.now().Add(deadline)
	for d.now().Before(cutoff) {
		if hasEligibleRecords(d) {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	candidates := eligibleRecords(d)
	shuffleRecords(candidates)
	if len(candidates) > numFiles {
		candidates = candidates[:numFiles]
	}
	for _, rec := range candidates {
		if err := Fetch(d, rec.ContentID); err != nil {
			d.Log.Warn("join-time replication fetch failed", "content_id", rec.ContentID, "err", err)
		}
	}
}

func hasEligibleRecords(d Deps) bool {
	return len(eligibleRecords(d)) > 0
}

func eligibleRecords(d Deps) []*metadata.Record {
	var out []*metadata.Record
	for _, rec := range d.Meta.All() {
		if d.Blobs.Exists(rec.ContentID) {
			continue
		}
		if len(rec.Replicas) == 0 {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// CleanExit rewrites the Metadata Store, keeping only records whose blob is
// locally present and collapsing their replica sets to {self}.
func CleanExit(d Deps) error {
	return d.Meta.CollapseToSelf(d.Self, d.Blobs.Exists)
}

func sendFrame(addr string, v interface{}) error {
	conn, err := transport.Dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return wire.Encode(conn, v)
}

// shuffleRecords randomizes order in place so join-time replication samples
// uniformly rather than always preferring the lowest content-ids.
func shuffleRecords(recs []*metadata.Record) {
	for i := len(recs) - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		recs[i], recs[j] = recs[j], recs[i]
	}
}

func randomIndex(n int) int {
	if n <= 1 {
		return 0
	}
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(i.Int64())
}
