// Package handlers implements the request/response state machine for the
// non-gossip message types: ANNOUNCE, GET_FILE, FILE_DATA, DELETE. Dispatch
// is a type switch over the decoded wire.Message, grounded on the
// teacher's HandleGossipMessage switch (internal/gossip/communication.go)
// and the original Python's handle_message dispatch-by-type stub.
package handlers

import (
	"encoding/hex"
	"log/slog"
	"net"
	"os"

	"gossipfs/internal/blobstore"
	"gossipfs/internal/metadata"
	"gossipfs/internal/peer"
	"gossipfs/internal/peertable"
	"gossipfs/internal/transport"
	"gossipfs/internal/wire"
)

// Deps bundles the collaborators a handler needs, avoiding a dependency on
// the full node.Node aggregate so this package never imports node (which
// imports handlers), keeping the dependency graph acyclic.
type Deps struct {
	Self  peer.ID
	Meta  *metadata.Store
	Blobs *blobstore.Store
	Peers *peertable.Table
	Log   *slog.Logger
}

// Dispatch routes msg to the handler for its type. conn is the accepted
// connection the message arrived on; it is used only by GET_FILE, which
// replies on the same connection per spec.md §4.4's request/response
// exception to the fire-and-forget rule.
func Dispatch(msg wire.Message, conn net.Conn, d Deps) {
	switch msg.Type {
	case wire.TypeAnnounce:
		handleAnnounce(msg.Announce, d)
	case wire.TypeGetFile:
		handleGetFile(msg.GetFile, conn, d)
	case wire.TypeFileData:
		handleFileData(msg.FileData, d)
	case wire.TypeDelete:
		handleDelete(msg.Delete, d)
	default:
		d.Log.Debug("unhandled message type in request handler dispatch", "type", msg.Type)
	}
}

// handleAnnounce merges the announced record and records the announcer as
// a replica holder, per spec.md §4.6.
func handleAnnounce(a *wire.Announce, d Deps) {
	rec := a.ToRecord()
	if _, err := d.Meta.Upsert(rec); err != nil {
		d.Log.Warn("failed to upsert announced record", "content_id", rec.ContentID, "err", err)
		return
	}
	if err := d.Meta.AddReplica(rec.ContentID, a.From); err != nil {
		d.Log.Warn("failed to add replica from announce", "content_id", rec.ContentID, "err", err)
	}
}

// handleGetFile replies on conn with the requested blob, or an explicit
// not-available FILE_DATA if this node no longer holds it.
func handleGetFile(req *wire.GetFile, conn net.Conn, d Deps) {
	rec := d.Meta.Get(req.FileID)
	if rec == nil || !d.Blobs.Exists(req.FileID) {
		wire.Encode(conn, wire.NotAvailable())
		return
	}

	data, err := d.Blobs.Get(req.FileID)
	if err != nil {
		d.Log.Warn("failed to read blob for GET_FILE", "content_id", req.FileID, "err", err)
		wire.Encode(conn, wire.NotAvailable())
		return
	}

	wire.Encode(conn, wire.NewFileData(rec, hex.EncodeToString(data)))
}

// handleFileData applies an inbound FILE_DATA, whether it answered this
// node's own GET_FILE or arrived as an unsolicited push, then re-announces
// the newly-held file to every tracked peer so a fresh downloader becomes
// discoverable.
func handleFileData(f *wire.FileData, d Deps) {
	if !f.Available() {
		return
	}

	data, err := hex.DecodeString(*f.Data)
	if err != nil {
		d.Log.Warn("failed to hex-decode FILE_DATA payload", "err", err)
		return
	}

	rec := f.ToRecord()
	if err := d.Blobs.Put(rec.ContentID, data); err != nil {
		d.Log.Warn("failed to write blob", "content_id", rec.ContentID, "err", err)
		return
	}
	if _, err := d.Meta.Upsert(rec); err != nil {
		d.Log.Warn("failed to upsert record from FILE_DATA", "content_id", rec.ContentID, "err", err)
		return
	}
	d.Meta.AddReplica(rec.ContentID, rec.FileOwner)
	d.Meta.AddReplica(rec.ContentID, d.Self)

	announce := wire.Announce{
		Type:          wire.TypeAnnounce,
		From:          d.Self,
		FileName:      rec.FileName,
		FileSize:      rec.FileSize,
		FileID:        rec.ContentID,
		FileOwner:     rec.FileOwner,
		FileTimestamp: rec.FileTimestamp,
	}
	for _, p := range d.Peers.Snapshot() {
		if err := sendFrame(p.Endpoint().Address(), announce); err != nil {
			d.Log.Debug("re-announce failed, evicting peer", "peer", p.PeerID, "err", err)
			d.Peers.Remove(p.PeerID)
		}
	}
}

// handleDelete honors a DELETE only if it came from the record's owner;
// otherwise it is logged and ignored. Honored deletes are not forwarded by
// the receiver, per spec.md §4.6.
func handleDelete(msg *wire.Delete, d Deps) {
	rec := d.Meta.Get(msg.FileID)
	if rec == nil {
		return
	}
	if rec.FileOwner != msg.From {
		d.Log.Info("ignoring DELETE from non-owner", "content_id", msg.FileID, "from", msg.From, "owner", rec.FileOwner)
		return
	}

	if err := d.Blobs.Delete(msg.FileID); err != nil && !os.IsNotExist(err) {
		d.Log.Warn("failed to unlink blob on DELETE", "content_id", msg.FileID, "err", err)
	}
	if err := d.Meta.Drop(msg.FileID); err != nil {
		d.Log.Warn("failed to drop record on DELETE", "content_id", msg.FileID, "err", err)
	}
}

// sendFrame opens a short-lived connection and writes one JSON frame.
// Callers evict the target peer from the Peer Table on failure per
// spec.md §4.4's fast-eviction policy.
func sendFrame(addr string, v interface{}) error {
	conn, err := transport.Dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return wire.Encode(conn, v)
}
