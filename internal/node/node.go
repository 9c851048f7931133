// Package node wires every other package into the single "Node" aggregate
// that spec.md's design notes call for: a value constructed once at
// startup and threaded explicitly into the gossip engine, request
// handlers, operations, HTTP API and shell, replacing the module-level
// mutable globals (tracked_peers, seen_gossip_ids) of the source this
// specification distills and the package-level gin defaults the teacher
// leans on for everything.
package node

import (
	"context"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"gossipfs/internal/blobstore"
	"gossipfs/internal/config"
	"gossipfs/internal/gossip"
	"gossipfs/internal/handlers"
	"gossipfs/internal/metadata"
	"gossipfs/internal/ops"
	"gossipfs/internal/peer"
	"gossipfs/internal/peertable"
	"gossipfs/internal/transport"
	"gossipfs/internal/wire"
)

// blobDirName mirrors the source's blob directory name, kept as a
// subdirectory of Config.BasePath.
const blobDirName = "FileUploads"

const metadataFileName = "metadata.json"

// Node is the aggregate of every shared piece of state a running peer
// needs: its identity, the two guarded stores, and the gossip engine.
type Node struct {
	Self     peer.ID
	Endpoint peer.Endpoint
	Config   *config.Config
	Log      *slog.Logger

	Peers    *peertable.Table
	Metadata *metadata.Store
	Blobs    *blobstore.Store
	Gossip   *gossip.Engine

	listener *transport.Listener
}

// New constructs the Node aggregate: opens the metadata store and blob
// directory under cfg.BasePath, builds the peer table and gossip engine,
// but does not yet bind the P2P listener (see Listen) or start any
// background task (see Run).
func New(cfg *config.Config) (*Node, error) {
	log := cfg.NewLogger()

	meta, err := metadata.Open(filepath.Join(cfg.BasePath, metadataFileName), log)
	if err != nil {
		return nil, err
	}
	blobs, err := blobstore.Open(filepath.Join(cfg.BasePath, blobDirName))
	if err != nil {
		return nil, err
	}

	self := peer.ID(cfg.PeerID)
	peers := peertable.New(cfg.PeerTimeout)

	n := &Node{
		Self:     self,
		Endpoint: peer.Endpoint{Host: cfg.Host, Port: cfg.P2PPort},
		Config:   cfg,
		Log:      log,
		Peers:    peers,
		Metadata: meta,
		Blobs:    blobs,
	}
	// The engine holds a pointer into n.Endpoint so that Listen's ephemeral
	// port fixup (P2PPort: 0) is visible to bootstrap/periodic gossip
	// without reconstructing the engine.
	n.Gossip = gossip.NewEngine(self, &n.Endpoint, peers, meta, blobs, cfg, log)

	return n, nil
}

// Listen binds the P2P listener. Startup failures here are fatal per
// spec.md §7E, so callers are expected to exit the process on error.
// When Config.P2PPort is 0, the operating system picks an ephemeral port;
// Endpoint.Port is updated to the actual bound port so gossip messages
// advertise a reachable address.
func (n *Node) Listen() error {
	ln, err := transport.Listen(n.Endpoint.Address())
	if err != nil {
		return err
	}
	n.listener = ln
	if _, portStr, err := net.SplitHostPort(ln.Addr().String()); err == nil {
		if port, err := strconv.Atoi(portStr); err == nil {
			n.Endpoint.Port = port
		}
	}
	return nil
}

// opsDeps returns an ops.Deps bound to this node's collaborators, used by
// the shell and by join-time replication.
func (n *Node) opsDeps() ops.Deps {
	return ops.Deps{Self: n.Self, Meta: n.Metadata, Blobs: n.Blobs, Peers: n.Peers, Log: n.Log}
}

func (n *Node) handlerDeps() handlers.Deps {
	return handlers.Deps{Self: n.Self, Meta: n.Metadata, Blobs: n.Blobs, Peers: n.Peers, Log: n.Log}
}

// Push publishes a local file, per spec.md §4.7.
func (n *Node) Push(path string) (*metadata.Record, error) { return ops.Push(n.opsDeps(), path) }

// Fetch retrieves cid from a live replica, per spec.md §4.7.
func (n *Node) Fetch(cid metadata.ContentID) error { return ops.Fetch(n.opsDeps(), cid) }

// Delete performs an owner-initiated delete, per spec.md §4.7.
func (n *Node) Delete(cid metadata.ContentID) error { return ops.Delete(n.opsDeps(), cid) }

// CleanExit collapses the Metadata Store to locally-held records before
// the process exits.
func (n *Node) CleanExit() error { return ops.CleanExit(n.opsDeps()) }

// Run starts the accept loop and every periodic background task, blocking
// until ctx is canceled.
func (n *Node) Run(ctx context.Context) {
	go n.listener.Serve(ctx, n.handleConn)

	n.Gossip.BootstrapOnce(ctx)
	go n.Gossip.RunPeriodic(ctx)
	go n.runReaper(ctx)
	go ops.ReplicateOnJoin(n.opsDeps(), n.Config.NumFilesOnJoin, 10*time.Second)

	<-ctx.Done()
}

// handleConn decodes exactly one message from an accepted connection and
// routes it either to the gossip engine (GOSSIP/GOSSIP_REPLY) or to the
// request handler dispatch (ANNOUNCE/GET_FILE/FILE_DATA/DELETE). A panic
// here is recovered so one malformed connection cannot take down the
// accept loop or any other in-flight handler, mirroring the source's
// try/except-at-the-handler-boundary shape in handle_client.
func (n *Node) handleConn(conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			n.Log.Error("recovered from panic in connection handler", "panic", r)
		}
	}()

	msg, err := wire.Decode(conn)
	if err != nil {
		if err != wire.ErrNoMessage {
			n.Log.Debug("malformed message, dropping connection", "err", err)
		}
		return
	}

	switch msg.Type {
	case wire.TypeGossip:
		n.Gossip.HandleGossip(msg.Gossip)
	case wire.TypeGossipReply:
		n.Gossip.HandleGossipReply(msg.GossipReply)
	default:
		handlers.Dispatch(msg, conn, n.handlerDeps())
	}
}

// runReaper periodically expires stale Peer Table entries and cascades
// their removal into the Metadata Store's replica sets, per spec.md §4.2's
// invariant 4.
func (n *Node) runReaper(ctx context.Context) {
	ticker := time.NewTicker(n.Config.PeerCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range n.Peers.Reap() {
				if err := n.Metadata.RemovePeer(p); err != nil {
					n.Log.Warn("failed to cascade peer removal into metadata store", "peer", p, "err", err)
				}
			}
		}
	}
}

// Close releases the P2P listener.
func (n *Node) Close() error {
	if n.listener == nil {
		return nil
	}
	return n.listener.Close()
}
