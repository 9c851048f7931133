// Package gossip implements the membership and anti-entropy protocol: the
// one-shot bootstrap join, the periodic broadcast to every known peer, and
// forwarding of freshly-seen GOSSIP messages to a random fan-out, mirroring
// the teacher's GossipManager (ticker-driven goroutines selecting on
// ctx.Done(), a callback-free core loop) generalized from HTTP POST fan-out
// to framed TCP sends, and from the teacher's SWIM-style suspicion/probe
// failure detector to the simpler last-seen reap this spec calls for.
package gossip

import (
	"context"
	"log/slog"
	"net"
	"time"

	"gossipfs/internal/blobstore"
	"gossipfs/internal/config"
	"gossipfs/internal/metadata"
	"gossipfs/internal/peer"
	"gossipfs/internal/peertable"
	"gossipfs/internal/transport"
	"gossipfs/internal/wire"
)

// Engine drives bootstrap, periodic gossip and forwarding. It holds no
// direct reference to the handlers that dispatch ANNOUNCE/GET_FILE/
// FILE_DATA/DELETE; its only wire concern is GOSSIP/GOSSIP_REPLY.
type Engine struct {
	self     peer.ID
	endpoint *peer.Endpoint

	peers *peertable.Table
	meta  *metadata.Store
	blobs *blobstore.Store
	cfg   *config.Config
	log   *slog.Logger

	seen *seenSet

	// dial is transport.Dial by default; overridable in tests.
	dial func(addr string) (net.Conn, error)
}

// NewEngine builds an Engine for a node identified by self/endpoint.
// endpoint is a pointer shared with the caller so that a later port fixup
// (binding with an ephemeral port requested as 0) is visible to the engine
// without having to reconstruct it.
func NewEngine(self peer.ID, endpoint *peer.Endpoint, peers *peertable.Table, meta *metadata.Store, blobs *blobstore.Store, cfg *config.Config, log *slog.Logger) *Engine {
	return &Engine{
		self:     self,
		endpoint: endpoint,
		peers:    peers,
		meta:     meta,
		blobs:    blobs,
		cfg:      cfg,
		log:      log,
		seen:     newSeenSet(config.SeenIDCacheCapacity),
		dial:     transport.Dial,
	}
}

// BootstrapOnce sends exactly one GOSSIP to the configured well-known
// endpoint, unconditionally, even if that endpoint turns out to be
// unreachable, per spec.md §4.5's bootstrap join driver.
func (e *Engine) BootstrapOnce(ctx context.Context) {
	msg := wire.NewGossip(e.endpoint.Host, e.endpoint.Port, e.self)
	e.seen.seenAndAdd(msg.ID)
	if err := e.sendGossip(e.cfg.BootstrapEndpoint, msg); err != nil {
		e.log.Warn("bootstrap gossip failed", "endpoint", e.cfg.BootstrapEndpoint, "err", err)
	}
}

// RunPeriodic sends a freshly-minted GOSSIP to every currently live peer
// every GOSSIP_INTERVAL, until ctx is canceled.
func (e *Engine) RunPeriodic(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.GossipInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.gossipToAllKnownPeers()
		}
	}
}

func (e *Engine) gossipToAllKnownPeers() {
	msg := wire.NewGossip(e.endpoint.Host, e.endpoint.Port, e.self)
	e.seen.seenAndAdd(msg.ID)

	for _, rec := range e.peers.Snapshot() {
		addr := rec.Endpoint().Address()
		if err := e.sendGossip(addr, msg); err != nil {
			e.log.Debug("periodic gossip send failed, evicting peer", "peer", rec.PeerID, "err", err)
			e.peers.Remove(rec.PeerID)
		}
	}
}

// HandleGossip processes an inbound GOSSIP: touches the sender, and if the
// message id is new, replies with this node's local files and forwards the
// message verbatim to a random fan-out of other known peers. A previously
// seen id produces no outbound traffic at all, per invariant 3.
func (e *Engine) HandleGossip(msg *wire.Gossip) {
	e.peers.Touch(msg.PeerID, msg.Host, msg.Port)

	if e.seen.seenAndAdd(msg.ID) {
		return
	}

	reply := wire.GossipReply{
		Type:   wire.TypeGossipReply,
		Host:   e.endpoint.Host,
		Port:   e.endpoint.Port,
		PeerID: e.self,
		Files:  e.meta.ListLocal(e.blobs.Exists),
	}
	senderAddr := (peer.Endpoint{Host: msg.Host, Port: msg.Port}).Address()
	if err := e.sendFrame(senderAddr, reply); err != nil {
		e.log.Debug("gossip reply failed", "to", msg.PeerID, "err", err)
	}

	fanout := e.peers.Sample(e.cfg.GossipPeerCount, e.self, msg.PeerID)
	for _, rec := range fanout {
		if err := e.sendGossip(rec.Endpoint().Address(), *msg); err != nil {
			e.log.Debug("gossip forward failed, evicting peer", "peer", rec.PeerID, "err", err)
			e.peers.Remove(rec.PeerID)
		}
	}
}

// HandleGossipReply processes an inbound GOSSIP_REPLY: touches the sender
// and merges each listed record into the Metadata Store, recording the
// sender as a replica holder.
func (e *Engine) HandleGossipReply(msg *wire.GossipReply) {
	e.peers.Touch(msg.PeerID, msg.Host, msg.Port)

	for _, rec := range msg.Files {
		if rec.Replicas == nil {
			rec.Replicas = make(map[peer.ID]bool)
		}
		rec.Replicas[msg.PeerID] = true
		if _, err := e.meta.Upsert(rec); err != nil {
			e.log.Warn("failed to merge gossip reply record", "content_id", rec.ContentID, "err", err)
			continue
		}
		if err := e.meta.AddReplica(rec.ContentID, msg.PeerID); err != nil {
			e.log.Warn("failed to record replica from gossip reply", "content_id", rec.ContentID, "err", err)
		}
	}
}

func (e *Engine) sendGossip(addr string, msg wire.Gossip) error {
	return e.sendFrame(addr, msg)
}

// sendFrame opens a connection, writes one JSON frame, and closes it,
// matching the fire-and-forget pattern spec.md §4.4 requires for every
// message type except GET_FILE/FILE_DATA.
func (e *Engine) sendFrame(addr string, v interface{}) error {
	conn, err := e.dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return wire.Encode(conn, v)
}
