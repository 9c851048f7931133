// Package peertable tracks the set of peers this node currently believes
// are alive. Entries are created or refreshed whenever a message arrives
// from a peer, or when a peer is named in a GOSSIP_REPLY, and expire by
// simple last-seen timeout rather than active probing, mirroring the
// source's reap-on-read approach in peer.py rather than the teacher's
// SWIM-style suspicion machinery (see DESIGN.md).
package peertable

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"gossipfs/internal/peer"
)

// Table is a mutex-guarded map of known peers, keyed by PeerID.
type Table struct {
	mu      sync.RWMutex
	timeout time.Duration
	peers   map[peer.ID]*peer.Record
}

// New returns an empty Table that reaps entries not touched within timeout.
func New(timeout time.Duration) *Table {
	return &Table{
		timeout: timeout,
		peers:   make(map[peer.ID]*peer.Record),
	}
}

// Touch records id as alive at host:port, refreshing LastSeen to now.
// Returns true if id was not previously known.
func (t *Table) Touch(id peer.ID, host string, port int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, known := t.peers[id]
	t.peers[id] = &peer.Record{
		PeerID:   id,
		Host:     host,
		Port:     port,
		LastSeen: time.Now(),
	}
	return !known
}

// Remove deletes id unconditionally, used when a connection attempt fails
// outright rather than merely going quiet.
func (t *Table) Remove(id peer.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}

// Get returns a copy of the record for id, or nil if unknown.
func (t *Table) Get(id peer.ID) *peer.Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.peers[id]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// Reap removes every peer whose LastSeen exceeds the configured timeout and
// returns their ids, so the caller can also strip them from replica sets.
func (t *Table) Reap() []peer.ID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []peer.ID
	cutoff := time.Now().Add(-t.timeout)
	for id, rec := range t.peers {
		if rec.LastSeen.Before(cutoff) {
			expired = append(expired, id)
			delete(t.peers, id)
		}
	}
	return expired
}

// Snapshot returns a copy of every known peer record, for status reporting.
func (t *Table) Snapshot() []peer.Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]peer.Record, 0, len(t.peers))
	for _, rec := range t.peers {
		out = append(out, *rec)
	}
	return out
}

// Len reports the number of known peers.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// Sample returns up to n distinct peers, excluding every id in exclude,
// chosen uniformly at random via crypto/rand, following the teacher's
// selectRandomPeers shuffle-then-take approach (internal/gossip/gossip.go)
// rather than math/rand so the fan-out set is not predictable from a seeded
// PRNG. Forwarding callers pass both self and the gossip's origin so a
// forwarded message is never bounced back to the peer that sent it.
func (t *Table) Sample(n int, exclude ...peer.ID) []peer.Record {
	skip := make(map[peer.ID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	t.mu.RLock()
	candidates := make([]peer.Record, 0, len(t.peers))
	for id, rec := range t.peers {
		if skip[id] {
			continue
		}
		candidates = append(candidates, *rec)
	}
	t.mu.RUnlock()

	for i := len(candidates) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			break
		}
		jn := int(j.Int64())
		candidates[i], candidates[jn] = candidates[jn], candidates[i]
	}

	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}
