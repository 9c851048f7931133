// Package peer defines the identity types shared across the node: the
// opaque PeerId chosen by the operator, the (host, port) Endpoint a peer's
// server accepts connections on, and the PeerRecord tracked for each known
// member of the overlay.
package peer

import (
	"strconv"
	"time"
)

// ID is an opaque identifier string chosen by the operator at startup.
// Unique within the overlay by convention; nothing enforces uniqueness.
type ID string

// Endpoint identifies where a peer's P2P server accepts connections.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Record is the liveness entry for a known peer: created or refreshed
// whenever a message from that peer is received or its presence is
// reported in a reply, and expired when now-LastSeen exceeds the
// configured peer timeout.
type Record struct {
	PeerID   ID        `json:"peer_id"`
	Host     string    `json:"host"`
	Port     int       `json:"port"`
	LastSeen time.Time `json:"last_seen"`
}

// Endpoint returns the dialable endpoint for this record.
func (r Record) Endpoint() Endpoint {
	return Endpoint{Host: r.Host, Port: r.Port}
}

// Address formats the endpoint as host:port for net.Dial.
func (e Endpoint) Address() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}
