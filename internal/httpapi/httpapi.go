// Package httpapi exposes the read-only HTTP status endpoint: a landing
// page, a /stats.json snapshot, static assets, and a /ws live-refresh feed.
// Built on the teacher's HTTP stack (gin-gonic/gin, gorilla/websocket),
// generalized from the teacher's JSON welcome blob + ring/replication
// status payload to this node's peer/file snapshot.
package httpapi

import (
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gossipfs/internal/blobstore"
	"gossipfs/internal/metadata"
	"gossipfs/internal/peer"
	"gossipfs/internal/peertable"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the HTTP status endpoint boundary adapter.
type Server struct {
	self  peer.ID
	peers *peertable.Table
	meta  *metadata.Store
	blobs *blobstore.Store

	router *gin.Engine
}

// New builds a gin router exposing /, /stats.json, /static/*filepath, /ws.
func New(self peer.ID, peers *peertable.Table, meta *metadata.Store, blobs *blobstore.Store) *Server {
	s := &Server{self: self, peers: peers, meta: meta, blobs: blobs}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/", s.landing)
	r.GET("/stats.json", s.stats)
	r.Static("/static", "./static")
	r.GET("/ws", s.ws)
	s.router = r
	return s
}

// Handler returns the http.Handler to pass to an http.Server.
func (s *Server) Handler() http.Handler { return s.router }

var landingTemplate = template.Must(template.New("landing").Parse(`<!doctype html>
<html><head><title>gossipfs — {{.Self}}</title></head>
<body>
<h1>gossipfs peer {{.Self}}</h1>
<p>Known peers: {{.PeerCount}}</p>
<p>Known files: {{.FileCount}}</p>
<p>See <a href="/stats.json">/stats.json</a> for a live snapshot.</p>
</body></html>`))

func (s *Server) landing(c *gin.Context) {
	snap := s.snapshot()
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	landingTemplate.Execute(c.Writer, gin.H{
		"Self":      s.self,
		"PeerCount": len(snap.Peers),
		"FileCount": len(snap.Files),
	})
}

// snapshotDoc is the shape served by /stats.json and pushed over /ws.
type snapshotDoc struct {
	PeerID     peer.ID            `json:"peerId"`
	Peers      []peer.Record      `json:"peers"`
	Files      []*metadata.Record `json:"files"`
	MerkleRoot string             `json:"merkle_root"`
}

func (s *Server) snapshot() snapshotDoc {
	return snapshotDoc{
		PeerID:     s.self,
		Peers:      s.peers.Snapshot(),
		Files:      s.meta.All(),
		MerkleRoot: s.meta.MerkleRoot(),
	}
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.snapshot())
}

// ws upgrades to a websocket connection and pushes a fresh snapshot every
// two seconds until the client disconnects, mirroring the teacher's
// WebSocketHandler push-loop pattern but carrying this node's own
// read-only snapshot instead of ring/replication health.
func (s *Server) ws(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(s.snapshot()); err != nil {
			return
		}
	}
}
