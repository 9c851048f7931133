// Package wire defines the typed messages exchanged between peers and the
// incremental JSON-over-stream codec used to read them, directly grounded
// on original_source/peer.py's receive_message: grow a buffer across reads
// and retry a full JSON parse, returning the first complete value and
// discarding anything after it.
package wire

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"gossipfs/internal/metadata"
	"gossipfs/internal/peer"
)

// Type discriminates the wire message variants, carried as the "type"
// field of every frame per spec.md §6.
type Type string

const (
	TypeGossip      Type = "GOSSIP"
	TypeGossipReply Type = "GOSSIP_REPLY"
	TypeAnnounce    Type = "ANNOUNCE"
	TypeFileData    Type = "FILE_DATA"
	TypeDelete      Type = "DELETE"
	TypeGetFile     Type = "GET_FILE"
)

// Gossip announces the sender's presence and carries a fresh or forwarded
// message id used for duplicate suppression.
type Gossip struct {
	Type   Type    `json:"type"`
	Host   string  `json:"host"`
	Port   int     `json:"port"`
	ID     string  `json:"id"`
	PeerID peer.ID `json:"peerId"`
}

// NewGossip builds a Gossip carrying a freshly minted 128-bit id, using
// google/uuid in place of the teacher's crypto/rand-based message id
// generator, since spec.md calls the id a "128-bit hex/uuid string".
func NewGossip(host string, port int, self peer.ID) Gossip {
	return Gossip{
		Type:   TypeGossip,
		Host:   host,
		Port:   port,
		ID:     uuid.NewString(),
		PeerID: self,
	}
}

// GossipReply answers a Gossip with the replier's local file records, so
// the original sender can learn about files it does not yet know about.
type GossipReply struct {
	Type   Type             `json:"type"`
	Host   string           `json:"host"`
	Port   int              `json:"port"`
	PeerID peer.ID          `json:"peerId"`
	Files  []*metadata.Record `json:"files"`
}

// Announce tells a peer about a file it may not have heard of yet.
type Announce struct {
	Type          Type            `json:"type"`
	From          peer.ID         `json:"from"`
	FileName      string          `json:"file_name"`
	FileSize      int64           `json:"file_size"`
	FileID        metadata.ContentID `json:"file_id"`
	FileOwner     peer.ID         `json:"file_owner"`
	FileTimestamp int64           `json:"file_timestamp"`
}

// ToRecord converts the announce payload into a metadata.Record with the
// announcer recorded as a replica, per spec.md §4.6's ANNOUNCE handling.
func (a Announce) ToRecord() *metadata.Record {
	return &metadata.Record{
		ContentID:     a.FileID,
		FileName:      a.FileName,
		FileSize:      a.FileSize,
		FileOwner:     a.FileOwner,
		FileTimestamp: a.FileTimestamp,
		Replicas:      map[peer.ID]bool{a.From: true},
	}
}

// FileData answers a GetFile, or pushes a file unsolicited. A nil scalar
// set (FileID empty) signals "I no longer have it" per spec.md §4.6.
type FileData struct {
	Type          Type               `json:"type"`
	FileName      *string            `json:"file_name"`
	FileSize      *int64             `json:"file_size"`
	FileID        *metadata.ContentID `json:"file_id"`
	FileOwner     *peer.ID           `json:"file_owner"`
	FileTimestamp *int64             `json:"file_timestamp"`
	Data          *string            `json:"data"`
}

// Available reports whether this FileData carries real content, as opposed
// to the "not available" response with every scalar null.
func (f FileData) Available() bool {
	return f.FileID != nil && f.Data != nil
}

// NotAvailable builds the "I no longer have it" FILE_DATA response.
func NotAvailable() FileData {
	return FileData{Type: TypeFileData}
}

// NewFileData builds a FILE_DATA carrying record's scalars and hex-encoded
// payload.
func NewFileData(rec *metadata.Record, hexData string) FileData {
	name := rec.FileName
	size := rec.FileSize
	cid := rec.ContentID
	owner := rec.FileOwner
	ts := rec.FileTimestamp
	return FileData{
		Type:          TypeFileData,
		FileName:      &name,
		FileSize:      &size,
		FileID:        &cid,
		FileOwner:     &owner,
		FileTimestamp: &ts,
		Data:          &hexData,
	}
}

// ToRecord converts an available FileData into a metadata.Record. Caller
// must check Available first.
func (f FileData) ToRecord() *metadata.Record {
	return &metadata.Record{
		ContentID:     *f.FileID,
		FileName:      *f.FileName,
		FileSize:      *f.FileSize,
		FileOwner:     *f.FileOwner,
		FileTimestamp: *f.FileTimestamp,
	}
}

// Delete requests that a peer drop a record, honored only if From matches
// the record's owner.
type Delete struct {
	Type   Type               `json:"type"`
	From   peer.ID            `json:"from"`
	FileID metadata.ContentID `json:"file_id"`
}

// GetFile requests a peer's copy of a file over the same connection.
type GetFile struct {
	Type   Type               `json:"type"`
	FileID metadata.ContentID `json:"file_id"`
}

// envelope is used only to sniff the "type" discriminator before decoding
// into the concrete variant.
type envelope struct {
	Type Type `json:"type"`
}

// ErrNoMessage is returned when the stream closed cleanly with no pending
// bytes, i.e. there was no message to read at all.
var ErrNoMessage = errors.New("wire: no message")

// ErrFramingError is returned when the stream closed with unparseable
// trailing bytes buffered, mirroring the source's
// "Invalid JSON received before connection was closed" case.
var ErrFramingError = errors.New("wire: framing error, connection closed mid-message")

// Message is the decoded union of every wire variant, holding Type plus
// exactly one non-nil concrete payload.
type Message struct {
	Type        Type
	Gossip      *Gossip
	GossipReply *GossipReply
	Announce    *Announce
	FileData    *FileData
	Delete      *Delete
	GetFile     *GetFile
}

// Decode reads exactly one JSON message from r using a buffered reader and
// encoding/json.Decoder, which already implements incremental parsing over
// a stream: Decode blocks until one complete JSON value is available and
// leaves any trailing bytes buffered for a subsequent call, matching the
// source's raw_decode-retry-across-reads behavior without needing to hand
// roll buffer growth. Every connection in this protocol carries at most
// one message per direction, so Decode does not need to return a reusable
// reader for a second call on the same stream.
func Decode(r io.Reader) (Message, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	dec := json.NewDecoder(br)

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, ErrNoMessage
		}
		return Message{}, fmt.Errorf("%w: %v", ErrFramingError, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("wire: missing or invalid type field: %w", err)
	}

	msg := Message{Type: env.Type}
	switch env.Type {
	case TypeGossip:
		var g Gossip
		if err := json.Unmarshal(raw, &g); err != nil {
			return Message{}, err
		}
		msg.Gossip = &g
	case TypeGossipReply:
		var g GossipReply
		if err := json.Unmarshal(raw, &g); err != nil {
			return Message{}, err
		}
		msg.GossipReply = &g
	case TypeAnnounce:
		var a Announce
		if err := json.Unmarshal(raw, &a); err != nil {
			return Message{}, err
		}
		msg.Announce = &a
	case TypeFileData:
		var f FileData
		if err := json.Unmarshal(raw, &f); err != nil {
			return Message{}, err
		}
		msg.FileData = &f
	case TypeDelete:
		var d Delete
		if err := json.Unmarshal(raw, &d); err != nil {
			return Message{}, err
		}
		msg.Delete = &d
	case TypeGetFile:
		var g GetFile
		if err := json.Unmarshal(raw, &g); err != nil {
			return Message{}, err
		}
		msg.GetFile = &g
	default:
		return Message{}, fmt.Errorf("wire: unknown message type %q", env.Type)
	}
	return msg, nil
}

// Encode writes v (one of the *Gossip/*GossipReply/... types, or their
// value forms) as a single JSON frame to w.
func Encode(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}
