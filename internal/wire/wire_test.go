package wire

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"gossipfs/internal/metadata"
	"gossipfs/internal/peer"
)

func TestEncodeDecodeGossip(t *testing.T) {
	g := NewGossip("localhost", 8271, "P1")

	var buf bytes.Buffer
	if err := Encode(&buf, g); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	msg, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Type != TypeGossip {
		t.Fatalf("expected TypeGossip, got %v", msg.Type)
	}
	if msg.Gossip.Host != "localhost" || msg.Gossip.Port != 8271 {
		t.Fatalf("unexpected gossip payload: %+v", msg.Gossip)
	}
	if msg.Gossip.ID == "" {
		t.Fatal("expected a non-empty message id")
	}
}

func TestDecodeToleratesFragmentedReads(t *testing.T) {
	payload := `{"type":"GET_FILE","file_id":"abc123"}`
	r := &slowReader{remaining: []byte(payload), chunkSize: 3}

	msg, err := Decode(r)
	if err != nil {
		t.Fatalf("Decode over fragmented reads: %v", err)
	}
	if msg.Type != TypeGetFile || msg.GetFile.FileID != "abc123" {
		t.Fatalf("unexpected result: %+v", msg)
	}
}

func TestDecodeEmptyStreamReturnsNoMessage(t *testing.T) {
	_, err := Decode(strings.NewReader(""))
	if err != ErrNoMessage {
		t.Fatalf("expected ErrNoMessage, got %v", err)
	}
}

func TestDecodeUnknownTypeErrors(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"type":"BOGUS"}`))
	if err == nil {
		t.Fatal("expected an error for an unknown message type")
	}
}

func TestFileDataNotAvailableRoundTrip(t *testing.T) {
	na := NotAvailable()
	if na.Available() {
		t.Fatal("NotAvailable() must report Available() == false")
	}

	var buf bytes.Buffer
	Encode(&buf, na)

	msg, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if msg.FileData.Available() {
		t.Fatal("round-tripped not-available FILE_DATA must stay unavailable")
	}
}

func TestAnnounceToRecordSeedsAnnouncerAsReplica(t *testing.T) {
	a := Announce{
		Type:          TypeAnnounce,
		From:          "P2",
		FileName:      "a.txt",
		FileID:        "cid1",
		FileOwner:     "P1",
		FileTimestamp: 100,
	}
	rec := a.ToRecord()
	if !rec.Replicas["P2"] {
		t.Fatalf("expected announcer to be seeded as a replica: %+v", rec.Replicas)
	}
}

func TestGossipReplyCarriesFiles(t *testing.T) {
	reply := GossipReply{
		Type:   TypeGossipReply,
		PeerID: peer.ID("P2"),
		Files: []*metadata.Record{
			{ContentID: "cid1", FileOwner: "P2", FileTimestamp: 5},
		},
	}

	var buf bytes.Buffer
	Encode(&buf, reply)

	msg, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(msg.GossipReply.Files) != 1 || msg.GossipReply.Files[0].ContentID != "cid1" {
		t.Fatalf("unexpected files in reply: %+v", msg.GossipReply.Files)
	}
}

// slowReader drains remaining in chunkSize-byte pieces, forcing Decode to
// observe a JSON value split across several reads.
type slowReader struct {
	remaining []byte
	chunkSize int
}

func (s *slowReader) Read(p []byte) (int, error) {
	if len(s.remaining) == 0 {
		return 0, io.EOF
	}
	n := s.chunkSize
	if n > len(s.remaining) {
		n = len(s.remaining)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, s.remaining[:n])
	s.remaining = s.remaining[n:]
	return n, nil
}
