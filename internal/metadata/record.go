package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"

	"gossipfs/internal/peer"
)

// ContentID is the hex digest naming a FileRecord. Produced by hashing the
// raw file bytes concatenated with the ASCII-encoded publish timestamp, so
// identical bytes republished at a different moment yield a different id —
// intentional per the content-id determinism decision in DESIGN.md.
type ContentID string

// ComputeContentID hashes data concatenated with the decimal publish
// timestamp using SHA-256, per the source's content-id formula.
func ComputeContentID(data []byte, publishedAt int64) ContentID {
	h := sha256.New()
	h.Write(data)
	h.Write([]byte(strconv.FormatInt(publishedAt, 10)))
	return ContentID(hex.EncodeToString(h.Sum(nil)))
}

// Record is the metadata known about one shared file. Replicas is the
// derived set of peers believed to hold the bytes; it serializes to/from
// JSON as an array (per spec.md §6's on-disk format) but is kept as a map
// in memory for O(1) membership checks.
type Record struct {
	ContentID     ContentID
	FileName      string
	FileSize      int64
	FileOwner     peer.ID
	FileTimestamp int64
	Replicas      map[peer.ID]bool
}

type recordWire struct {
	ContentID     ContentID `json:"content_id"`
	FileName      string    `json:"file_name"`
	FileSize      int64     `json:"file_size"`
	FileOwner     peer.ID   `json:"file_owner"`
	FileTimestamp int64     `json:"file_timestamp"`
	Replicas      []peer.ID `json:"replicas"`
}

// MarshalJSON serializes Replicas as a sorted array rather than a map.
func (r Record) MarshalJSON() ([]byte, error) {
	replicas := r.ReplicaSlice()
	sort.Slice(replicas, func(i, j int) bool { return replicas[i] < replicas[j] })
	return json.Marshal(recordWire{
		ContentID:     r.ContentID,
		FileName:      r.FileName,
		FileSize:      r.FileSize,
		FileOwner:     r.FileOwner,
		FileTimestamp: r.FileTimestamp,
		Replicas:      replicas,
	})
}

// UnmarshalJSON accepts Replicas as a JSON array and rebuilds the set.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.ContentID = w.ContentID
	r.FileName = w.FileName
	r.FileSize = w.FileSize
	r.FileOwner = w.FileOwner
	r.FileTimestamp = w.FileTimestamp
	r.Replicas = replicaSetFrom(w.Replicas)
	return nil
}

// Clone returns a deep copy so callers can read outside the store's lock.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Replicas = make(map[peer.ID]bool, len(r.Replicas))
	for p := range r.Replicas {
		cp.Replicas[p] = true
	}
	return &cp
}

// ReplicaSlice returns the replica set as a slice, for JSON wire messages
// that serialize replicas as an array rather than a set.
func (r *Record) ReplicaSlice() []peer.ID {
	out := make([]peer.ID, 0, len(r.Replicas))
	for p := range r.Replicas {
		out = append(out, p)
	}
	return out
}

func replicaSetFrom(ids []peer.ID) map[peer.ID]bool {
	set := make(map[peer.ID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
