package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// merkleNode is one node of the diagnostic Merkle tree built over the
// store's content-ids, adapted from the teacher's per-key leaf/internal
// node hashing (internal/storage/merkle.go) but folding a (content_id,
// file_timestamp) pair per leaf instead of a (key, value) pair.
type merkleNode struct {
	hash        string
	left, right *merkleNode
}

// MerkleRoot returns a diagnostic summary hash over every locally-known
// record, for eyeballing convergence between two peers' /stats.json pages.
// It plays no part in the wire protocol or the merge rule.
func (s *Store) MerkleRoot() string {
	records := s.All() // already sorted by content-id

	if len(records) == 0 {
		return emptyTreeHash()
	}

	leaves := make([]*merkleNode, 0, len(records))
	for _, rec := range records {
		leaves = append(leaves, &merkleNode{hash: leafHash(rec)})
	}

	root := foldLeaves(leaves)
	return root.hash
}

func foldLeaves(level []*merkleNode) *merkleNode {
	if len(level) == 1 {
		return level[0]
	}

	next := make([]*merkleNode, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		left := level[i]
		right := left
		if i+1 < len(level) {
			right = level[i+1]
		}
		next = append(next, &merkleNode{
			hash:  internalHash(left.hash, right.hash),
			left:  left,
			right: right,
		})
	}
	return foldLeaves(next)
}

func leafHash(rec *Record) string {
	h := sha256.New()
	fmt.Fprintf(h, "leaf:%s:%d", rec.ContentID, rec.FileTimestamp)
	return hex.EncodeToString(h.Sum(nil))
}

func internalHash(left, right string) string {
	h := sha256.New()
	fmt.Fprintf(h, "internal:%s:%s", left, right)
	return hex.EncodeToString(h.Sum(nil))
}

func emptyTreeHash() string {
	h := sha256.Sum256([]byte("empty"))
	return hex.EncodeToString(h[:])
}
