package model

import (
	"time"

	"github.com/google/uuid"
)

// Contract is a farmer's obligation to store a shard. The audit tree is shared
// by every contract of the same shard, so a mirror inherits it unchanged.
type Contract struct {
	ID            string    `json:"id"`
	ShardHash     string    `json:"shardHash"`
	FarmerID      string    `json:"farmerId"`
	Size          int64     `json:"size"`
	Root          string    `json:"root"`
	Depth         int       `json:"depth"`
	Challenges    []string  `json:"challenges"`
	Leaves        []string  `json:"leaves"`
	NextChallenge int       `json:"nextChallenge"`
	CreatedAt     time.Time `json:"createdAt"`
	Invalidated   bool      `json:"invalidated"`
	InvalidatedAt time.Time `json:"invalidatedAt,omitempty"`
}

func NewContract(shardHash, farmerID string, size int64, tree AuditTree) Contract {
	return Contract{
		ID:         uuid.NewString(),
		ShardHash:  shardHash,
		FarmerID:   farmerID,
		Size:       size,
		Root:       tree.Root,
		Depth:      tree.Depth,
		Challenges: tree.Challenges,
		Leaves:     tree.Leaves,
		CreatedAt:  time.Now(),
	}
}

// Mirror returns a fresh contract for farmerID over the same shard and audit tree.
func (c Contract) Mirror(farmerID string) Contract {
	mirror := NewContract(c.ShardHash, farmerID, c.Size, c.Tree())
	mirror.NextChallenge = c.NextChallenge
	return mirror
}

func (c Contract) Tree() AuditTree {
	return AuditTree{
		Root:       c.Root,
		Depth:      c.Depth,
		Challenges: c.Challenges,
		Leaves:     c.Leaves,
	}
}

// AuditTree carries hex encoded challenges and the Merkle tree built over their responses.
type AuditTree struct {
	Root       string   `json:"root"`
	Depth      int      `json:"depth"`
	Challenges []string `json:"challenges"`
	Leaves     []string `json:"leaves"`
}
