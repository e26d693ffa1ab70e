package model

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// QueueItem is a single audit task. Items are immutable once created and move
// between queue partitions by value.
type QueueItem struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Root      string `json:"root"`
	Depth     int    `json:"depth"`
	Challenge string `json:"challenge"`
	Index     int    `json:"index"`
	Hash      string `json:"hash"`
	Farmer    string `json:"farmer"`
	Contract  string `json:"contract"`
}

// NewQueueItem builds an audit task for the challenge at index of the contract's audit tree.
func NewQueueItem(contract Contract, index int, challenge []byte) QueueItem {
	return QueueItem{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Root:      contract.Root,
		Depth:     contract.Depth,
		Challenge: hex.EncodeToString(challenge),
		Index:     index,
		Hash:      contract.ShardHash,
		Farmer:    contract.FarmerID,
		Contract:  contract.ID,
	}
}

// AuditRecord is the outcome of an audit stored in the final partition.
type AuditRecord struct {
	Item        QueueItem `json:"item"`
	Result      bool      `json:"result"`
	Reason      string    `json:"reason,omitempty"`
	CommittedAt int64     `json:"committedAt"`
}

// Proof is a farmer's answer to an audit challenge.
type Proof struct {
	Response []byte
	Index    int
	Branch   [][]byte
}
