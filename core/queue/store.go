package queue

import (
	"context"
	"iter"

	"github.com/pyropy/dsn/core/model"
)

type Partition string

const (
	Pending Partition = "pending"
	Ready   Partition = "ready"
	Final   Partition = "final"
)

// Store is a durable, partitioned FIFO of audit items. Pending and Ready hold
// queue items, Final holds audit records and is written through Commit only.
type Store interface {
	// Push appends items to the partition as one atomic batch.
	Push(ctx context.Context, p Partition, items ...model.QueueItem) (int, error)
	// Pop removes the oldest item or returns ErrQueueEmpty.
	Pop(ctx context.Context, p Partition) (model.QueueItem, error)
	// PeekAll lazily reads the whole partition. Every range re-reads the store.
	PeekAll(ctx context.Context, p Partition) iter.Seq2[model.QueueItem, error]
	// Move atomically pops the oldest item of from and appends it to to.
	Move(ctx context.Context, from, to Partition) (model.QueueItem, error)
	Remove(ctx context.Context, p Partition, item model.QueueItem) error
	Len(ctx context.Context, p Partition) (int64, error)
	Clear(ctx context.Context, p Partition) error
	// Commit appends record to Final unless a record for the same item id exists.
	Commit(ctx context.Context, record model.AuditRecord) (bool, error)
	Results(ctx context.Context) iter.Seq2[model.AuditRecord, error]
}
