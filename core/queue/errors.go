package queue

import (
	"errors"
	"fmt"
)

var (
	ErrQueueEmpty       = errors.New("queue partition is empty")
	ErrUnknownPartition = errors.New("partition does not hold queue items")
)

// StoreError reports a failure of the backing store. Items involved stay in
// their last known partition.
type StoreError struct {
	Op        string
	Partition Partition
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("queue store %s %s: %v", e.Op, e.Partition, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
