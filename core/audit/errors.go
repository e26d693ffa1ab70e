package audit

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedProof     = errors.New("malformed proof")
	ErrMalformedItem      = errors.New("malformed audit item")
	ErrChallengeTimeout   = errors.New("challenge timed out")
	ErrUnknownFarmer      = errors.New("farmer is not in the contact directory")
	ErrChallengeNotInTree = errors.New("challenge response is not a leaf of the audit tree")
	ErrWorkerStarted      = errors.New("worker already started")
)

// VerificationError means an audit could not produce a valid proof. The item
// is still committed, with a negative result.
type VerificationError struct {
	ItemID string
	Err    error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify %s: %v", e.ItemID, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}
