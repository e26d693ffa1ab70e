package audit

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pyropy/dsn/core/model"
	"github.com/pyropy/dsn/core/queue"
)

// Challenger sends an audit challenge to a farmer and returns its proof.
type Challenger interface {
	Challenge(ctx context.Context, contact model.Contact, shardHash string, challenge []byte) (model.Proof, error)
}

type ContactLookup interface {
	Get(ctx context.Context, id string) (model.Contact, error)
}

type ContractSource interface {
	ByShard(ctx context.Context, shardHash string) ([]model.Contract, error)
	NextChallenge(ctx context.Context, contractID string) (int, []byte, error)
}

// Dispatcher verifies audit items against farmers and commits the outcome to
// the final partition.
type Dispatcher struct {
	store    queue.Store
	farmers  Challenger
	contacts ContactLookup
	timeout  time.Duration
	log      *zap.SugaredLogger
}

func NewDispatcher(store queue.Store, farmers Challenger, contacts ContactLookup, timeout time.Duration, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		farmers:  farmers,
		contacts: contacts,
		timeout:  timeout,
		log:      log,
	}
}

// Verify challenges the farmer of item and checks the proof. A proof that
// does not match the audit tree yields false without an error. Proof, timeout,
// transport and unknown farmer failures are a *VerificationError; a failing
// contact lookup is returned as is.
func (d *Dispatcher) Verify(ctx context.Context, item model.QueueItem) (bool, error) {
	fail := func(err error) (bool, error) {
		return false, &VerificationError{ItemID: item.ID, Err: err}
	}

	challenge, err := hex.DecodeString(item.Challenge)
	if err != nil {
		return fail(fmt.Errorf("%w: challenge: %v", ErrMalformedItem, err))
	}

	contact, err := d.contacts.Get(ctx, item.Farmer)
	if errors.Is(err, model.ErrContactNotFound) {
		return fail(fmt.Errorf("%w: %s: %v", ErrUnknownFarmer, item.Farmer, err))
	}
	if err != nil {
		return false, fmt.Errorf("lookup farmer %s: %w", item.Farmer, err)
	}

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	proof, err := d.farmers.Challenge(cctx, contact, item.Hash, challenge)
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return fail(fmt.Errorf("%w after %s", ErrChallengeTimeout, d.timeout))
		}
		return fail(err)
	}

	ok, err := Check(item, proof)
	if err != nil {
		return fail(err)
	}

	return ok, nil
}

// Commit records the result of item in the final partition. Committing an
// item id that is already final is a no-op.
func (d *Dispatcher) Commit(ctx context.Context, item model.QueueItem, result bool, reason string) error {
	record := model.AuditRecord{
		Item:        item,
		Result:      result,
		Reason:      reason,
		CommittedAt: time.Now().UnixMilli(),
	}

	written, err := d.store.Commit(ctx, record)
	if err != nil {
		return err
	}

	if !written {
		d.log.Debugw("audit", "status", "already committed", "id", item.ID)
		return nil
	}

	d.log.Infow("audit", "status", "committed", "id", item.ID, "farmer", item.Farmer, "result", result)
	return nil
}

// Enqueue adds new audit items to the ready partition.
func (d *Dispatcher) Enqueue(ctx context.Context, items ...model.QueueItem) (int, error) {
	return d.store.Push(ctx, queue.Ready, items...)
}

// ScheduleShard enqueues one audit per valid contract of the shard, each
// consuming the contract's next unused challenge.
func (d *Dispatcher) ScheduleShard(ctx context.Context, contracts ContractSource, shardHash string) ([]model.QueueItem, error) {
	held, err := contracts.ByShard(ctx, shardHash)
	if err != nil {
		return nil, err
	}

	items := make([]model.QueueItem, 0, len(held))
	for _, c := range held {
		if c.Invalidated {
			continue
		}

		index, challenge, err := contracts.NextChallenge(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("next challenge for contract %s: %w", c.ID, err)
		}

		items = append(items, model.NewQueueItem(c, index, challenge))
	}

	if _, err := d.Enqueue(ctx, items...); err != nil {
		return nil, err
	}

	d.log.Infow("audit", "status", "scheduled", "shard", shardHash, "items", len(items))
	return items, nil
}
