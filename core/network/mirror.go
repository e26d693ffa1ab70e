package network

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pyropy/dsn/core/model"
)

var (
	ErrNoMirrorSource = errors.New("no healthy farmer holds the shard")
	ErrNoMirrorTarget = errors.New("no farmer available to receive the mirror")
)

type ContractStore interface {
	ByFarmer(ctx context.Context, farmerID string) ([]model.Contract, error)
	ByShard(ctx context.Context, shardHash string) ([]model.Contract, error)
	Invalidate(ctx context.Context, id string) error
	Save(ctx context.Context, contract model.Contract) error
}

type MirrorClient interface {
	MirrorShard(ctx context.Context, source model.Contact, shardHash string, target model.Contact) error
}

type ContactFinder interface {
	Get(ctx context.Context, id string) (model.Contact, error)
	MostRecent(ctx context.Context, n int, exclude []string) ([]model.Contact, error)
}

// MirrorReplicator moves the shards of an unresponsive farmer onto other farmers.
type MirrorReplicator struct {
	contracts ContractStore
	contacts  ContactFinder
	client    MirrorClient
	log       *zap.SugaredLogger
}

func NewMirrorReplicator(contracts ContractStore, contacts ContactFinder, client MirrorClient, log *zap.SugaredLogger) *MirrorReplicator {
	return &MirrorReplicator{
		contracts: contracts,
		contacts:  contacts,
		client:    client,
		log:       log,
	}
}

// Replicate mirrors the shard of every valid contract of contact to a new
// farmer and invalidates the contract once the mirror is stored. A contract
// whose shard has no healthy holder left is invalidated without a mirror.
// Failures are collected per contract; a failed contract stays valid so a
// later Replicate retries it.
func (r *MirrorReplicator) Replicate(ctx context.Context, contact model.Contact) error {
	contracts, err := r.contracts.ByFarmer(ctx, contact.ID)
	if err != nil {
		return err
	}

	var errs error
	for _, c := range contracts {
		if err := r.mirror(ctx, contact, c); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("contract %s: %w", c.ID, err))
		}
	}

	return errs
}

func (r *MirrorReplicator) mirror(ctx context.Context, lost model.Contact, c model.Contract) error {
	holders, err := r.contracts.ByShard(ctx, c.ShardHash)
	if err != nil {
		return err
	}

	exclude := []string{lost.ID}
	var source model.Contact
	found := false
	for _, h := range holders {
		exclude = append(exclude, h.FarmerID)
		if found || h.Invalidated || h.FarmerID == lost.ID {
			continue
		}

		contact, err := r.contacts.Get(ctx, h.FarmerID)
		if err != nil {
			r.log.Debugw("replication", "status", "holder lookup failed", "farmer", h.FarmerID, "error", err)
			continue
		}
		source, found = contact, true
	}
	if !found {
		if err := r.contracts.Invalidate(ctx, c.ID); err != nil {
			return err
		}
		return ErrNoMirrorSource
	}

	targets, err := r.contacts.MostRecent(ctx, 1, exclude)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return ErrNoMirrorTarget
	}
	target := targets[0]

	if err := r.client.MirrorShard(ctx, source, c.ShardHash, target); err != nil {
		return err
	}

	mirror := c.Mirror(target.ID)
	if err := r.contracts.Save(ctx, mirror); err != nil {
		return err
	}
	if err := r.contracts.Invalidate(ctx, c.ID); err != nil {
		return err
	}

	r.log.Infow("replication", "status", "mirror created", "shard", c.ShardHash, "from", source.ID, "to", target.ID, "contract", mirror.ID)
	return nil
}
