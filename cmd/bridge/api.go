package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pyropy/dsn/core/audit"
	"github.com/pyropy/dsn/core/contracts"
	"github.com/pyropy/dsn/core/model"
	"github.com/pyropy/dsn/core/network"
	rpc "github.com/pyropy/dsn/rpc/bridge"

	"github.com/google/uuid"
)

const rpcTimeout = 30 * time.Second

var ErrNotEnoughFarmers = errors.New("not enough farmers to place contract")

type BridgeAPI struct {
	directory         *network.Directory
	contracts         *contracts.Store
	dispatcher        *audit.Dispatcher
	replicationFactor int
}

func NewBridgeAPI(directory *network.Directory, store *contracts.Store, dispatcher *audit.Dispatcher, replicationFactor int) *BridgeAPI {
	return &BridgeAPI{
		directory:         directory,
		contracts:         store,
		dispatcher:        dispatcher,
		replicationFactor: replicationFactor,
	}
}

func (a *BridgeAPI) RegisterFarmer(args *rpc.RegisterFarmerArgs, reply *rpc.RegisterFarmerReply) error {
	log.Infow("rpc", "event", "BridgeAPI.RegisterFarmer", "args", args)
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	id := args.ID
	if id == "" {
		id = uuid.NewString()
	}

	contact, err := a.directory.Add(ctx, model.Contact{ID: id, Address: args.Address})
	if err != nil {
		return err
	}

	reply.ID = contact.ID
	log.Infow("rpc", "status", "registered farmer", "id", contact.ID, "address", contact.Address)
	return nil
}

func (a *BridgeAPI) Heartbeat(args *rpc.HeartbeatArgs, _ *rpc.HeartbeatReply) error {
	log.Debugw("rpc", "event", "BridgeAPI.Heartbeat", "args", args)
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	_, err := a.directory.Shift(ctx, args.FarmerID)
	return err
}

// CreateContract places the shard on the most recently seen farmers.
func (a *BridgeAPI) CreateContract(args *rpc.CreateContractArgs, reply *rpc.CreateContractReply) error {
	log.Infow("rpc", "event", "BridgeAPI.CreateContract", "shard", args.ShardHash, "size", args.Size)
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	if len(args.Tree.Challenges) == 0 {
		return fmt.Errorf("%w: contract needs audit challenges", audit.ErrMalformedItem)
	}

	farmers, err := a.directory.MostRecent(ctx, a.replicationFactor, nil)
	if err != nil {
		return err
	}
	if len(farmers) == 0 {
		return ErrNotEnoughFarmers
	}

	placements := make([]rpc.Placement, 0, len(farmers))
	for _, farmer := range farmers {
		contract := model.NewContract(args.ShardHash, farmer.ID, args.Size, args.Tree)
		if err := a.contracts.Save(ctx, contract); err != nil {
			return err
		}

		placements = append(placements, rpc.Placement{
			ContractID: contract.ID,
			FarmerID:   farmer.ID,
			Address:    farmer.Address,
		})
	}

	if len(farmers) < a.replicationFactor {
		log.Warnw("rpc", "status", "contract under replicated", "shard", args.ShardHash, "farmers", len(farmers), "replicationFactor", a.replicationFactor)
	}

	reply.Placements = placements
	return nil
}

func (a *BridgeAPI) ScheduleAudit(args *rpc.ScheduleAuditArgs, reply *rpc.ScheduleAuditReply) error {
	log.Infow("rpc", "event", "BridgeAPI.ScheduleAudit", "args", args)
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	items, err := a.dispatcher.ScheduleShard(ctx, a.contracts, args.ShardHash)
	if err != nil {
		return err
	}

	reply.Items = items
	return nil
}

func (a *BridgeAPI) ListContacts(_ *rpc.ListContactsArgs, reply *rpc.ListContactsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	contacts, err := a.directory.All(ctx)
	if err != nil {
		return err
	}

	reply.Contacts = contacts
	return nil
}
