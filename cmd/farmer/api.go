package main

import (
	"context"
	"time"

	core "github.com/pyropy/dsn/core/farmer"
	rpc "github.com/pyropy/dsn/rpc/farmer"
)

const rpcTimeout = 30 * time.Second

type FarmerAPI struct {
	farmer *core.Farmer
}

func NewFarmerAPI(farmer *core.Farmer) *FarmerAPI {
	return &FarmerAPI{
		farmer: farmer,
	}
}

func (a *FarmerAPI) Ping(_ *rpc.PingArgs, reply *rpc.PingReply) error {
	reply.FarmerID = a.farmer.ID
	return nil
}

func (a *FarmerAPI) Challenge(args *rpc.ChallengeArgs, reply *rpc.ChallengeReply) error {
	log.Infow("rpc", "event", "FarmerAPI.Challenge", "shard", args.ShardHash)
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	proof, err := a.farmer.Challenge(ctx, args.ShardHash, args.Challenge)
	if err != nil {
		return err
	}

	reply.Response = proof.Response
	reply.Index = proof.Index
	reply.Branch = proof.Branch
	return nil
}

func (a *FarmerAPI) TransferData(args *rpc.TransferDataArgs, reply *rpc.TransferDataReply) error {
	log.Infow("rpc", "event", "FarmerAPI.TransferData", "checksum", args.Checksum)

	if err := a.farmer.ReceiveBytes(args.Data, args.Checksum); err != nil {
		return err
	}

	reply.NumBytesReceived = len(args.Data)
	return nil
}

func (a *FarmerAPI) StoreShard(args *rpc.StoreShardArgs, _ *rpc.StoreShardReply) error {
	log.Infow("rpc", "event", "FarmerAPI.StoreShard", "shard", args.ShardHash, "checksum", args.Checksum)
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	return a.farmer.StoreShard(ctx, args.ShardHash, args.Checksum, args.Leaves)
}

func (a *FarmerAPI) MirrorShard(args *rpc.MirrorShardArgs, _ *rpc.MirrorShardReply) error {
	log.Infow("rpc", "event", "FarmerAPI.MirrorShard", "args", args)
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	return a.farmer.MirrorShard(ctx, args.ShardHash, args.Target)
}
