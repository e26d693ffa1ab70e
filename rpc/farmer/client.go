package farmer

import (
	"context"

	"github.com/pyropy/dsn/core/model"
	"github.com/pyropy/dsn/lib/checksum"
	"github.com/pyropy/dsn/lib/rpcutil"
)

// Client talks to farmers by contact address. A connection is dialled per call.
type Client struct{}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) Ping(ctx context.Context, contact model.Contact) error {
	var reply PingReply
	return rpcutil.Call(ctx, contact.Address, "FarmerAPI.Ping", &PingArgs{}, &reply)
}

func (c *Client) Challenge(ctx context.Context, contact model.Contact, shardHash string, challenge []byte) (model.Proof, error) {
	var reply ChallengeReply
	args := &ChallengeArgs{ShardHash: shardHash, Challenge: challenge}
	if err := rpcutil.Call(ctx, contact.Address, "FarmerAPI.Challenge", args, &reply); err != nil {
		return model.Proof{}, err
	}

	return model.Proof{
		Response: reply.Response,
		Index:    reply.Index,
		Branch:   reply.Branch,
	}, nil
}

// MirrorShard asks source to push shardHash to target.
func (c *Client) MirrorShard(ctx context.Context, source model.Contact, shardHash string, target model.Contact) error {
	var reply MirrorShardReply
	args := &MirrorShardArgs{ShardHash: shardHash, Target: target.Address}
	return rpcutil.Call(ctx, source.Address, "FarmerAPI.MirrorShard", args, &reply)
}

// Upload transfers data to the farmer at addr and stores it as shardHash
// together with its audit leaves.
func (c *Client) Upload(ctx context.Context, addr, shardHash string, data []byte, leaves []string) error {
	client, err := rpcutil.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()

	sum := checksum.Calculate(data)

	var transferReply TransferDataReply
	transferArgs := &TransferDataArgs{Checksum: sum, Data: data}
	if err := rpcutil.Invoke(ctx, client, "FarmerAPI.TransferData", transferArgs, &transferReply); err != nil {
		return err
	}

	var storeReply StoreShardReply
	storeArgs := &StoreShardArgs{ShardHash: shardHash, Checksum: sum, Leaves: leaves}
	return rpcutil.Invoke(ctx, client, "FarmerAPI.StoreShard", storeArgs, &storeReply)
}
