package bridge

import (
	"context"

	"github.com/pyropy/dsn/core/model"
	"github.com/pyropy/dsn/lib/rpcutil"
)

type Client struct {
	addr string
}

func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// RegisterFarmer announces a farmer and returns the id the bridge knows it by.
func (c *Client) RegisterFarmer(ctx context.Context, id, address string) (string, error) {
	var reply RegisterFarmerReply
	args := &RegisterFarmerArgs{ID: id, Address: address}
	if err := rpcutil.Call(ctx, c.addr, "BridgeAPI.RegisterFarmer", args, &reply); err != nil {
		return "", err
	}

	return reply.ID, nil
}

func (c *Client) Heartbeat(ctx context.Context, farmerID string) error {
	var reply HeartbeatReply
	return rpcutil.Call(ctx, c.addr, "BridgeAPI.Heartbeat", &HeartbeatArgs{FarmerID: farmerID}, &reply)
}

func (c *Client) CreateContract(ctx context.Context, shardHash string, size int64, tree model.AuditTree) ([]Placement, error) {
	var reply CreateContractReply
	args := &CreateContractArgs{ShardHash: shardHash, Size: size, Tree: tree}
	if err := rpcutil.Call(ctx, c.addr, "BridgeAPI.CreateContract", args, &reply); err != nil {
		return nil, err
	}

	return reply.Placements, nil
}

func (c *Client) ScheduleAudit(ctx context.Context, shardHash string) ([]model.QueueItem, error) {
	var reply ScheduleAuditReply
	if err := rpcutil.Call(ctx, c.addr, "BridgeAPI.ScheduleAudit", &ScheduleAuditArgs{ShardHash: shardHash}, &reply); err != nil {
		return nil, err
	}

	return reply.Items, nil
}

func (c *Client) ListContacts(ctx context.Context) ([]model.Contact, error) {
	var reply ListContactsReply
	if err := rpcutil.Call(ctx, c.addr, "BridgeAPI.ListContacts", &ListContactsArgs{}, &reply); err != nil {
		return nil, err
	}

	return reply.Contacts, nil
}
