package client

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pyropy/dsn/core/audit"
	"github.com/pyropy/dsn/core/farmer"
	"github.com/pyropy/dsn/core/model"
	"github.com/pyropy/dsn/rpc/bridge"
)

const DefaultChallenges = 16

var (
	ErrEmptyShard = errors.New("shard is empty")
	ErrNoCopies   = errors.New("shard was not stored on any farmer")
)

type Bridge interface {
	CreateContract(ctx context.Context, shardHash string, size int64, tree model.AuditTree) ([]bridge.Placement, error)
	ScheduleAudit(ctx context.Context, shardHash string) ([]model.QueueItem, error)
	ListContacts(ctx context.Context) ([]model.Contact, error)
}

type FarmerUploader interface {
	Upload(ctx context.Context, addr, shardHash string, data []byte, leaves []string) error
}

// Client uploads shards to the network and schedules audits over them.
type Client struct {
	bridge  Bridge
	farmers FarmerUploader
	log     *zap.SugaredLogger
}

func NewClient(bridge Bridge, farmers FarmerUploader, log *zap.SugaredLogger) *Client {
	return &Client{
		bridge:  bridge,
		farmers: farmers,
		log:     log,
	}
}

type UploadResult struct {
	ShardHash string
	Stored    []bridge.Placement
	Failed    []bridge.Placement
}

// UploadFile reads path and uploads it as a single shard.
func (c *Client) UploadFile(ctx context.Context, path string, challenges int) (UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return UploadResult{}, err
	}

	return c.Upload(ctx, data, challenges)
}

// Upload contracts the shard with the bridge and pushes it to every placed
// farmer. Partial failures are returned alongside the stored copies.
func (c *Client) Upload(ctx context.Context, data []byte, challenges int) (UploadResult, error) {
	if len(data) == 0 {
		return UploadResult{}, ErrEmptyShard
	}

	tree, err := audit.GenerateChallenges(data, challenges)
	if err != nil {
		return UploadResult{}, err
	}

	result := UploadResult{ShardHash: farmer.ShardHash(data)}
	placements, err := c.bridge.CreateContract(ctx, result.ShardHash, int64(len(data)), tree)
	if err != nil {
		return result, err
	}

	var errs error
	for _, p := range placements {
		if err := c.farmers.Upload(ctx, p.Address, result.ShardHash, data, tree.Leaves); err != nil {
			c.log.Warnw("client", "status", "upload failed", "farmer", p.FarmerID, "address", p.Address, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("farmer %s: %w", p.FarmerID, err))
			result.Failed = append(result.Failed, p)
			continue
		}
		result.Stored = append(result.Stored, p)
	}

	if len(result.Stored) == 0 {
		return result, multierr.Append(ErrNoCopies, errs)
	}

	c.log.Infow("client", "status", "shard uploaded", "shard", result.ShardHash, "copies", len(result.Stored))
	return result, errs
}

func (c *Client) Audit(ctx context.Context, shardHash string) ([]model.QueueItem, error) {
	return c.bridge.ScheduleAudit(ctx, shardHash)
}

func (c *Client) Contacts(ctx context.Context) ([]model.Contact, error) {
	return c.bridge.ListContacts(ctx)
}
