package farmer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pyropy/dsn/core/audit"
	"github.com/pyropy/dsn/core/model"
	"github.com/pyropy/dsn/lib/cache"
	"github.com/pyropy/dsn/lib/checksum"
	"github.com/pyropy/dsn/lib/cmap"
	"github.com/pyropy/dsn/lib/merkle"
)

var (
	ErrDataNotFoundInCache = errors.New("data not found in cache")
	ErrShardHashMismatch   = errors.New("shard data does not match its hash")
)

const stagingCapacity = 100

// Uploader pushes a shard and its audit leaves to another farmer.
type Uploader interface {
	Upload(ctx context.Context, addr, shardHash string, data []byte, leaves []string) error
}

// Farmer stores shards and answers audit challenges over them.
type Farmer struct {
	ID string

	shards   *ShardStore
	staged   *cache.LRU[uint32, []byte]
	trees    *cmap.Map[string, *merkle.Tree]
	uploader Uploader
	log      *zap.SugaredLogger
}

func New(shards *ShardStore, uploader Uploader, log *zap.SugaredLogger) *Farmer {
	return &Farmer{
		shards:   shards,
		staged:   cache.NewLRU[uint32, []byte](stagingCapacity),
		trees:    cmap.NewMap[string, *merkle.Tree](),
		uploader: uploader,
		log:      log,
	}
}

// ShardHash is the content address of a shard.
func ShardHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ReceiveBytes stages data until a StoreShard call claims it by checksum.
func (f *Farmer) ReceiveBytes(data []byte, sum uint32) error {
	if err := checksum.Verify(data, sum); err != nil {
		return err
	}

	f.staged.Put(sum, data)
	return nil
}

// StoreShard persists staged data under shardHash together with its audit
// leaves. A shard that is already stored keeps its original leaves.
func (f *Farmer) StoreShard(ctx context.Context, shardHash string, sum uint32, leaves []string) error {
	data, ok := f.staged.Get(sum)
	if !ok {
		return ErrDataNotFoundInCache
	}
	if ShardHash(data) != shardHash {
		return fmt.Errorf("%w: %s", ErrShardHashMismatch, shardHash)
	}

	held, err := f.shards.Has(ctx, shardHash)
	if err != nil {
		return err
	}
	if held {
		f.staged.Take(sum)
		f.log.Infow("farmer", "status", "shard already stored", "shard", shardHash)
		return nil
	}

	tree, err := audit.BuildTree(leaves)
	if err != nil {
		return err
	}

	if err := f.shards.Put(ctx, shardHash, data, leaves); err != nil {
		return err
	}

	f.staged.Take(sum)
	f.trees.Set(shardHash, tree)
	f.log.Infow("farmer", "status", "shard stored", "shard", shardHash, "size", len(data))
	return nil
}

// Shards lists the hashes of every stored shard.
func (f *Farmer) Shards(ctx context.Context) ([]string, error) {
	return f.shards.Hashes(ctx)
}

// Challenge answers an audit challenge for shardHash.
func (f *Farmer) Challenge(ctx context.Context, shardHash string, challenge []byte) (model.Proof, error) {
	data, err := f.shards.Get(ctx, shardHash)
	if err != nil {
		return model.Proof{}, err
	}

	tree, err := f.tree(ctx, shardHash)
	if err != nil {
		return model.Proof{}, err
	}

	return audit.Respond(tree, data, challenge)
}

// MirrorShard pushes a stored shard to the farmer at target.
func (f *Farmer) MirrorShard(ctx context.Context, shardHash, target string) error {
	data, err := f.shards.Get(ctx, shardHash)
	if err != nil {
		return err
	}

	leaves, err := f.shards.Leaves(ctx, shardHash)
	if err != nil {
		return err
	}

	if err := f.uploader.Upload(ctx, target, shardHash, data, leaves); err != nil {
		return err
	}

	f.log.Infow("farmer", "status", "shard mirrored", "shard", shardHash, "target", target)
	return nil
}

func (f *Farmer) tree(ctx context.Context, shardHash string) (*merkle.Tree, error) {
	if tree, ok := f.trees.Get(shardHash); ok {
		return tree, nil
	}

	leaves, err := f.shards.Leaves(ctx, shardHash)
	if err != nil {
		return nil, err
	}

	tree, err := audit.BuildTree(leaves)
	if err != nil {
		return nil, err
	}

	tree, _ = f.trees.GetOrSet(shardHash, tree)
	return tree, nil
}
