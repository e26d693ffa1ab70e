package farmer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"
)

var (
	ErrShardNotFound = errors.New("shard not found")
)

var (
	shardsPrefix = ds.NewKey("/shards")
	leavesPrefix = ds.NewKey("/leaves")
)

// ShardStore keeps shard bytes and the audit leaves agreed for each shard.
type ShardStore struct {
	shards ds.Batching
}

func NewShardStore(store ds.Batching) *ShardStore {
	return &ShardStore{shards: store}
}

func OpenShardStore(dsPath string) (*ShardStore, error) {
	p := fmt.Sprintf("%s/shards", dsPath)
	store, err := dslvl.NewDatastore(p, nil)
	if err != nil {
		return nil, err
	}

	return NewShardStore(store), nil
}

func (s *ShardStore) Close() error {
	return s.shards.Close()
}

// Put writes the shard and its leaves in one batch.
func (s *ShardStore) Put(ctx context.Context, shardHash string, data []byte, leaves []string) error {
	b, err := json.Marshal(leaves)
	if err != nil {
		return err
	}

	batch, err := s.shards.Batch(ctx)
	if err != nil {
		return err
	}
	if err := batch.Put(ctx, shardsPrefix.ChildString(shardHash), data); err != nil {
		return err
	}
	if err := batch.Put(ctx, leavesPrefix.ChildString(shardHash), b); err != nil {
		return err
	}

	return batch.Commit(ctx)
}

func (s *ShardStore) Has(ctx context.Context, shardHash string) (bool, error) {
	return s.shards.Has(ctx, shardsPrefix.ChildString(shardHash))
}

func (s *ShardStore) Get(ctx context.Context, shardHash string) ([]byte, error) {
	data, err := s.shards.Get(ctx, shardsPrefix.ChildString(shardHash))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrShardNotFound, shardHash)
	}

	return data, err
}

func (s *ShardStore) Leaves(ctx context.Context, shardHash string) ([]string, error) {
	b, err := s.shards.Get(ctx, leavesPrefix.ChildString(shardHash))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrShardNotFound, shardHash)
	}
	if err != nil {
		return nil, err
	}

	var leaves []string
	if err := json.Unmarshal(b, &leaves); err != nil {
		return nil, err
	}

	return leaves, nil
}

// Hashes lists the hashes of every stored shard.
func (s *ShardStore) Hashes(ctx context.Context) ([]string, error) {
	res, err := s.shards.Query(ctx, dsq.Query{Prefix: shardsPrefix.String(), KeysOnly: true})
	if err != nil {
		return nil, err
	}

	entries, err := res.Rest()
	if err != nil {
		return nil, err
	}

	hashes := make([]string, 0, len(entries))
	for _, e := range entries {
		hashes = append(hashes, ds.RawKey(e.Key).BaseNamespace())
	}

	return hashes, nil
}
