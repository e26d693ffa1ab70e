package contracts

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"

	"github.com/pyropy/dsn/core/model"
)

var (
	ErrContractNotFound = errors.New("contract not found")
	ErrNoChallenges     = errors.New("contract has no unused challenges")
)

// Store persists storage contracts. Lookups by farmer and shard scan the
// whole keyspace.
type Store struct {
	mu        sync.Mutex
	contracts ds.Datastore
}

func NewStore(store ds.Datastore) *Store {
	return &Store{contracts: store}
}

// Open opens the leveldb backed contract store under dsPath.
func Open(dsPath string) (*Store, error) {
	p := fmt.Sprintf("%s/contracts", dsPath)
	store, err := dslvl.NewDatastore(p, nil)
	if err != nil {
		return nil, err
	}

	return NewStore(store), nil
}

func (s *Store) Close() error {
	return s.contracts.Close()
}

func (s *Store) Save(ctx context.Context, contract model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.put(ctx, contract)
}

func (s *Store) Get(ctx context.Context, id string) (model.Contract, error) {
	return s.get(ctx, id)
}

// ByFarmer returns the valid contracts held by farmerID.
func (s *Store) ByFarmer(ctx context.Context, farmerID string) ([]model.Contract, error) {
	return s.filter(ctx, func(c model.Contract) bool {
		return c.FarmerID == farmerID && !c.Invalidated
	})
}

// ByShard returns every contract for shardHash, invalidated ones included.
func (s *Store) ByShard(ctx context.Context, shardHash string) ([]model.Contract, error) {
	return s.filter(ctx, func(c model.Contract) bool {
		return c.ShardHash == shardHash
	})
}

func (s *Store) All(ctx context.Context) ([]model.Contract, error) {
	return s.filter(ctx, func(model.Contract) bool { return true })
}

func (s *Store) Invalidate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contract, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if contract.Invalidated {
		return nil
	}

	contract.Invalidated = true
	contract.InvalidatedAt = time.Now()
	return s.put(ctx, contract)
}

// NextChallenge consumes the next unused challenge of the contract and
// returns it with its leaf index.
func (s *Store) NextChallenge(ctx context.Context, id string) (int, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contract, err := s.get(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	if contract.NextChallenge >= len(contract.Challenges) {
		return 0, nil, fmt.Errorf("%w: %s", ErrNoChallenges, id)
	}

	index := contract.NextChallenge
	challenge, err := hex.DecodeString(contract.Challenges[index])
	if err != nil {
		return 0, nil, err
	}

	contract.NextChallenge++
	if err := s.put(ctx, contract); err != nil {
		return 0, nil, err
	}

	return index, challenge, nil
}

func (s *Store) filter(ctx context.Context, keep func(model.Contract) bool) ([]model.Contract, error) {
	res, err := s.contracts.Query(ctx, dsq.Query{})
	if err != nil {
		return nil, err
	}
	defer res.Close()

	contracts := make([]model.Contract, 0)
	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}
		if r.Error != nil {
			return nil, r.Error
		}

		var contract model.Contract
		if err := json.Unmarshal(r.Value, &contract); err != nil {
			return nil, err
		}
		if keep(contract) {
			contracts = append(contracts, contract)
		}
	}

	slices.SortFunc(contracts, func(a, b model.Contract) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return contracts, nil
}

func (s *Store) get(ctx context.Context, id string) (model.Contract, error) {
	b, err := s.contracts.Get(ctx, ds.NewKey(id))
	if errors.Is(err, ds.ErrNotFound) {
		return model.Contract{}, fmt.Errorf("%w: %s", ErrContractNotFound, id)
	}
	if err != nil {
		return model.Contract{}, err
	}

	var contract model.Contract
	if err := json.Unmarshal(b, &contract); err != nil {
		return model.Contract{}, err
	}

	return contract, nil
}

func (s *Store) put(ctx context.Context, contract model.Contract) error {
	b, err := json.Marshal(contract)
	if err != nil {
		return err
	}

	return s.contracts.Put(ctx, ds.NewKey(contract.ID), b)
}
