package audit

import (
	"context"
	"encoding/hex"
	"fmt"
	"iter"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/pyropy/dsn/core/model"
	"github.com/pyropy/dsn/core/queue"
)

func newTestStore(t *testing.T) *queue.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return queue.NewRedisStore(rdb, "audit", "worker-1")
}

func testLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// countingStore records how often a partition was read in full.
type countingStore struct {
	queue.Store

	mu      sync.Mutex
	peekAll map[queue.Partition]int
}

func newCountingStore(s queue.Store) *countingStore {
	return &countingStore{Store: s, peekAll: map[queue.Partition]int{}}
}

func (s *countingStore) PeekAll(ctx context.Context, p queue.Partition) iter.Seq2[model.QueueItem, error] {
	s.mu.Lock()
	s.peekAll[p]++
	s.mu.Unlock()

	return s.Store.PeekAll(ctx, p)
}

func (s *countingStore) peekAllCalls(p queue.Partition) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peekAll[p]
}

// recordingAuditor wraps an Auditor and counts calls per item id.
type recordingAuditor struct {
	Auditor

	mu        sync.Mutex
	verified  []string
	committed []string
	results   map[string]bool
}

func newRecordingAuditor(a Auditor) *recordingAuditor {
	return &recordingAuditor{Auditor: a, results: map[string]bool{}}
}

func (a *recordingAuditor) Verify(ctx context.Context, item model.QueueItem) (bool, error) {
	a.mu.Lock()
	a.verified = append(a.verified, item.ID)
	a.mu.Unlock()

	return a.Auditor.Verify(ctx, item)
}

func (a *recordingAuditor) Commit(ctx context.Context, item model.QueueItem, result bool, reason string) error {
	a.mu.Lock()
	a.committed = append(a.committed, item.ID)
	a.results[item.ID] = result
	a.mu.Unlock()

	return a.Auditor.Commit(ctx, item, result, reason)
}

func (a *recordingAuditor) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.verified), len(a.committed)
}

// stubAuditor answers Verify from a function and commits to a store.
type stubAuditor struct {
	store  queue.Store
	verify func(item model.QueueItem) (bool, error)
}

func (a *stubAuditor) Verify(_ context.Context, item model.QueueItem) (bool, error) {
	return a.verify(item)
}

func (a *stubAuditor) Commit(ctx context.Context, item model.QueueItem, result bool, reason string) error {
	_, err := a.store.Commit(ctx, model.AuditRecord{Item: item, Result: result, Reason: reason})
	return err
}

// farmerStub holds shards in memory and answers challenges like a farmer.
type farmerStub struct {
	mu     sync.Mutex
	shards map[string][]byte
	trees  map[string]model.AuditTree
	calls  int
	answer func(ctx context.Context) error
}

func newFarmerStub() *farmerStub {
	return &farmerStub{shards: map[string][]byte{}, trees: map[string]model.AuditTree{}}
}

func (f *farmerStub) store(hash string, shard []byte, tree model.AuditTree) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shards[hash] = shard
	f.trees[hash] = tree
}

func (f *farmerStub) Challenge(ctx context.Context, _ model.Contact, shardHash string, challenge []byte) (model.Proof, error) {
	f.mu.Lock()
	f.calls++
	shard, ok := f.shards[shardHash]
	tree := f.trees[shardHash]
	answer := f.answer
	f.mu.Unlock()

	if answer != nil {
		if err := answer(ctx); err != nil {
			return model.Proof{}, err
		}
	}

	if !ok {
		return model.Proof{}, fmt.Errorf("shard %s not found", shardHash)
	}

	mt, err := BuildTree(tree.Leaves)
	if err != nil {
		return model.Proof{}, err
	}

	return Respond(mt, shard, challenge)
}

type contactsStub map[string]model.Contact

func (c contactsStub) Get(_ context.Context, id string) (model.Contact, error) {
	contact, ok := c[id]
	if !ok {
		return model.Contact{}, fmt.Errorf("%w: %s", model.ErrContactNotFound, id)
	}
	return contact, nil
}

// auditFixture returns a contract for a random shard stored on farmer "farmer-1".
func auditFixture(t *testing.T, farmer *farmerStub, challenges int) (model.Contract, []byte) {
	t.Helper()
	shard := []byte(fmt.Sprintf("shard payload %p", t))
	tree, err := GenerateChallenges(shard, challenges)
	require.NoError(t, err)

	contract := model.NewContract("shard-1", "farmer-1", int64(len(shard)), tree)
	farmer.store(contract.ShardHash, shard, tree)

	return contract, shard
}

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
