package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyropy/dsn/core/model"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewRedisStore(rdb, "audit", "worker-1"), mr
}

func testItem(id string) model.QueueItem {
	return model.QueueItem{
		ID:        id,
		Timestamp: 1700000000000,
		Root:      "root",
		Depth:     3,
		Challenge: "challenge-" + id,
		Hash:      "hash",
		Farmer:    "farmer",
		Contract:  "contract",
	}
}

func collect(t *testing.T, s *RedisStore, p Partition) []string {
	t.Helper()
	ids := []string{}
	for item, err := range s.PeekAll(context.Background(), p) {
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}
	return ids
}

func TestKeysAreNamespaced(t *testing.T) {
	s, _ := newRedisStoreTest(t)

	assert.Equal(t, "{audit}:worker-1:pending", s.Key(Pending))
	assert.Equal(t, "{audit}:ready", s.Key(Ready))
	assert.Equal(t, "{audit}:final", s.Key(Final))
}

func TestPushPopFIFO(t *testing.T) {
	s, _ := newRedisStoreTest(t)
	ctx := context.Background()

	n, err := s.Push(ctx, Ready, testItem("a"), testItem("b"), testItem("c"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, want := range []string{"a", "b", "c"} {
		item, err := s.Pop(ctx, Ready)
		require.NoError(t, err)
		assert.Equal(t, want, item.ID)
		assert.Equal(t, testItem(want), item)
	}
}

func TestPopEmptyReturnsSignal(t *testing.T) {
	s, _ := newRedisStoreTest(t)

	_, err := s.Pop(context.Background(), Ready)
	assert.ErrorIs(t, err, ErrQueueEmpty)

	_, err = s.Move(context.Background(), Ready, Pending)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestFinalRejectsItemOperations(t *testing.T) {
	s, _ := newRedisStoreTest(t)
	ctx := context.Background()

	_, err := s.Push(ctx, Final, testItem("a"))
	assert.ErrorIs(t, err, ErrUnknownPartition)

	_, err = s.Pop(ctx, Final)
	assert.ErrorIs(t, err, ErrUnknownPartition)

	for _, err := range s.PeekAll(ctx, Final) {
		assert.ErrorIs(t, err, ErrUnknownPartition)
	}
}

func TestPeekAllIsRestartable(t *testing.T) {
	s, _ := newRedisStoreTest(t)
	ctx := context.Background()

	items := make([]model.QueueItem, 0, 250)
	for i := 0; i < 250; i++ {
		items = append(items, testItem(fmt.Sprint(i)))
	}
	_, err := s.Push(ctx, Pending, items...)
	require.NoError(t, err)

	first := collect(t, s, Pending)
	assert.Len(t, first, 250)
	assert.Equal(t, "0", first[0])
	assert.Equal(t, "249", first[249])

	_, err = s.Pop(ctx, Pending)
	require.NoError(t, err)

	second := collect(t, s, Pending)
	assert.Len(t, second, 249)
	assert.Equal(t, "1", second[0])
}

func TestPeekAllStopsEarly(t *testing.T) {
	s, _ := newRedisStoreTest(t)
	ctx := context.Background()

	_, err := s.Push(ctx, Ready, testItem("a"), testItem("b"))
	require.NoError(t, err)

	seen := 0
	for range s.PeekAll(ctx, Ready) {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestMoveAndRemove(t *testing.T) {
	s, _ := newRedisStoreTest(t)
	ctx := context.Background()

	_, err := s.Push(ctx, Ready, testItem("a"), testItem("b"))
	require.NoError(t, err)

	item, err := s.Move(ctx, Ready, Pending)
	require.NoError(t, err)
	assert.Equal(t, "a", item.ID)
	assert.Equal(t, []string{"b"}, collect(t, s, Ready))
	assert.Equal(t, []string{"a"}, collect(t, s, Pending))

	require.NoError(t, s.Remove(ctx, Pending, item))
	n, err := s.Len(ctx, Pending)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPendingIsPerWorker(t *testing.T) {
	s, mr := newRedisStoreTest(t)
	ctx := context.Background()

	other := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "audit", "worker-2")

	_, err := s.Push(ctx, Pending, testItem("mine"))
	require.NoError(t, err)
	_, err = s.Push(ctx, Ready, testItem("shared"))
	require.NoError(t, err)

	n, err := other.Len(ctx, Pending)
	require.NoError(t, err)
	assert.Zero(t, n)

	item, err := other.Pop(ctx, Ready)
	require.NoError(t, err)
	assert.Equal(t, "shared", item.ID)
}

func TestConcurrentMoveNeverDuplicates(t *testing.T) {
	s, mr := newRedisStoreTest(t)
	ctx := context.Background()

	items := make([]model.QueueItem, 0, 100)
	for i := 0; i < 100; i++ {
		items = append(items, testItem(fmt.Sprint(i)))
	}
	_, err := s.Push(ctx, Ready, items...)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			defer rdb.Close()
			worker := NewRedisStore(rdb, "audit", fmt.Sprintf("w%d", w))

			for {
				item, err := worker.Move(ctx, Ready, Pending)
				if err != nil {
					return
				}
				mu.Lock()
				seen[item.ID]++
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, seen, 100)
	for id, count := range seen {
		assert.Equal(t, 1, count, "item %s", id)
	}
}

func TestConcurrentPushBatchesDoNotInterleave(t *testing.T) {
	s, mr := newRedisStoreTest(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for producer := 0; producer < 5; producer++ {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			defer rdb.Close()
			p := NewRedisStore(rdb, "audit", "producer")

			batch := make([]model.QueueItem, 0, 10)
			for i := 0; i < 10; i++ {
				batch = append(batch, testItem(fmt.Sprintf("%d-%d", producer, i)))
			}
			_, err := p.Push(ctx, Ready, batch...)
			assert.NoError(t, err)
		}(producer)
	}
	wg.Wait()

	ids := collect(t, s, Ready)
	require.Len(t, ids, 50)
	for start := 0; start < 50; start += 10 {
		var producer, index int
		_, err := fmt.Sscanf(ids[start], "%d-%d", &producer, &index)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			assert.Equal(t, fmt.Sprintf("%d-%d", producer, i), ids[start+i])
		}
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	s, _ := newRedisStoreTest(t)
	ctx := context.Background()

	record := model.AuditRecord{Item: testItem("a"), Result: true, CommittedAt: 1}

	written, err := s.Commit(ctx, record)
	require.NoError(t, err)
	assert.True(t, written)

	record.Result = false
	written, err = s.Commit(ctx, record)
	require.NoError(t, err)
	assert.False(t, written)

	var results []model.AuditRecord
	for r, err := range s.Results(ctx) {
		require.NoError(t, err)
		results = append(results, r)
	}
	require.Len(t, results, 1)
	assert.True(t, results[0].Result)

	n, err := s.Len(ctx, Final)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.Clear(ctx, Final))
	written, err = s.Commit(ctx, record)
	require.NoError(t, err)
	assert.True(t, written)
}

func TestStoreUnavailable(t *testing.T) {
	s, mr := newRedisStoreTest(t)
	mr.Close()

	_, err := s.Push(context.Background(), Ready, testItem("a"))
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "push", storeErr.Op)
	assert.Equal(t, Ready, storeErr.Partition)

	_, err = s.Move(context.Background(), Ready, Pending)
	assert.ErrorAs(t, err, &storeErr)
}
