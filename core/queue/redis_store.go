package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/redis/go-redis/v9"

	"github.com/pyropy/dsn/core/model"
)

const pageSize = 100

const commitScript = `
if redis.call("SADD", KEYS[2], ARGV[1]) == 1 then
  redis.call("RPUSH", KEYS[1], ARGV[2])
  return 1
end
return 0
`

var commitLua = redis.NewScript(commitScript)

// RedisStore keeps partitions in Redis lists. Ready and Final are shared by
// every worker of a namespace, Pending is private to a worker.
type RedisStore struct {
	redis     redis.UniversalClient
	namespace string
	worker    string
}

func NewRedisStore(rdb redis.UniversalClient, namespace, worker string) *RedisStore {
	return &RedisStore{
		redis:     rdb,
		namespace: namespace,
		worker:    worker,
	}
}

// Key returns the redis key of partition p. The hash tag pins every key of a
// namespace to one cluster slot.
func (s *RedisStore) Key(p Partition) string {
	if p == Pending {
		return fmt.Sprintf("{%s}:%s:%s", s.namespace, s.worker, p)
	}

	return fmt.Sprintf("{%s}:%s", s.namespace, p)
}

func (s *RedisStore) finalIDsKey() string {
	return s.Key(Final) + ":ids"
}

func (s *RedisStore) itemKey(p Partition) (string, error) {
	switch p {
	case Pending, Ready:
		return s.Key(p), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownPartition, p)
	}
}

func (s *RedisStore) Push(ctx context.Context, p Partition, items ...model.QueueItem) (int, error) {
	key, err := s.itemKey(p)
	if err != nil {
		return 0, err
	}

	if len(items) == 0 {
		return 0, nil
	}

	values := make([]any, 0, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return 0, err
		}
		values = append(values, b)
	}

	if err := s.redis.RPush(ctx, key, values...).Err(); err != nil {
		return 0, &StoreError{Op: "push", Partition: p, Err: err}
	}

	return len(items), nil
}

func (s *RedisStore) Pop(ctx context.Context, p Partition) (model.QueueItem, error) {
	key, err := s.itemKey(p)
	if err != nil {
		return model.QueueItem{}, err
	}

	raw, err := s.redis.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return model.QueueItem{}, ErrQueueEmpty
	}
	if err != nil {
		return model.QueueItem{}, &StoreError{Op: "pop", Partition: p, Err: err}
	}

	return decodeItem(p, raw)
}

func (s *RedisStore) PeekAll(ctx context.Context, p Partition) iter.Seq2[model.QueueItem, error] {
	return func(yield func(model.QueueItem, error) bool) {
		key, err := s.itemKey(p)
		if err != nil {
			yield(model.QueueItem{}, err)
			return
		}

		readPages(ctx, s.redis, key, p, func(raw string) bool {
			item, err := decodeItem(p, raw)
			return yield(item, err)
		}, func(err error) {
			yield(model.QueueItem{}, err)
		})
	}
}

func (s *RedisStore) Move(ctx context.Context, from, to Partition) (model.QueueItem, error) {
	src, err := s.itemKey(from)
	if err != nil {
		return model.QueueItem{}, err
	}

	dst, err := s.itemKey(to)
	if err != nil {
		return model.QueueItem{}, err
	}

	raw, err := s.redis.LMove(ctx, src, dst, "LEFT", "RIGHT").Result()
	if errors.Is(err, redis.Nil) {
		return model.QueueItem{}, ErrQueueEmpty
	}
	if err != nil {
		return model.QueueItem{}, &StoreError{Op: "move", Partition: from, Err: err}
	}

	return decodeItem(to, raw)
}

func (s *RedisStore) Remove(ctx context.Context, p Partition, item model.QueueItem) error {
	key, err := s.itemKey(p)
	if err != nil {
		return err
	}

	b, err := json.Marshal(item)
	if err != nil {
		return err
	}

	if err := s.redis.LRem(ctx, key, 1, b).Err(); err != nil {
		return &StoreError{Op: "remove", Partition: p, Err: err}
	}

	return nil
}

func (s *RedisStore) Len(ctx context.Context, p Partition) (int64, error) {
	n, err := s.redis.LLen(ctx, s.Key(p)).Result()
	if err != nil {
		return 0, &StoreError{Op: "len", Partition: p, Err: err}
	}

	return n, nil
}

func (s *RedisStore) Clear(ctx context.Context, p Partition) error {
	keys := []string{s.Key(p)}
	if p == Final {
		keys = append(keys, s.finalIDsKey())
	}

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return &StoreError{Op: "clear", Partition: p, Err: err}
	}

	return nil
}

func (s *RedisStore) Commit(ctx context.Context, record model.AuditRecord) (bool, error) {
	b, err := json.Marshal(record)
	if err != nil {
		return false, err
	}

	keys := []string{s.Key(Final), s.finalIDsKey()}
	written, err := commitLua.Run(ctx, s.redis, keys, record.Item.ID, b).Int()
	if err != nil {
		return false, &StoreError{Op: "commit", Partition: Final, Err: err}
	}

	return written == 1, nil
}

func (s *RedisStore) Results(ctx context.Context) iter.Seq2[model.AuditRecord, error] {
	return func(yield func(model.AuditRecord, error) bool) {
		readPages(ctx, s.redis, s.Key(Final), Final, func(raw string) bool {
			var record model.AuditRecord
			if err := json.Unmarshal([]byte(raw), &record); err != nil {
				return yield(record, &StoreError{Op: "decode", Partition: Final, Err: err})
			}
			return yield(record, nil)
		}, func(err error) {
			yield(model.AuditRecord{}, err)
		})
	}
}

// readPages walks a list in LRANGE pages until it is exhausted or visit
// returns false.
func readPages(ctx context.Context, rdb redis.UniversalClient, key string, p Partition, visit func(string) bool, fail func(error)) {
	for start := int64(0); ; start += pageSize {
		page, err := rdb.LRange(ctx, key, start, start+pageSize-1).Result()
		if err != nil {
			fail(&StoreError{Op: "read", Partition: p, Err: err})
			return
		}

		for _, raw := range page {
			if !visit(raw) {
				return
			}
		}

		if len(page) < pageSize {
			return
		}
	}
}

func decodeItem(p Partition, raw string) (model.QueueItem, error) {
	var item model.QueueItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return item, &StoreError{Op: "decode", Partition: p, Err: err}
	}

	return item, nil
}
