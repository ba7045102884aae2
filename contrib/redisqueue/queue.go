// Package redisqueue bridges a Redis list to a pool. Producers push
// serializable task descriptors with Enqueue; Consume pops them with BLPOP
// and submits the handler-built tasks to any pool.Pool. The pool never
// learns that its work arrived over the wire.
//
// Values are stored as JSON, one list element per descriptor. The list key
// is owned by the Queue; sharing it with other writers is fine as long as
// they agree on the payload shape.
package redisqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Queue is a typed view over one Redis list.
type Queue[T any] struct {
	rdb *redis.Client
	key string
}

// New wraps the list stored at key on client.
func New[T any](client *redis.Client, key string) *Queue[T] {
	return &Queue[T]{rdb: client, key: key}
}

// Key returns the Redis list key this queue reads and writes.
func (q *Queue[T]) Key() string {
	return q.key
}

// Enqueue appends one descriptor to the tail of the list.
func (q *Queue[T]) Enqueue(ctx context.Context, v T) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal queue entry")
	}
	if err := q.rdb.RPush(ctx, q.key, payload).Err(); err != nil {
		return errors.Wrapf(err, "rpush %s", q.key)
	}
	return nil
}

// EnqueueBatch appends every descriptor in one RPUSH.
func (q *Queue[T]) EnqueueBatch(ctx context.Context, vs []T) error {
	if len(vs) == 0 {
		return nil
	}

	payloads := make([]any, 0, len(vs))
	for i, v := range vs {
		payload, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "marshal queue entry %d", i)
		}
		payloads = append(payloads, payload)
	}

	if err := q.rdb.RPush(ctx, q.key, payloads...).Err(); err != nil {
		return errors.Wrapf(err, "rpush %s", q.key)
	}
	return nil
}

// Dequeue pops the head of the list, blocking server-side for up to timeout
// (0 blocks indefinitely). It reports ok=false when the timeout elapsed with
// nothing to pop.
func (q *Queue[T]) Dequeue(ctx context.Context, timeout time.Duration) (T, bool, error) {
	var v T

	res, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return v, false, nil
		}
		return v, false, errors.Wrapf(err, "blpop %s", q.key)
	}

	// BLPOP replies [key, value].
	if len(res) < 2 {
		return v, false, errors.Errorf("blpop %s: unexpected reply of %d elements", q.key, len(res))
	}
	if err := json.Unmarshal([]byte(res[1]), &v); err != nil {
		return v, false, errors.Wrap(err, "unmarshal queue entry")
	}
	return v, true, nil
}

// Size reports the current list length.
func (q *Queue[T]) Size(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "llen %s", q.key)
	}
	return n, nil
}

// Clear deletes the list and everything still in it.
func (q *Queue[T]) Clear(ctx context.Context) error {
	if err := q.rdb.Del(ctx, q.key).Err(); err != nil {
		return errors.Wrapf(err, "del %s", q.key)
	}
	return nil
}
