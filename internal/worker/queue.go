package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueEmpty is returned by Pop when nothing arrived within the timeout.
var ErrQueueEmpty = errors.New("queue empty")

// Queue is the list-backed job queue the workers consume.
type Queue interface {
	// Pop blocks up to timeout for the next item of key.
	Pop(ctx context.Context, key string, timeout time.Duration) (string, error)
	// Push appends items to key in order.
	Push(ctx context.Context, key string, items ...[]byte) error
}

// RedisQueue implements Queue on Redis lists.
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func (q *RedisQueue) Pop(ctx context.Context, key string, timeout time.Duration) (string, error) {
	// BLPop blocks for timeout and returns immediately if data exists.
	res, err := q.rdb.BLPop(ctx, timeout, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrQueueEmpty
		}
		return "", err
	}
	if len(res) < 2 {
		return "", ErrQueueEmpty
	}
	return res[1], nil
}

func (q *RedisQueue) Push(ctx context.Context, key string, items ...[]byte) error {
	if len(items) == 0 {
		return nil
	}
	pipe := q.rdb.Pipeline()
	for _, item := range items {
		pipe.RPush(ctx, key, item)
	}
	_, err := pipe.Exec(ctx)
	return err
}
