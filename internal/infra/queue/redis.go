package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/metrics"
)

var _ domain.PostQueue = (*RedisPostQueue)(nil)

// RedisPostQueue реализует очередь задач на базе Redis lists.
type RedisPostQueue struct {
	client *redis.Client
	key    string
}

// NewRedisPostQueue создаёт очередь по указанному ключу.
func NewRedisPostQueue(client *redis.Client, key string) *RedisPostQueue {
	return &RedisPostQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisPostQueue) Enqueue(ctx context.Context, job domain.PostJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу. Отрицательное подтверждение возвращает задачу в хвост очереди.
func (q *RedisPostQueue) Receive(ctx context.Context) (domain.PostJob, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.PostJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.PostJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.PostJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.PostJob{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := res[1]
		var job domain.PostJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return domain.PostJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.RPush(context.WithoutCancel(ctx), q.key, raw).Err()
		}
		return job, ack, nil
	}
}
