package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"post-drip-bot/internal/domain"
)

// RedisRunQueue реализует очередь задач планирования на базе Redis lists.
type RedisRunQueue struct {
	client *redis.Client
	key    string
}

var _ domain.RunQueue = (*RedisRunQueue)(nil)

// NewRedisRunQueue создаёт очередь по указанному ключу.
func NewRedisRunQueue(client *redis.Client, key string) *RedisRunQueue {
	return &RedisRunQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisRunQueue) Enqueue(ctx context.Context, job domain.RunJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Подтверждение с success=false
// возвращает задачу в очередь: у Redis lists нет собственного ack.
func (q *RedisRunQueue) Receive(ctx context.Context) (domain.RunJob, domain.RunAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RunJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.RunJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.RunJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.RunJob{}, nil, errors.New("redis queue: unexpected response")
		}
		var job domain.RunJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.RunJob{}, nil, fmt.Errorf("decode job: %w", err)
		}

		ack := func(success bool) error {
			if success {
				return nil
			}
			payload, err := json.Marshal(job)
			if err != nil {
				return fmt.Errorf("marshal job: %w", err)
			}
			return q.client.RPush(context.Background(), q.key, payload).Err()
		}
		return job, ack, nil
	}
}
