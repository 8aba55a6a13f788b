package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"post-drip-bot/internal/domain"
)

// RedisLocker реализует domain.Locker через Redis SETNX. Используется, чтобы
// фоновый триггер и ручной запуск не сработали дважды для одного и того же
// ключа такта.
type RedisLocker struct {
	client *redis.Client
}

var _ domain.Locker = (*RedisLocker)(nil)

// NewRedisLocker создаёт блокировщик.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Once выполняет функцию, только если ключ ещё не занят. При ошибке функции
// ключ снимается, чтобы попытку можно было повторить.
func (c *RedisLocker) Once(key string, ttl time.Duration, fn func() error) error {
	ctx := context.Background()
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := fn(); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return err
	}
	return nil
}
