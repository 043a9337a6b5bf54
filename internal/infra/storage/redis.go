package storage

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix отделяет ключи инбокса от прочих данных в общей базе.
const redisKeyPrefix = "inbox:"

// RedisKV — разделяемое хранилище для нескольких инстансов дашборда.
type RedisKV struct {
	client *redis.Client
}

var _ KV = (*RedisKV)(nil)

// RedisOptions — параметры подключения.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// OpenRedis создаёт клиента и проверяет связь PING-ом.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return &RedisKV{client: client}, nil
}

// NewRedisKV оборачивает готового клиента (тесты, общий пул).
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis get")
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, redisKeyPrefix+key)
	}
	if err := r.client.Del(ctx, prefixed...).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func (r *RedisKV) Close() error { return r.client.Close() }
