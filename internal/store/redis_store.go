package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "gateway:command:"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) IsProcessed(ctx context.Context, commandID string) (bool, error) {
	count, err := r.client.Exists(ctx, keyPrefix+"processed:"+commandID).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RedisStore) MarkProcessed(ctx context.Context, commandID string, ttl time.Duration) error {
	return r.client.Set(ctx, keyPrefix+"processed:"+commandID, "1", ttl).Err()
}

func (r *RedisStore) SetCommandState(ctx context.Context, commandID, state string, ttl time.Duration) error {
	return r.client.Set(ctx, keyPrefix+"state:"+commandID, state, ttl).Err()
}

func (r *RedisStore) CommandState(ctx context.Context, commandID string) (string, error) {
	result, err := r.client.Get(ctx, keyPrefix+"state:"+commandID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return result, err
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
