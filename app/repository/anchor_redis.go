package repository

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisAnchorStore keeps offer timer anchors as plain string keys without expiry.
type RedisAnchorStore struct {
	client redis.Cmdable
}

func NewRedisAnchorStore(client redis.Cmdable) *RedisAnchorStore {
	return &RedisAnchorStore{client: client}
}

func (s *RedisAnchorStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *RedisAnchorStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	return s.client.SetNX(ctx, key, value, 0).Result()
}

func (s *RedisAnchorStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}
