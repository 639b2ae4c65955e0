package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// KVStore backs the countdown (and any other cross-reload state) with Redis,
// so a process restart mid-session resumes from the persisted remaining time.
// Values are stored without TTL; the countdown deletes its own key on expiry.
type KVStore struct {
	client *redis.Client
}

func NewKVStore(client *redis.Client) *KVStore {
	return &KVStore{client: client}
}

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *KVStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
