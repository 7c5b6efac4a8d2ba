package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps the list as a JSON array under a single Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Load reads the key. A missing key is created empty.
func (s *RedisStore) Load(ctx context.Context) ([]int64, error) {
	if s.key == "" {
		return nil, fmt.Errorf("subscriber key is not configured")
	}
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		if err := s.Save(ctx, []int64{}); err != nil {
			return nil, err
		}
		return []int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", s.key, err)
	}

	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return ids, nil
}

func (s *RedisStore) Save(ctx context.Context, ids []int64) error {
	if s.key == "" {
		return fmt.Errorf("subscriber key is not configured")
	}
	if ids == nil {
		ids = []int64{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode subscribers: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", s.key, err)
	}
	return nil
}
