package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"poshook/internal/constants"
)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore stores records as JSON values; ttl <= 0 keeps them forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Name() string {
	return constants.JournalBackendRedis
}

func (s *RedisStore) key(attemptID string) string {
	return constants.CacheKeyPrefixJournal + attemptID
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	if !rec.Terminal() {
		existing, err := s.Get(ctx, rec.AttemptID)
		if err == nil && existing.Terminal() {
			return nil
		}
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal journal record: %w", err)
	}

	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(rec.AttemptID), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, attemptID string) (*Record, error) {
	value, err := s.client.Get(ctx, s.key(attemptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(attemptID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journal record: %w", err)
	}
	return &rec, nil
}
