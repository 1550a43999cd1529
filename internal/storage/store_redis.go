package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "idverify/pkg/domain"
)

const redisKeyPrefix = "idv:session:"

// RedisStore keeps each browser session's items in one hash whose TTL slides
// on every write.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis returns a Redis-backed store.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(sessionID id.BrowserSessionID) string {
	return redisKeyPrefix + sessionID.String() + ":items"
}

func (s *RedisStore) SetItem(ctx context.Context, sessionID id.BrowserSessionID, key, value string) error {
	k := sessionKey(sessionID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, key, value)
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set item %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) GetItem(ctx context.Context, sessionID id.BrowserSessionID, key string) (string, error) {
	v, err := s.client.HGet(ctx, sessionKey(sessionID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get item %q: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Items(ctx context.Context, sessionID id.BrowserSessionID) (map[string]string, error) {
	items, err := s.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list items: %w", err)
	}
	return items, nil
}
