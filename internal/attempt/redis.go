package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of *redis.Client the store uses.
type redisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps attempts in Redis so any instance can serve the callback.
type RedisStore struct {
	client redisClient
	prefix string
}

// NewRedisStore creates a Redis-backed attempt store.
func NewRedisStore(client redisClient) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "login_attempt:",
	}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Save(ctx context.Context, a Attempt, ttl time.Duration) error {
	if a.ID == "" || a.State == "" {
		return fmt.Errorf("attempt: missing id or state")
	}
	if ttl <= 0 {
		return fmt.Errorf("attempt: ttl must be positive")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("attempt: failed to marshal: %w", err)
	}
	return r.client.Set(ctx, r.key(a.ID), data, ttl).Err()
}

// Take uses GETDEL so two concurrent callbacks can't both consume an attempt.
func (r *RedisStore) Take(ctx context.Context, id string) (Attempt, error) {
	if !validID(id) {
		return Attempt{}, ErrNotFound
	}
	val, err := r.client.GetDel(ctx, r.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Attempt{}, ErrNotFound
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("attempt: redis: %w", err)
	}

	var a Attempt
	if err := json.Unmarshal([]byte(val), &a); err != nil {
		return Attempt{}, fmt.Errorf("attempt: failed to unmarshal: %w", err)
	}
	return a, nil
}
