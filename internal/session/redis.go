package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "helpdesk:session:"

// RedisStore keeps sessions in Redis so conversations survive restarts.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store with the given expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, userID int64) (*Session, error) {
	data, err := r.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session of user %d: %w", userID, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session of user %d: %w", userID, err)
	}
	return &s, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, userID int64, s *Session) error {
	if s.Idle() {
		return r.Clear(ctx, userID)
	}

	stored := *s
	stored.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode session of user %d: %w", userID, err)
	}
	if err := r.client.Set(ctx, key(userID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session of user %d: %w", userID, err)
	}
	return nil
}

// Clear implements Store.
func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session of user %d: %w", userID, err)
	}
	return nil
}

func key(userID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, userID)
}
