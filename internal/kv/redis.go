package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a thin Redis wrapper for token revocation and rate limiting.
// A Store without a client is valid: every check passes and writes are dropped.
type Store struct {
	client *redis.Client
	prefix string
}

// New connects to the Redis instance at redisURL. An empty URL yields a
// disabled Store.
func New(ctx context.Context, redisURL string) (*Store, error) {
	if redisURL == "" {
		return &Store{prefix: "whispers:"}, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &Store{client: client, prefix: "whispers:"}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, prefix: "whispers:"}
}

// Available reports whether a Redis client is configured.
func (s *Store) Available() bool {
	return s != nil && s.client != nil
}

// Close releases the client.
func (s *Store) Close() error {
	if !s.Available() {
		return nil
	}
	return s.client.Close()
}

// Allow counts one hit against key within window and reports whether the
// count is still within limit.
func (s *Store) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	if !s.Available() {
		return true, nil
	}

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, s.prefix+"rate:"+key)
	pipe.Expire(ctx, s.prefix+"rate:"+key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("incrementing rate counter: %w", err)
	}

	return incr.Val() <= limit, nil
}

// Reset clears the counter for key.
func (s *Store) Reset(ctx context.Context, key string) {
	if !s.Available() {
		return
	}
	_ = s.client.Del(ctx, s.prefix+"rate:"+key).Err()
}

// Revoke records token id jti as revoked until ttl elapses.
func (s *Store) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if !s.Available() || ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+"revoked:"+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("recording revocation: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti was revoked.
func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if !s.Available() {
		return false, nil
	}
	_, err := s.client.Get(ctx, s.prefix+"revoked:"+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return true, nil
}

// Ping checks connectivity; a disabled Store always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	if !s.Available() {
		return nil
	}
	return s.client.Ping(ctx).Err()
}
