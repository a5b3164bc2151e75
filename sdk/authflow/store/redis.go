package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/authflow/sdk/authflow"
)

const (
	// Redis key prefix for fingerprint slots
	redisKeyPrefix = "authflow:fingerprint:"
	// DefaultRedisTTL bounds how long an abandoned attempt stays in Redis.
	DefaultRedisTTL = 10 * time.Minute
)

// RedisStore keeps the fingerprint of one scope in Redis with an expiry.
type RedisStore struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisStore returns the slot for scope. The client lifecycle is managed by the caller.
func NewRedisStore(client redis.Cmdable, scope string, ttl time.Duration) *RedisStore {
	if scope == "" {
		scope = authflow.DefaultStorageKey
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{
		client: client,
		key:    redisKeyPrefix + scope,
		ttl:    ttl,
	}
}

// NewRedisClient parses url, connects and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Get implements authflow.FingerprintStore.
func (s *RedisStore) Get(ctx context.Context) (*authflow.Fingerprint, error) {
	payload, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis store %s: %w", s.key, authflow.ErrFingerprintNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis store %s: %w", s.key, err)
	}
	return authflow.DecodeFingerprint(payload)
}

// Set implements authflow.FingerprintStore with a single SET ... EX.
func (s *RedisStore) Set(ctx context.Context, fingerprint *authflow.Fingerprint) error {
	payload, err := authflow.EncodeFingerprint(fingerprint)
	if err != nil {
		return fmt.Errorf("redis store: %w", err)
	}
	if err = s.client.Set(ctx, s.key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis store %s: %w", s.key, err)
	}
	return nil
}

// Clear implements authflow.FingerprintClearer.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis store %s: %w", s.key, err)
	}
	return nil
}

// Take implements authflow.FingerprintTaker with GETDEL.
func (s *RedisStore) Take(ctx context.Context) (*authflow.Fingerprint, error) {
	payload, err := s.client.GetDel(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis store %s: %w", s.key, authflow.ErrFingerprintNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis store %s: %w", s.key, err)
	}
	return authflow.DecodeFingerprint(payload)
}
