// Package redis implements idempotency.KeyStore on Redis so replicas share
// idempotency keys.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmynk/crowdpay/internal/idempotency"
)

// Compile-time interface check.
var _ idempotency.KeyStore = (*KeyStore)(nil)

// Stored values carry a one-byte state prefix.
const (
	statePending = '0'
	stateDone    = '1'
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	TLSEnabled bool
}

// KeyStore keeps idempotency keys under "idem:<key>".
type KeyStore struct {
	rdb *redis.Client
}

// New connects to Redis and pings it.
func New(ctx context.Context, cfg ClientConfig) (*KeyStore, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &KeyStore{rdb: rdb}, nil
}

func redisKey(key string) string {
	return "idem:" + key
}

// Claim implements idempotency.KeyStore with SETNX.
func (s *KeyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, redisKey(key), []byte{statePending}, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim %s: %w", key, err)
	}
	return ok, nil
}

// Load implements idempotency.KeyStore.
func (s *KeyStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: load %s: %w", key, err)
	}
	if len(val) == 0 || val[0] != stateDone {
		return nil, false, nil
	}
	return val[1:], true, nil
}

// Complete implements idempotency.KeyStore.
func (s *KeyStore) Complete(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	val := append([]byte{stateDone}, result...)
	if err := s.rdb.Set(ctx, redisKey(key), val, ttl).Err(); err != nil {
		return fmt.Errorf("redis: complete %s: %w", key, err)
	}
	return nil
}

// Release implements idempotency.KeyStore.
func (s *KeyStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: release %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *KeyStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *KeyStore) Close() error {
	return s.rdb.Close()
}
