// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/podward/podward/pkg/errors"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// RedisConfig holds connection settings for the Redis-backed store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int

	// KeyPrefix namespaces entries, e.g. "podward:oauth:state:".
	KeyPrefix string

	// TTL bounds entry lifetime; DefaultTTL when zero.
	TTL time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStateStore persists pending authorization requests in Redis,
// sharing them across replicas. Expiry is delegated to Redis key TTLs;
// single-use consumption is enforced with an optimistic WATCH/MULTI
// transaction on the state key.
type RedisStateStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStateStore connects to Redis and verifies the connection.
func NewRedisStateStore(ctx context.Context, cfg RedisConfig) (*RedisStateStore, error) {
	if cfg.Address == "" {
		return nil, errors.NewConfigurationError("redis state store requires an address", nil)
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewConfigurationError("failed to connect to redis", err)
	}

	return NewRedisStateStoreWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisStateStoreWithClient wraps a pre-configured client. Used by
// tests with miniredis.
func NewRedisStateStoreWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisStateStore {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &RedisStateStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (s *RedisStateStore) key(state string) string {
	return s.keyPrefix + state
}

// Store inserts an entry with the configured TTL.
func (s *RedisStateStore) Store(ctx context.Context, entry StateEntry) error {
	if entry.State == "" {
		return errors.NewBadRequestError("state must not be empty", nil)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode state entry: %w", err)
	}
	if err := s.client.Set(ctx, s.key(entry.State), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store state entry: %w", err)
	}
	return nil
}

// Consume implements atomic check-and-remove via WATCH. When two callers
// race on the same state, the transaction of the loser aborts and it
// observes the entry as already gone.
func (s *RedisStateStore) Consume(ctx context.Context, state string, match ConsumeMatch) (*StateEntry, error) {
	key := s.key(state)
	var consumed *StateEntry

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if stderrors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read state entry: %w", err)
		}

		var entry StateEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("failed to decode state entry: %w", err)
		}
		if !entry.matches(match) {
			// Mismatch leaves the entry in place.
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err != nil {
			return err
		}
		consumed = &entry
		return nil
	}, key)

	if stderrors.Is(err, redis.TxFailedErr) {
		// A concurrent consumer won the race.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return consumed, nil
}

// Close releases the underlying connection.
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
