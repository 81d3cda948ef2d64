// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/podward/podward/pkg/errors"
)

// defaultCleanupInterval is how often expired entries are swept.
const defaultCleanupInterval = time.Minute

// timedEntry wraps a stored value with its expiry for TTL tracking.
type timedEntry struct {
	value     StateEntry
	expiresAt time.Time
}

// MemoryStateStore keeps pending authorization requests in process
// memory. Suitable for single-instance deployments and tests; use the
// Redis store when running more than one replica.
type MemoryStateStore struct {
	mu      sync.RWMutex
	entries map[string]*timedEntry

	ttl             time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
}

// MemoryOption configures a MemoryStateStore.
type MemoryOption func(*MemoryStateStore)

// WithTTL overrides the entry lifetime.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStateStore) {
		s.ttl = ttl
	}
}

// WithCleanupInterval sets how often the background sweep runs.
func WithCleanupInterval(interval time.Duration) MemoryOption {
	return func(s *MemoryStateStore) {
		s.cleanupInterval = interval
	}
}

// NewMemoryStateStore creates the store and starts its cleanup goroutine.
func NewMemoryStateStore(opts ...MemoryOption) *MemoryStateStore {
	s := &MemoryStateStore{
		entries:         make(map[string]*timedEntry),
		ttl:             DefaultTTL,
		cleanupInterval: defaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.cleanupLoop()
	return s
}

// Store inserts an entry keyed by its state token.
func (s *MemoryStateStore) Store(_ context.Context, entry StateEntry) error {
	if entry.State == "" {
		return errors.NewBadRequestError("state must not be empty", nil)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.State] = &timedEntry{
		value:     entry,
		expiresAt: entry.CreatedAt.Add(s.ttl),
	}
	return nil
}

// Consume implements the atomic check-and-remove contract. The write lock
// spans lookup, match and removal so two concurrent consumers of the same
// state can never both win.
func (s *MemoryStateStore) Consume(_ context.Context, state string, match ConsumeMatch) (*StateEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state]
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, state)
		return nil, nil
	}
	if !entry.value.matches(match) {
		// Mismatch leaves the entry in place; the legitimate holder may
		// still consume it.
		return nil, nil
	}

	delete(s.entries, state)
	value := entry.value
	return &value, nil
}

// Close stops the cleanup goroutine.
func (s *MemoryStateStore) Close() error {
	close(s.stopCleanup)
	<-s.cleanupDone
	return nil
}

func (s *MemoryStateStore) cleanupLoop() {
	defer close(s.cleanupDone)
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *MemoryStateStore) removeExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for state, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, state)
		}
	}
}
