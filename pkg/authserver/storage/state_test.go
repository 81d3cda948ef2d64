// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podward/podward/pkg/errors"
)

func testEntry() StateEntry {
	return StateEntry{
		State:               "state-abc",
		UserID:              "user-1",
		ClientID:            "client-1",
		RedirectURI:         "https://app.example.com/callback",
		Scope:               "openid profile",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
		Nonce:               "n-0S6_WzA2Mj",
	}
}

func matchFor(e StateEntry) ConsumeMatch {
	return ConsumeMatch{
		UserID:      e.UserID,
		ClientID:    e.ClientID,
		RedirectURI: e.RedirectURI,
		Scope:       e.Scope,
	}
}

// runStateStoreContract exercises the StateStore semantics every backend
// must satisfy.
func runStateStoreContract(t *testing.T, newStore func(t *testing.T) StateStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("consume once then gone", func(t *testing.T) {
		s := newStore(t)
		entry := testEntry()
		require.NoError(t, s.Store(ctx, entry))

		got, err := s.Consume(ctx, entry.State, matchFor(entry))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, entry.CodeChallenge, got.CodeChallenge)
		assert.Equal(t, entry.Nonce, got.Nonce)

		// Replay fails without error.
		got, err = s.Consume(ctx, entry.State, matchFor(entry))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("absent state", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Consume(ctx, "never-stored", ConsumeMatch{})
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("mismatch leaves entry intact", func(t *testing.T) {
		s := newStore(t)
		entry := testEntry()
		require.NoError(t, s.Store(ctx, entry))

		for _, mutate := range []func(*ConsumeMatch){
			func(m *ConsumeMatch) { m.UserID = "someone-else" },
			func(m *ConsumeMatch) { m.ClientID = "other-client" },
			func(m *ConsumeMatch) { m.RedirectURI = "https://evil.example.com/cb" },
			func(m *ConsumeMatch) { m.Scope = "openid admin" },
		} {
			m := matchFor(entry)
			mutate(&m)
			got, err := s.Consume(ctx, entry.State, m)
			require.NoError(t, err)
			assert.Nil(t, got)
		}

		// The legitimate tuple still wins afterwards.
		got, err := s.Consume(ctx, entry.State, matchFor(entry))
		require.NoError(t, err)
		assert.NotNil(t, got)
	})

	t.Run("empty state rejected", func(t *testing.T) {
		s := newStore(t)
		err := s.Store(ctx, StateEntry{})
		assert.True(t, errors.IsBadRequest(err))
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		s := newStore(t)
		entry := testEntry()
		require.NoError(t, s.Store(ctx, entry))

		const attempts = 16
		var wg sync.WaitGroup
		results := make([]*StateEntry, attempts)
		for i := range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := s.Consume(ctx, entry.State, matchFor(entry))
				assert.NoError(t, err)
				results[i] = got
			}()
		}
		wg.Wait()

		winners := 0
		for _, got := range results {
			if got != nil {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})
}

func TestMemoryStateStore(t *testing.T) {
	t.Parallel()
	runStateStoreContract(t, func(t *testing.T) StateStore {
		t.Helper()
		s := NewMemoryStateStore()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStateStoreExpiry(t *testing.T) {
	t.Parallel()

	s := NewMemoryStateStore(WithTTL(10 * time.Millisecond))
	t.Cleanup(func() { _ = s.Close() })

	entry := testEntry()
	require.NoError(t, s.Store(context.Background(), entry))
	time.Sleep(30 * time.Millisecond)

	got, err := s.Consume(context.Background(), entry.State, matchFor(entry))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStateStoreCleanup(t *testing.T) {
	t.Parallel()

	s := NewMemoryStateStore(
		WithTTL(5*time.Millisecond),
		WithCleanupInterval(10*time.Millisecond),
	)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Store(context.Background(), testEntry()))

	assert.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.entries) == 0
	}, time.Second, 10*time.Millisecond)
}

func newMiniredisStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStateStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStateStoreWithClient(client, "podward:oauth:state:", ttl)
	t.Cleanup(func() { _ = s.Close() })
	return mr, s
}

func TestRedisStateStore(t *testing.T) {
	t.Parallel()
	runStateStoreContract(t, func(t *testing.T) StateStore {
		t.Helper()
		_, s := newMiniredisStore(t, 0)
		return s
	})
}

func TestRedisStateStoreExpiry(t *testing.T) {
	t.Parallel()

	mr, s := newMiniredisStore(t, time.Minute)
	entry := testEntry()
	require.NoError(t, s.Store(context.Background(), entry))

	mr.FastForward(2 * time.Minute)

	got, err := s.Consume(context.Background(), entry.State, matchFor(entry))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStateStoreKeyPrefix(t *testing.T) {
	t.Parallel()

	mr, s := newMiniredisStore(t, 0)
	entry := testEntry()
	require.NoError(t, s.Store(context.Background(), entry))

	assert.True(t, mr.Exists("podward:oauth:state:"+entry.State))
}
