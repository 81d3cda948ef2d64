// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// JWKSCache fetches and caches the identity provider's JSON Web Key Set.
//
// The key set is held as an atomically replaced snapshot behind a
// reader-writer lock and rebuilt wholesale on refresh. A lookup against a
// fresh cache never touches the network; a stale cache or an unknown kid
// triggers exactly one refresh attempt before failing. Concurrent refreshes
// may race; the GET is idempotent and the last completed refresh wins.
type JWKSCache struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu        sync.RWMutex
	keys      jwk.Set
	fetchedAt time.Time
}

// NewJWKSCache creates a cache for the key set served at url. Keys older
// than ttl are not trusted without a refresh attempt. client may be nil,
// in which case http.DefaultClient is used.
func NewJWKSCache(url string, ttl time.Duration, client *http.Client) *JWKSCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &JWKSCache{
		url:    url,
		ttl:    ttl,
		client: client,
	}
}

// Key resolves the signing key with the given kid. The cached snapshot is
// consulted first; on expiry or miss the key set is refetched once.
func (c *JWKSCache) Key(ctx context.Context, kid string) (jwk.Key, error) {
	c.mu.RLock()
	keys, fetchedAt := c.keys, c.fetchedAt
	c.mu.RUnlock()

	if keys != nil && time.Since(fetchedAt) < c.ttl {
		if key, ok := keys.LookupKeyID(kid); ok {
			return key, nil
		}
	}

	keys, err := c.refresh(ctx)
	if err != nil {
		return nil, err
	}

	key, ok := keys.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("key ID %s not found in JWKS", kid)
	}
	return key, nil
}

// refresh fetches the key set and replaces the cached snapshot.
func (c *JWKSCache) refresh(ctx context.Context) (jwk.Set, error) {
	set, err := jwk.Fetch(ctx, c.url, jwk.WithHTTPClient(c.client))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	c.mu.Lock()
	c.keys = set
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return set, nil
}
