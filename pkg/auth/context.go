// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	// UserID is the trusted local user identifier.
	UserID string

	// Scopes granted to the presented token.
	Scopes []string

	// Claims are the raw verified claims, for handlers that need more.
	Claims jwt.MapClaims
}

// HasScope reports whether the identity was granted the given scope.
func (i *Identity) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

// identityContextKey is the key used to store the identity in the
// request context.
type identityContextKey struct{}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext retrieves the identity stored by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok
}
