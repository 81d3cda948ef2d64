// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"net/http"
	"strings"

	"github.com/podward/podward/pkg/logger"
)

// Middleware creates an HTTP middleware that validates bearer tokens and
// stores the resulting identity in the request context.
func (v *TokenValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		validated, err := v.Validate(r.Context(), tokenString)
		if err != nil {
			// Full cause goes to the log; the client gets the
			// uniform message.
			logger.Debugw("token validation failed",
				"path", r.URL.Path,
				"error", err.Error(),
			)
			http.Error(w, unauthorizedMessage, http.StatusUnauthorized)
			return
		}

		ctx := WithIdentity(r.Context(), &Identity{
			UserID: validated.UserID,
			Scopes: validated.Scopes,
			Claims: validated.Claims,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ScopeRequired returns a middleware that rejects requests whose identity
// lacks the given scope. It must run after the validator middleware.
func ScopeRequired(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, unauthorizedMessage, http.StatusUnauthorized)
				return
			}
			if !id.HasScope(scope) {
				http.Error(w, "insufficient scope", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
