// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth validates inbound bearer tokens and carries the resulting
// identity through the request context.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/podward/podward/pkg/errors"
)

// unauthorizedMessage is the single caller-visible message for every
// validation failure. Which specific check failed is only ever logged,
// never surfaced, so token validity cannot be probed.
const unauthorizedMessage = "invalid or expired token"

// ValidatedToken is the result of a successful validation.
type ValidatedToken struct {
	// Claims are the raw verified claims.
	Claims jwt.MapClaims

	// UserID is the trusted local user identifier, taken from the
	// configured custom claim rather than sub.
	UserID string

	// Scopes are the entries of the space-delimited scope claim.
	Scopes []string
}

// ValidatorConfig contains configuration for the token validator.
type ValidatorConfig struct {
	// Issuer is the expected iss claim, matched exactly.
	Issuer string

	// Audiences are the accepted audiences. The token's aud set must
	// contain at least one of them.
	Audiences []string

	// UserIDClaim names the claim carrying the local user identifier.
	UserIDClaim string
}

// TokenValidator decodes and verifies inbound JWTs against the cached JWKS.
type TokenValidator struct {
	issuer      string
	audiences   []string
	userIDClaim string
	cache       *JWKSCache
}

// NewTokenValidator creates a new token validator backed by the given
// JWKS cache.
func NewTokenValidator(cfg ValidatorConfig, cache *JWKSCache) (*TokenValidator, error) {
	if cfg.Issuer == "" {
		return nil, errors.NewConfigurationError("token validator requires an issuer", nil)
	}
	if len(cfg.Audiences) == 0 {
		return nil, errors.NewConfigurationError("token validator requires at least one audience", nil)
	}
	if cfg.UserIDClaim == "" {
		return nil, errors.NewConfigurationError("token validator requires a user ID claim name", nil)
	}
	if cache == nil {
		return nil, errors.NewConfigurationError("token validator requires a JWKS cache", nil)
	}

	return &TokenValidator{
		issuer:      cfg.Issuer,
		audiences:   cfg.Audiences,
		userIDClaim: cfg.UserIDClaim,
		cache:       cache,
	}, nil
}

// keyFunc resolves the verification key for a parsed token header.
func (v *TokenValidator) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token header missing kid")
		}

		key, err := v.cache.Key(ctx, kid)
		if err != nil {
			return nil, err
		}

		var rawKey any
		if err := jwk.Export(key, &rawKey); err != nil {
			return nil, fmt.Errorf("failed to export raw key: %w", err)
		}
		return rawKey, nil
	}
}

// validateClaims validates issuer, audience and expiry.
func (v *TokenValidator) validateClaims(claims jwt.MapClaims) error {
	issuer, err := claims.GetIssuer()
	if err != nil || issuer != v.issuer {
		return fmt.Errorf("issuer mismatch")
	}

	audiences, err := claims.GetAudience()
	if err != nil {
		return fmt.Errorf("audience missing")
	}
	found := false
	for _, aud := range audiences {
		for _, expected := range v.audiences {
			if aud == expected {
				found = true
				break
			}
		}
	}
	if !found {
		return fmt.Errorf("audience mismatch")
	}

	expirationTime, err := claims.GetExpirationTime()
	if err != nil || expirationTime == nil || expirationTime.Before(time.Now()) {
		return fmt.Errorf("token expired")
	}

	return nil
}

// Validate verifies a bearer token and extracts its identity. Every
// failure mode yields the same unauthorized error shape; the cause is
// wrapped for server-side logs only.
func (v *TokenValidator) Validate(ctx context.Context, tokenString string) (*ValidatedToken, error) {
	token, err := jwt.Parse(
		tokenString,
		v.keyFunc(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
	)
	if err != nil {
		return nil, errors.NewUnauthorizedError(unauthorizedMessage, err)
	}
	if !token.Valid {
		return nil, errors.NewUnauthorizedError(unauthorizedMessage, nil)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.NewUnauthorizedError(unauthorizedMessage, fmt.Errorf("unexpected claims type"))
	}

	if err := v.validateClaims(claims); err != nil {
		return nil, errors.NewUnauthorizedError(unauthorizedMessage, err)
	}

	userID, ok := claims[v.userIDClaim].(string)
	if !ok || userID == "" {
		return nil, errors.NewUnauthorizedError(unauthorizedMessage, fmt.Errorf("missing %s claim", v.userIDClaim))
	}

	var scopes []string
	if scope, ok := claims["scope"].(string); ok && scope != "" {
		scopes = strings.Fields(scope)
	}

	return &ValidatedToken{
		Claims: claims,
		UserID: userID,
		Scopes: scopes,
	}, nil
}
