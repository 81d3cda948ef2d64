// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podward/podward/pkg/errors"
)

const (
	testIssuer   = "https://id.example.com"
	testAudience = "podward"
	testKid      = "test-key-1"
)

// jwksFixture serves a JWKS document for a generated RSA key and counts
// how often it is fetched.
type jwksFixture struct {
	privateKey *rsa.PrivateKey
	server     *httptest.Server
	fetches    atomic.Int64
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pubKey, err := jwk.Import(privateKey.Public())
	require.NoError(t, err)
	require.NoError(t, pubKey.Set(jwk.KeyIDKey, testKid))
	require.NoError(t, pubKey.Set(jwk.AlgorithmKey, "RS256"))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pubKey))
	doc, err := json.Marshal(set)
	require.NoError(t, err)

	f := &jwksFixture{privateKey: privateKey}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	t.Cleanup(f.server.Close)

	return f
}

type tokenOverride func(claims jwt.MapClaims, header map[string]any)

func (f *jwksFixture) signToken(t *testing.T, overrides ...tokenOverride) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss":     testIssuer,
		"aud":     testAudience,
		"exp":     time.Now().Add(time.Hour).Unix(),
		"sub":     "session-abc",
		"user_id": "user-42",
		"scope":   "openid pods:read pods:write",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid

	for _, o := range overrides {
		o(claims, token.Header)
	}

	signed, err := token.SignedString(f.privateKey)
	require.NoError(t, err)
	return signed
}

func (f *jwksFixture) validator(t *testing.T, ttl time.Duration) *TokenValidator {
	t.Helper()

	cache := NewJWKSCache(f.server.URL, ttl, f.server.Client())
	v, err := NewTokenValidator(ValidatorConfig{
		Issuer:      testIssuer,
		Audiences:   []string{testAudience},
		UserIDClaim: "user_id",
	}, cache)
	require.NoError(t, err)
	return v
}

func TestValidateSuccess(t *testing.T) {
	t.Parallel()

	f := newJWKSFixture(t)
	v := f.validator(t, time.Hour)

	validated, err := v.Validate(context.Background(), f.signToken(t))
	require.NoError(t, err)

	assert.Equal(t, "user-42", validated.UserID)
	assert.Equal(t, []string{"openid", "pods:read", "pods:write"}, validated.Scopes)
	iss, err := validated.Claims.GetIssuer()
	require.NoError(t, err)
	assert.Equal(t, testIssuer, iss)
}

func TestValidateFailuresAreUniform(t *testing.T) {
	t.Parallel()

	f := newJWKSFixture(t)
	v := f.validator(t, time.Hour)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"garbage", func(_ *testing.T) string { return "not.a.jwt" }},
		{"wrong issuer", func(t *testing.T) string {
			return f.signToken(t, func(c jwt.MapClaims, _ map[string]any) { c["iss"] = "https://evil.example.com" })
		}},
		{"wrong audience", func(t *testing.T) string {
			return f.signToken(t, func(c jwt.MapClaims, _ map[string]any) { c["aud"] = "someone-else" })
		}},
		{"expired", func(t *testing.T) string {
			return f.signToken(t, func(c jwt.MapClaims, _ map[string]any) { c["exp"] = time.Now().Add(-time.Minute).Unix() })
		}},
		{"missing kid", func(t *testing.T) string {
			return f.signToken(t, func(_ jwt.MapClaims, h map[string]any) { delete(h, "kid") })
		}},
		{"unknown kid", func(t *testing.T) string {
			return f.signToken(t, func(_ jwt.MapClaims, h map[string]any) { h["kid"] = "unknown-key" })
		}},
		{"missing user_id", func(t *testing.T) string {
			return f.signToken(t, func(c jwt.MapClaims, _ map[string]any) { delete(c, "user_id") })
		}},
		{"foreign signing key", func(t *testing.T) string {
			token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
				"iss": testIssuer, "aud": testAudience,
				"exp": time.Now().Add(time.Hour).Unix(), "user_id": "user-42",
			})
			token.Header["kid"] = testKid
			signed, err := token.SignedString(otherKey)
			require.NoError(t, err)
			return signed
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tt.token(t))
			require.Error(t, err)
			// Every failure mode surfaces the same type and message.
			require.True(t, errors.IsUnauthorized(err))
			var typed *errors.Error
			require.ErrorAs(t, err, &typed)
			assert.Equal(t, "invalid or expired token", typed.Message)
		})
	}
}

func TestValidateRejectsNonRSAAlgorithm(t *testing.T) {
	t.Parallel()

	f := newJWKSFixture(t)
	v := f.validator(t, time.Hour)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": testIssuer, "aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(), "user_id": "user-42",
	})
	token.Header["kid"] = testKid
	signed, err := token.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), signed)
	assert.True(t, errors.IsUnauthorized(err))
}

func TestJWKSCacheFreshHitAvoidsNetwork(t *testing.T) {
	t.Parallel()

	f := newJWKSFixture(t)
	v := f.validator(t, time.Hour)

	for range 3 {
		_, err := v.Validate(context.Background(), f.signToken(t))
		require.NoError(t, err)
	}

	// First call populates the cache; the rest hit the snapshot.
	assert.Equal(t, int64(1), f.fetches.Load())
}

func TestJWKSCacheStaleTriggersRefresh(t *testing.T) {
	t.Parallel()

	f := newJWKSFixture(t)
	v := f.validator(t, time.Millisecond)

	_, err := v.Validate(context.Background(), f.signToken(t))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = v.Validate(context.Background(), f.signToken(t))
	require.NoError(t, err)

	assert.Equal(t, int64(2), f.fetches.Load())
}

func TestJWKSCacheUnknownKidRefreshesOnce(t *testing.T) {
	t.Parallel()

	f := newJWKSFixture(t)
	v := f.validator(t, time.Hour)

	_, err := v.Validate(context.Background(), f.signToken(t))
	require.NoError(t, err)
	require.Equal(t, int64(1), f.fetches.Load())

	_, err = v.Validate(context.Background(), f.signToken(t,
		func(_ jwt.MapClaims, h map[string]any) { h["kid"] = "rotated-away" }))
	require.Error(t, err)

	// Exactly one extra refresh attempt for the miss, then failure.
	assert.Equal(t, int64(2), f.fetches.Load())
}

func TestNewTokenValidatorConfigErrors(t *testing.T) {
	t.Parallel()

	cache := NewJWKSCache("https://id.example.com/jwks", time.Hour, nil)

	_, err := NewTokenValidator(ValidatorConfig{Audiences: []string{"a"}, UserIDClaim: "user_id"}, cache)
	assert.True(t, errors.IsConfiguration(err))

	_, err = NewTokenValidator(ValidatorConfig{Issuer: "x", UserIDClaim: "user_id"}, cache)
	assert.True(t, errors.IsConfiguration(err))

	_, err = NewTokenValidator(ValidatorConfig{Issuer: "x", Audiences: []string{"a"}, UserIDClaim: "user_id"}, nil)
	assert.True(t, errors.IsConfiguration(err))
}
