// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package dpop builds DPoP proof JWTs (RFC 9449) for outbound requests to
// pod servers.
//
// A proof binds an HTTP method and URL to the holder of a per-user EC
// private key. The public key travels in the proof header as a JWK; when
// the proof accompanies an access token, the ath claim hashes that token
// so the server can tie the two together. Proofs are single-use: every
// call produces a fresh jti and iat, including retries.
package dpop

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/podward/podward/pkg/errors"
)

// Signer produces DPoP proofs for a single user's key pair.
type Signer struct {
	key        *ecdsa.PrivateKey
	publicJWK  map[string]any
	thumbprint string
}

// GenerateKey creates a fresh P-256 key pair and returns the private key
// serialized as a JWK JSON string, suitable for per-user persistence.
func GenerateKey() (string, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate EC key: %w", err)
	}

	key, err := jwk.Import(priv)
	if err != nil {
		return "", fmt.Errorf("failed to convert key to JWK: %w", err)
	}

	buf, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("failed to serialize JWK: %w", err)
	}
	return string(buf), nil
}

// NewSigner parses a stored private JWK string. A malformed key is a
// configuration error: it cannot be recovered by retrying.
func NewSigner(privateJWK string) (*Signer, error) {
	key, err := jwk.ParseKey([]byte(privateJWK))
	if err != nil {
		return nil, errors.NewConfigurationError("malformed DPoP signing key", err)
	}

	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, errors.NewConfigurationError("malformed DPoP signing key", err)
	}
	priv, ok := raw.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.NewConfigurationError("DPoP signing key is not an EC private key", nil)
	}

	pub, err := jwk.Import(priv.Public())
	if err != nil {
		return nil, errors.NewConfigurationError("failed to derive DPoP public key", err)
	}

	thumb, err := pub.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to compute DPoP key thumbprint", err)
	}

	// Round-trip through JSON so golang-jwt can embed the public key in
	// the proof header as a plain map.
	buf, err := json.Marshal(pub)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to serialize DPoP public key", err)
	}
	var publicJWK map[string]any
	if err := json.Unmarshal(buf, &publicJWK); err != nil {
		return nil, errors.NewConfigurationError("failed to serialize DPoP public key", err)
	}

	return &Signer{
		key:        priv,
		publicJWK:  publicJWK,
		thumbprint: base64.RawURLEncoding.EncodeToString(thumb),
	}, nil
}

// Thumbprint returns the RFC 7638 thumbprint of the public key. Safe to
// log; the private key never is.
func (s *Signer) Thumbprint() string {
	return s.thumbprint
}

// proofOptions collects optional proof claims.
type proofOptions struct {
	accessToken string
	nonce       string
}

// ProofOption configures a single proof.
type ProofOption func(*proofOptions)

// WithAccessToken binds the proof to an access token via the ath claim.
func WithAccessToken(token string) ProofOption {
	return func(o *proofOptions) {
		o.accessToken = token
	}
}

// WithNonce embeds a server-issued DPoP nonce.
func WithNonce(nonce string) ProofOption {
	return func(o *proofOptions) {
		o.nonce = nonce
	}
}

// Proof signs a DPoP proof for the given method and URL. The URL must be
// the exact URL of the request being authorized. Each call produces a
// fresh jti and signature; proofs are never reusable.
func (s *Signer) Proof(method, url string, opts ...ProofOption) (string, error) {
	var o proofOptions
	for _, opt := range opts {
		opt(&o)
	}

	claims := jwt.MapClaims{
		"htm": method,
		"htu": url,
		"iat": time.Now().Unix(),
		"jti": uuid.NewString(),
	}
	if o.accessToken != "" {
		hash := sha256.Sum256([]byte(o.accessToken))
		claims["ath"] = base64.RawURLEncoding.EncodeToString(hash[:])
	}
	if o.nonce != "" {
		claims["nonce"] = o.nonce
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["typ"] = "dpop+jwt"
	token.Header["jwk"] = s.publicJWK

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign DPoP proof: %w", err)
	}
	return signed, nil
}
