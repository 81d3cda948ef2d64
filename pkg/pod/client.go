// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package pod provides the authenticated client used to talk to a user's
// pod on the Community Solid Server.
//
// Each logical operation builds a client from the user's persisted
// credentials, obtains a DPoP-bound access token via the client-credentials
// grant and attaches a fresh proof to every request. Tokens are not cached
// across client instances; WithTokenReuse enables a per-client cache that
// honors the token's expiry exactly.
package pod

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/podward/podward/pkg/auth/dpop"
	"github.com/podward/podward/pkg/errors"
	"github.com/podward/podward/pkg/logger"
	"github.com/podward/podward/pkg/networking"
)

// Credentials are the persisted per-user fields needed to access a pod.
// They are written once by provisioning and read back here.
type Credentials struct {
	// ClientID and ClientSecret identify the user's machine client on
	// the pod server.
	ClientID     string
	ClientSecret string

	// PrivateJWK is the user's DPoP signing key, as a private JWK string.
	PrivateJWK string

	// PodBaseURL is the root of the user's pod.
	PodBaseURL string

	// TokenEndpoint is the pod server's token endpoint.
	TokenEndpoint string
}

// strippedHeaders are caller-supplied headers dropped before forwarding,
// so stale credentials or framing can never smuggle through.
var strippedHeaders = map[string]struct{}{
	"Host":           {},
	"Authorization":  {},
	"Dpop":           {},
	"Content-Length": {},
}

// Client issues authenticated requests against one user's pod.
type Client struct {
	creds  Credentials
	signer *dpop.Signer
	http   networking.HTTPClient

	reuseToken  bool
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h networking.HTTPClient) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithTokenReuse caches the acquired access token inside this client and
// reuses it until its expiry. The expiry is honored exactly; an expired
// cached token is discarded and reacquired, never presented.
func WithTokenReuse() Option {
	return func(c *Client) {
		c.reuseToken = true
	}
}

// NewClient builds a client from persisted credentials. Malformed key
// material or missing settings are configuration errors.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	switch {
	case creds.ClientID == "" || creds.ClientSecret == "":
		return nil, errors.NewConfigurationError("pod client requires client credentials", nil)
	case creds.PodBaseURL == "":
		return nil, errors.NewConfigurationError("pod client requires a pod base URL", nil)
	case creds.TokenEndpoint == "":
		return nil, errors.NewConfigurationError("pod client requires a token endpoint", nil)
	}

	signer, err := dpop.NewSigner(creds.PrivateJWK)
	if err != nil {
		return nil, err
	}

	c := &Client{
		creds:  creds,
		signer: signer,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		httpClient, err := networking.NewHTTPClientBuilder().Build()
		if err != nil {
			return nil, errors.NewConfigurationError("failed to build HTTP client", err)
		}
		c.http = httpClient
	}
	return c, nil
}

// resolveTarget joins a caller path onto the pod base. Absolute URLs pass
// through untouched so callers can follow server-returned links.
func (c *Client) resolveTarget(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(c.creds.PodBaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

// Do performs an authenticated request against the user's pod. The
// caller's headers are forwarded minus the stripped set; the response is
// returned as-is for the caller to interpret, except for a single retry
// when the server answers 400/401 with a DPoP-Nonce challenge.
func (c *Client) Do(ctx context.Context, method, path string, header http.Header, body []byte) (*http.Response, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	target := c.resolveTarget(path)

	resp, err := c.doResource(ctx, method, target, header, body, token, "")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	nonce := resp.Header.Get("DPoP-Nonce")
	if nonce == "" {
		return resp, nil
	}
	resp.Body.Close()

	logger.Debugw("pod server issued DPoP nonce challenge, retrying once",
		"method", method,
		"status", resp.StatusCode,
	)
	return c.doResource(ctx, method, target, header, body, token, nonce)
}

// doResource issues one resource request with a freshly signed proof.
func (c *Client) doResource(
	ctx context.Context,
	method, target string,
	header http.Header,
	body []byte,
	token, nonce string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewBadRequestError("invalid pod request", err)
	}

	for name, values := range header {
		if _, stripped := strippedHeaders[http.CanonicalHeaderKey(name)]; stripped {
			continue
		}
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	proofOpts := []dpop.ProofOption{dpop.WithAccessToken(token)}
	if nonce != "" {
		proofOpts = append(proofOpts, dpop.WithNonce(nonce))
	}
	proof, err := c.signer.Proof(method, target, proofOpts...)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "DPoP "+token)
	req.Header.Set("DPoP", proof)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewUpstreamError("pod request failed", err)
	}
	return resp, nil
}
