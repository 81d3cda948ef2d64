// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package idp talks to the upstream identity provider's first-party
// authorize API on behalf of the consent flow.
package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/podward/podward/pkg/errors"
	"github.com/podward/podward/pkg/networking"
)

// StartRequest resolves the application behind a client_id before
// rendering the consent screen.
type StartRequest struct {
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
	Scope       string `json:"scope"`
}

// StartResponse carries the human-readable application name.
type StartResponse struct {
	ApplicationName string `json:"application_name"`
}

// AuthorizeRequest completes the code grant for an approved consent.
type AuthorizeRequest struct {
	UserID              string `json:"user_id"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
	Nonce               string `json:"nonce,omitempty"`
}

// AuthorizeResponse carries the provider-issued redirect, which embeds
// the authorization code.
type AuthorizeResponse struct {
	RedirectURI string `json:"redirect_uri"`
}

// Provider is the upstream authorize API.
type Provider interface {
	AuthorizeStart(ctx context.Context, req StartRequest) (*StartResponse, error)
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error)
}

// HTTPProvider implements Provider over the provider's REST API.
type HTTPProvider struct {
	baseURL  string
	apiToken string
	http     networking.HTTPClient
}

// HTTPProviderOption configures an HTTPProvider.
type HTTPProviderOption func(*HTTPProvider)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h networking.HTTPClient) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.http = h
	}
}

// NewHTTPProvider builds a provider client from the configured base URL
// and API token.
func NewHTTPProvider(baseURL, apiToken string, opts ...HTTPProviderOption) (*HTTPProvider, error) {
	if baseURL == "" {
		return nil, errors.NewConfigurationError("identity provider requires a base URL", nil)
	}
	if apiToken == "" {
		return nil, errors.NewConfigurationError("identity provider requires an API token", nil)
	}

	p := &HTTPProvider{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiToken: apiToken,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.http == nil {
		httpClient, err := networking.NewHTTPClientBuilder().Build()
		if err != nil {
			return nil, errors.NewConfigurationError("failed to build HTTP client", err)
		}
		p.http = httpClient
	}
	return p, nil
}

// AuthorizeStart resolves the requesting application's display name.
func (p *HTTPProvider) AuthorizeStart(ctx context.Context, req StartRequest) (*StartResponse, error) {
	var resp StartResponse
	if err := p.post(ctx, "/authorize/start", req, &resp); err != nil {
		return nil, err
	}
	if resp.ApplicationName == "" {
		return nil, errors.NewUpstreamError("identity provider request failed",
			fmt.Errorf("authorize/start response missing application_name"))
	}
	return &resp, nil
}

// Authorize completes the grant and returns the provider redirect.
func (p *HTTPProvider) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error) {
	var resp AuthorizeResponse
	if err := p.post(ctx, "/authorize", req, &resp); err != nil {
		return nil, err
	}
	if resp.RedirectURI == "" {
		return nil, errors.NewUpstreamError("identity provider request failed",
			fmt.Errorf("authorize response missing redirect_uri"))
	}
	return &resp, nil
}

// post sends one JSON request. Upstream detail stays in the wrapped
// cause for server logs; the public message is generic.
func (p *HTTPProvider) post(ctx context.Context, path string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return errors.NewConfigurationError("invalid identity provider URL", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiToken)

	resp, err := p.http.Do(req)
	if err != nil {
		return errors.NewUpstreamError("identity provider request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.NewUpstreamError("identity provider request failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewUpstreamError("identity provider request failed",
			fmt.Errorf("POST %s returned status %d: %s", path, resp.StatusCode, body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewUpstreamError("identity provider request failed",
			fmt.Errorf("malformed response from %s: %w", path, err))
	}
	return nil
}
