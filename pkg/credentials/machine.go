// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package credentials

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

// MachineClient is a minted upstream M2M client.
type MachineClient struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// MachineClientRequest mints a client bound to a user via trusted
// metadata the user cannot influence.
type MachineClientRequest struct {
	Name            string            `json:"name,omitempty"`
	Scopes          []string          `json:"scopes"`
	TrustedMetadata map[string]string `json:"trusted_metadata"`
}

// MachineClientAPI is the identity provider's M2M client surface.
type MachineClientAPI interface {
	Create(ctx context.Context, req MachineClientRequest) (*MachineClient, error)
	Rotate(ctx context.Context, clientID string) (*MachineClient, error)
	// Delete removes the upstream client; an already-deleted client is
	// treated as success.
	Delete(ctx context.Context, clientID string) error
}

// HTTPMachineClientAPI implements MachineClientAPI over the provider's
// REST API.
type HTTPMachineClientAPI struct {
	baseURL  string
	apiToken string
	http     networking.HTTPClient
}

// MachineClientOption configures an HTTPMachineClientAPI.
type MachineClientOption func(*HTTPMachineClientAPI)

// WithMachineClientHTTP overrides the underlying HTTP client.
func WithMachineClientHTTP(h networking.HTTPClient) MachineClientOption {
	return func(a *HTTPMachineClientAPI) {
		a.http = h
	}
}

// NewHTTPMachineClientAPI builds the API client from the configured
// provider base URL and API token.
func NewHTTPMachineClientAPI(baseURL, apiToken string, opts ...MachineClientOption) (*HTTPMachineClientAPI, error) {
	if baseURL == "" {
		return nil, errors.NewConfigurationError("machine client API requires a base URL", nil)
	}
	if apiToken == "" {
		return nil, errors.NewConfigurationError("machine client API requires an API token", nil)
	}

	a := &HTTPMachineClientAPI{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiToken: apiToken,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.http == nil {
		httpClient, err := networking.NewHTTPClientBuilder().Build()
		if err != nil {
			return nil, errors.NewConfigurationError("failed to build HTTP client", err)
		}
		a.http = httpClient
	}
	return a, nil
}

var _ MachineClientAPI = (*HTTPMachineClientAPI)(nil)

// Create mints a new client.
func (a *HTTPMachineClientAPI) Create(ctx context.Context, req MachineClientRequest) (*MachineClient, error) {
	var client MachineClient
	if err := a.do(ctx, http.MethodPost, "/clients", req, &client); err != nil {
		return nil, err
	}
	if client.ClientID == "" || client.ClientSecret == "" {
		return nil, errors.NewUpstreamError("machine client request failed",
			fmt.Errorf("create response missing client_id or client_secret"))
	}
	return &client, nil
}

// Rotate replaces the client's secret.
func (a *HTTPMachineClientAPI) Rotate(ctx context.Context, clientID string) (*MachineClient, error) {
	var client MachineClient
	if err := a.do(ctx, http.MethodPost, "/clients/"+clientID+"/rotate", nil, &client); err != nil {
		return nil, err
	}
	if client.ClientSecret == "" {
		return nil, errors.NewUpstreamError("machine client request failed",
			fmt.Errorf("rotate response missing client_secret"))
	}
	if client.ClientID == "" {
		client.ClientID = clientID
	}
	return &client, nil
}

// Delete removes the client, tolerating an upstream 404.
func (a *HTTPMachineClientAPI) Delete(ctx context.Context, clientID string) error {
	err := a.do(ctx, http.MethodDelete, "/clients/"+clientID, nil, nil)
	if errors.IsNotFound(err) {
		return nil
	}
	return err
}

func (a *HTTPMachineClientAPI) do(ctx context.Context, method, path string, payload, out any) error {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding machine client request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return errors.NewConfigurationError("invalid machine client API URL", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return errors.NewUpstreamError("machine client request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.NewUpstreamError("machine client request failed", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return errors.NewNotFoundError("machine client not found", nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewUpstreamError("machine client request failed",
			fmt.Errorf("%s %s returned status %d: %s", method, path, resp.StatusCode, body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return errors.NewUpstreamError("machine client request failed",
				fmt.Errorf("malformed response from %s: %w", path, err))
		}
	}
	return nil
}
