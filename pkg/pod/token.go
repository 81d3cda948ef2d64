// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package pod

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/podward/podward/pkg/auth/dpop"
	"github.com/podward/podward/pkg/errors"
	"github.com/podward/podward/pkg/logger"
)

// tokenResponse is the pod server's token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// token returns a usable access token, acquiring one when none is held.
// A token whose expiry has already passed is never presented; it
// short-circuits to an unauthorized error or, under token reuse, is
// discarded and reacquired.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.reuseToken {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
			return c.accessToken, nil
		}
		c.accessToken = ""

		token, expiry, err := c.requestToken(ctx)
		if err != nil {
			return "", err
		}
		c.accessToken, c.tokenExpiry = token, expiry
		return token, nil
	}

	token, expiry, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}
	if !expiry.After(time.Now()) {
		return "", errors.NewUnauthorizedError("access token expired before use", nil)
	}
	return token, nil
}

// requestToken performs the client-credentials grant against the pod
// server's token endpoint, retrying exactly once when the server issues
// a DPoP nonce challenge.
func (c *Client) requestToken(ctx context.Context) (string, time.Time, error) {
	resp, err := c.doTokenRequest(ctx, "")
	if err != nil {
		return "", time.Time{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		nonce := resp.Header.Get("DPoP-Nonce")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if nonce == "" {
			return "", time.Time{}, errors.NewUpstreamError("token request failed",
				fmt.Errorf("status %d: %s", resp.StatusCode, body))
		}

		logger.Debugw("token endpoint issued DPoP nonce challenge, retrying once",
			"status", resp.StatusCode,
		)
		resp, err = c.doTokenRequest(ctx, nonce)
		if err != nil {
			return "", time.Time{}, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return "", time.Time{}, errors.NewUnauthorizedError("token request rejected after nonce retry",
				fmt.Errorf("status %d: %s", resp.StatusCode, body))
		}
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", time.Time{}, errors.NewUpstreamError("malformed token response", err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, errors.NewUpstreamError("token response missing access_token", nil)
	}

	return tr.AccessToken, time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second), nil
}

// doTokenRequest issues one token request with a fresh proof. The proof
// carries no ath (there is no token yet) and the nonce only when the
// server has challenged.
func (c *Client) doTokenRequest(ctx context.Context, nonce string) (*http.Response, error) {
	form := url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"webid"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.TokenEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.NewConfigurationError("invalid token endpoint", err)
	}

	var proofOpts []dpop.ProofOption
	if nonce != "" {
		proofOpts = append(proofOpts, dpop.WithNonce(nonce))
	}
	proof, err := c.signer.Proof(http.MethodPost, c.creds.TokenEndpoint, proofOpts...)
	if err != nil {
		return nil, err
	}

	// Basic credentials are URL-encoded per the CSS token endpoint
	// contract before base64 encoding.
	basic := url.QueryEscape(c.creds.ClientID) + ":" + url.QueryEscape(c.creds.ClientSecret)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(basic)))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("DPoP", proof)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewUpstreamError("token request failed", err)
	}
	return resp, nil
}
