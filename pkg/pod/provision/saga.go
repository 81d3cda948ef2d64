// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package provision creates the remote account, pod and machine client for
// a newly registered user on the Community Solid Server.
//
// The saga is linear and mostly non-compensating: a failure at any step
// aborts provisioning and is surfaced to the caller, but local user
// registration is never rolled back. Orphaned remote accounts are left for
// manual remediation, so every failure is logged with the user, email, pod
// name and failing step.
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/podward/podward/pkg/errors"
	"github.com/podward/podward/pkg/logger"
	"github.com/podward/podward/pkg/networking"
)

// accountTokenScheme authenticates account-scoped calls on the server.
const accountTokenScheme = "CSS-Account-Token"

// ErrDeleteNotImplemented is returned by DeleteUserPod, which has no
// working implementation yet.
var ErrDeleteNotImplemented = stderrors.New("pod deletion is not implemented")

// Request carries everything the saga needs for one user.
type Request struct {
	UserID   string
	Email    string
	Password string
	PodName  string
}

// Result is the output of a completed saga run. It is persisted by the
// caller and never mutated afterwards, except for credential rotation
// which is a separate operation.
type Result struct {
	AccountToken      string
	PodBaseURL        string
	WebID             string
	ClientID          string
	ClientSecret      string
	ClientResourceURL string
	Email             string
}

// controls are the server's discovered control URLs, already resolved to
// absolute form against the account index base.
type controls struct {
	accountCreate     string
	passwordCreate    string
	pod               string
	clientCredentials string
}

// Saga provisions remote accounts against one account index endpoint.
type Saga struct {
	indexURL *url.URL
	http     networking.HTTPClient
}

// Option configures a Saga.
type Option func(*Saga)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h networking.HTTPClient) Option {
	return func(s *Saga) {
		s.http = h
	}
}

// NewSaga builds a saga bound to the server's account index URL.
func NewSaga(accountIndexURL string, opts ...Option) (*Saga, error) {
	if accountIndexURL == "" {
		return nil, errors.NewConfigurationError("provisioning requires an account index URL", nil)
	}
	base, err := url.Parse(accountIndexURL)
	if err != nil || !base.IsAbs() {
		return nil, errors.NewConfigurationError("invalid account index URL", err)
	}

	s := &Saga{indexURL: base}
	for _, opt := range opts {
		opt(s)
	}
	if s.http == nil {
		httpClient, err := networking.NewHTTPClientBuilder().Build()
		if err != nil {
			return nil, errors.NewConfigurationError("failed to build HTTP client", err)
		}
		s.http = httpClient
	}
	return s, nil
}

// Provision runs the six-step saga for one user. Steps:
//
//  1. Discover the server's control URLs (unauthenticated).
//  2. Create an account, obtaining an account-scoped token.
//  3. Re-discover controls with the account token, since the server may
//     expose account-specific URLs only once authenticated.
//  4. Attach an email/password login to the account.
//  5. Create the pod, obtaining its base URL and WebID.
//  6. Mint client credentials scoped to the new WebID.
func (s *Saga) Provision(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == "" || req.Email == "" || req.Password == "" || req.PodName == "" {
		return nil, errors.NewBadRequestError("provisioning request is incomplete", nil)
	}

	ctl, err := s.discoverControls(ctx, "")
	if err != nil {
		return nil, s.fail(req, "discover_controls", err)
	}

	accountToken, err := s.createAccount(ctx, ctl)
	if err != nil {
		return nil, s.fail(req, "create_account", err)
	}

	ctl, err = s.discoverControls(ctx, accountToken)
	if err != nil {
		return nil, s.fail(req, "rediscover_controls", err)
	}

	if err := s.createLogin(ctx, ctl, accountToken, req.Email, req.Password); err != nil {
		return nil, s.fail(req, "create_login", err)
	}

	podURL, webID, err := s.createPod(ctx, ctl, accountToken, req.PodName)
	if err != nil {
		return nil, s.fail(req, "create_pod", err)
	}

	clientID, clientSecret, resourceURL, err := s.createClientCredentials(ctx, ctl, accountToken, req.PodName, webID)
	if err != nil {
		return nil, s.fail(req, "create_client_credentials", err)
	}

	logger.Infow("pod provisioned",
		"user_id", req.UserID,
		"pod", podURL,
		"web_id", webID,
	)
	return &Result{
		AccountToken:      accountToken,
		PodBaseURL:        podURL,
		WebID:             webID,
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		ClientResourceURL: resourceURL,
		Email:             req.Email,
	}, nil
}

// DeleteUserPod is the compensating action for Provision. It has no
// working implementation; callers must treat remote cleanup as a manual
// operation until this is built.
func (s *Saga) DeleteUserPod(_ context.Context, userID, podBaseURL string) error {
	logger.Errorw("pod deletion requested but not implemented, remote account must be removed manually",
		"user_id", userID,
		"pod", podBaseURL,
	)
	return ErrDeleteNotImplemented
}

// fail wraps a step error with the remediation context the logs need.
// The password and any minted secrets are deliberately absent.
func (s *Saga) fail(req Request, step string, err error) error {
	logger.Errorw("pod provisioning failed",
		"user_id", req.UserID,
		"email", req.Email,
		"pod_name", req.PodName,
		"step", step,
	)
	return errors.NewUpstreamError(fmt.Sprintf("pod provisioning failed at %s", step), err)
}

// discoverControls fetches the account index document and resolves the
// control URLs the saga uses. Controls may come back absolute or relative
// to the index base; they are normalized here, once, and nowhere else.
func (s *Saga) discoverControls(ctx context.Context, accountToken string) (*controls, error) {
	body, err := s.call(ctx, http.MethodGet, s.indexURL.String(), accountToken, nil)
	if err != nil {
		return nil, err
	}

	ctl := &controls{}
	for _, field := range []struct {
		path string
		dst  *string
	}{
		{"controls.account.create", &ctl.accountCreate},
		{"controls.password.create", &ctl.passwordCreate},
		{"controls.account.pod", &ctl.pod},
		{"controls.account.clientCredentials", &ctl.clientCredentials},
	} {
		raw := gjson.GetBytes(body, field.path).String()
		if raw == "" {
			continue
		}
		resolved, err := s.resolveControl(raw)
		if err != nil {
			return nil, fmt.Errorf("control %s: %w", field.path, err)
		}
		*field.dst = resolved
	}
	return ctl, nil
}

// resolveControl normalizes one control URL against the index base.
func (s *Saga) resolveControl(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("malformed control URL %q: %w", raw, err)
	}
	return s.indexURL.ResolveReference(ref).String(), nil
}

func (s *Saga) createAccount(ctx context.Context, ctl *controls) (string, error) {
	if ctl.accountCreate == "" {
		return "", fmt.Errorf("server exposes no account creation control")
	}
	body, err := s.call(ctx, http.MethodPost, ctl.accountCreate, "", map[string]any{})
	if err != nil {
		return "", err
	}
	token := gjson.GetBytes(body, "authorization").String()
	if token == "" {
		return "", fmt.Errorf("account creation response missing authorization token")
	}
	return token, nil
}

func (s *Saga) createLogin(ctx context.Context, ctl *controls, accountToken, email, password string) error {
	if ctl.passwordCreate == "" {
		return fmt.Errorf("server exposes no password login control")
	}
	_, err := s.call(ctx, http.MethodPost, ctl.passwordCreate, accountToken, map[string]any{
		"email":    email,
		"password": password,
	})
	return err
}

func (s *Saga) createPod(ctx context.Context, ctl *controls, accountToken, podName string) (podURL, webID string, err error) {
	if ctl.pod == "" {
		return "", "", fmt.Errorf("server exposes no pod creation control")
	}
	body, err := s.call(ctx, http.MethodPost, ctl.pod, accountToken, map[string]any{
		"name": podName,
	})
	if err != nil {
		return "", "", err
	}
	podURL = gjson.GetBytes(body, "pod").String()
	webID = gjson.GetBytes(body, "webId").String()
	if podURL == "" || webID == "" {
		return "", "", fmt.Errorf("pod creation response missing pod or webId")
	}
	return podURL, webID, nil
}

func (s *Saga) createClientCredentials(ctx context.Context, ctl *controls, accountToken, podName, webID string) (id, secret, resource string, err error) {
	if ctl.clientCredentials == "" {
		return "", "", "", fmt.Errorf("server exposes no client credentials control")
	}
	body, err := s.call(ctx, http.MethodPost, ctl.clientCredentials, accountToken, map[string]any{
		"name":  fmt.Sprintf("podward-%s-%d", podName, time.Now().Unix()),
		"webId": webID,
	})
	if err != nil {
		return "", "", "", err
	}
	id = gjson.GetBytes(body, "id").String()
	secret = gjson.GetBytes(body, "secret").String()
	resource = gjson.GetBytes(body, "resource").String()
	if id == "" || secret == "" {
		return "", "", "", fmt.Errorf("client credential response missing id or secret")
	}
	return id, secret, resource, nil
}

// call performs one JSON request against the account API and returns the
// response body, treating any non-2xx status as an error carrying the
// status and a bounded body excerpt.
func (s *Saga) call(ctx context.Context, method, target, accountToken string, payload map[string]any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", target, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accountToken != "" {
		req.Header.Set("Authorization", accountTokenScheme+" "+accountToken)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s returned status %d: %s", method, target, resp.StatusCode, body)
	}
	return body, nil
}
