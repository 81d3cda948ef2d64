// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podward/podward/pkg/auth"
	"github.com/podward/podward/pkg/authserver/idp"
	"github.com/podward/podward/pkg/authserver/storage"
	"github.com/podward/podward/pkg/errors"
)

// fakeProvider is an in-memory idp.Provider.
type fakeProvider struct {
	startErr     error
	authorizeErr error
	lastAuthz    idp.AuthorizeRequest
}

func (f *fakeProvider) AuthorizeStart(_ context.Context, req idp.StartRequest) (*idp.StartResponse, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &idp.StartResponse{ApplicationName: "Example App"}, nil
}

func (f *fakeProvider) Authorize(_ context.Context, req idp.AuthorizeRequest) (*idp.AuthorizeResponse, error) {
	if f.authorizeErr != nil {
		return nil, f.authorizeErr
	}
	f.lastAuthz = req
	return &idp.AuthorizeResponse{
		RedirectURI: req.RedirectURI + "?code=abc123&state=" + url.QueryEscape(req.State),
	}, nil
}

type flowFixture struct {
	server   *Server
	provider *fakeProvider
	handler  http.Handler
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	states := storage.NewMemoryStateStore()
	t.Cleanup(func() { _ = states.Close() })

	provider := &fakeProvider{}
	server := NewServer(states, provider)
	return &flowFixture{server: server, provider: provider, handler: server.Router()}
}

func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), &auth.Identity{UserID: userID}))
}

func validQuery() url.Values {
	return url.Values{
		"client_id":             {"client-1"},
		"redirect_uri":          {"https://app.example.com/cb"},
		"response_type":         {"code"},
		"scope":                 {"openid profile"},
		"code_challenge":        {"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"},
		"code_challenge_method": {"S256"},
	}
}

func (f *flowFixture) authorize(t *testing.T, userID string, query url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/authorize?"+query.Encode(), nil)
	if userID != "" {
		req = asUser(req, userID)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *flowFixture) consent(t *testing.T, userID string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/authorize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if userID != "" {
		req = asUser(req, userID)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthorizeIssuesConsentData(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t)
	rec := f.authorize(t, "user-1", validQuery())
	require.Equal(t, http.StatusOK, rec.Code)

	var data consentData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, "Example App", data.ApplicationName)
	assert.Equal(t, "client-1", data.ClientID)
	assert.Equal(t, "openid profile", data.Scope)
	// No caller state: the server generated one.
	assert.NotEmpty(t, data.State)
}

func TestAuthorizeKeepsCallerState(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t)
	q := validQuery()
	q.Set("state", "caller-state")
	rec := f.authorize(t, "user-1", q)
	require.Equal(t, http.StatusOK, rec.Code)

	var data consentData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, "caller-state", data.State)
}

func TestAuthorizeValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(url.Values)
		status int
	}{
		{"missing code_challenge", func(q url.Values) { q.Del("code_challenge") }, http.StatusBadRequest},
		{"plain pkce method", func(q url.Values) { q.Set("code_challenge_method", "plain") }, http.StatusBadRequest},
		{"missing pkce method", func(q url.Values) { q.Del("code_challenge_method") }, http.StatusBadRequest},
		{"malformed redirect_uri", func(q url.Values) { q.Set("redirect_uri", "not-a-url") }, http.StatusBadRequest},
		{"wrong response_type", func(q url.Values) { q.Set("response_type", "token") }, http.StatusBadRequest},
		{"missing client_id", func(q url.Values) { q.Del("client_id") }, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFlowFixture(t)
			q := validQuery()
			tc.mutate(q)
			rec := f.authorize(t, "user-1", q)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestAuthorizeRequiresIdentity(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t)
	rec := f.authorize(t, "", validQuery())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorizeUpstreamFailure(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t)
	f.provider.startErr = errors.NewUpstreamError("identity provider request failed", nil)
	rec := f.authorize(t, "user-1", validQuery())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

// issueState runs the authorize step and returns the issued state plus
// the form a matching consent would post.
func (f *flowFixture) issueState(t *testing.T) (string, url.Values) {
	t.Helper()
	rec := f.authorize(t, "user-1", validQuery())
	require.Equal(t, http.StatusOK, rec.Code)

	var data consentData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))

	form := validQuery()
	form.Set("state", data.State)
	form.Set("approved", "true")
	return data.State, form
}

func TestConsentApprovedRedirectsToProvider(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t)
	state, form := f.issueState(t)

	rec := f.consent(t, "user-1", form)
	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "https://app.example.com/cb?code=abc123")
	assert.Contains(t, loc, url.QueryEscape(state))

	// The upstream grant carried the stored PKCE binding.
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", f.provider.lastAuthz.CodeChallenge)
	assert.Equal(t, "S256", f.provider.lastAuthz.CodeChallengeMethod)
	assert.Equal(t, "user-1", f.provider.lastAuthz.UserID)
}

func TestConsentReplayFails(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t)
	_, form := f.issueState(t)

	rec := f.consent(t, "user-1", form)
	require.Equal(t, http.StatusFound, rec.Code)

	rec = f.consent(t, "user-1", form)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConsentDeniedRedirectsWithError(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t)
	state, form := f.issueState(t)
	form.Set("approved", "false")

	rec := f.consent(t, "user-1", form)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", loc.Host)
	assert.Equal(t, "access_denied", loc.Query().Get("error"))
	assert.Equal(t, state, loc.Query().Get("state"))
}

func TestConsentParameterTamperingFails(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t)
	_, form := f.issueState(t)
	form.Set("scope", "openid admin")

	rec := f.consent(t, "user-1", form)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The entry survives tampering; the real tuple still succeeds.
	form.Set("scope", "openid profile")
	rec = f.consent(t, "user-1", form)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestConsentFromAnotherUserFails(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t)
	_, form := f.issueState(t)

	rec := f.consent(t, "user-2", form)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConsentMissingStateFails(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t)
	form := validQuery()
	form.Set("approved", "true")

	rec := f.consent(t, "user-1", form)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
