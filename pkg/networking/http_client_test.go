// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	client, err := NewHTTPClientBuilder().Build()
	require.NoError(t, err)
	assert.Equal(t, HTTPTimeout, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, transport.TLSHandshakeTimeout)
	assert.Nil(t, transport.TLSClientConfig)
}

func TestBuildWithTimeout(t *testing.T) {
	t.Parallel()

	client, err := NewHTTPClientBuilder().WithTimeout(5 * time.Second).Build()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, client.Timeout)
}

func TestBuildWithMissingCABundle(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPClientBuilder().WithCABundle("/nonexistent/bundle.pem").Build()
	assert.Error(t, err)
}

func TestBuildWithInvalidCABundle(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bundle.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

	_, err := NewHTTPClientBuilder().WithCABundle(path).Build()
	assert.ErrorContains(t, err, "parse CA certificate bundle")
}

func TestBuiltClientIssuesRequests(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := NewHTTPClientBuilder().Build()
	require.NoError(t, err)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
