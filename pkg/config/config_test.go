// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
session:
  issuer: https://id.example.com
  audiences: [podward]
  jwks_url: https://id.example.com/.well-known/jwks.json
provider:
  base_url: https://id.example.com/api
pod:
  account_index_url: https://pods.example.com/.account/
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMinimalConfigAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Address)
	assert.Equal(t, "user_id", cfg.Session.UserIDClaim)
	assert.Equal(t, time.Hour, cfg.Session.JWKSTTL)
	assert.Equal(t, "/.oidc/token", cfg.Pod.TokenPath)
	assert.Equal(t, "memory", cfg.State.Backend)
	assert.Equal(t, 10*time.Minute, cfg.State.TTL)
}

func TestLoadMissingRequiredField(t *testing.T) {
	_, err := Load(writeConfig(t, `
session:
  audiences: [podward]
  jwks_url: https://id.example.com/.well-known/jwks.json
provider:
  base_url: https://id.example.com/api
pod:
  account_index_url: https://pods.example.com/.account/
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.issuer")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidateRedisBackendRequiresAddress(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	cfg.State.Backend = "redis"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state.redis.address")

	cfg.State.Redis.Address = "127.0.0.1:6379"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	cfg.State.Backend = "etcd"
	assert.Error(t, cfg.Validate())
}
