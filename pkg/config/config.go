// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the podward service configuration.
//
// Configuration is read from an optional YAML file plus PODWARD_* environment
// variables via viper. The result is an explicit Config struct which cmd
// injects into constructors; no package in this repo reads viper directly.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/podward/podward/pkg/errors"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Session  SessionConfig  `mapstructure:"session"`
	Provider ProviderConfig `mapstructure:"provider"`
	Pod      PodConfig      `mapstructure:"pod"`
	State    StateConfig    `mapstructure:"state"`
	Database DatabaseConfig `mapstructure:"database"`
	Debug    bool           `mapstructure:"debug"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// SessionConfig configures validation of inbound bearer tokens.
type SessionConfig struct {
	// Issuer is the expected iss claim, matched exactly.
	Issuer string `mapstructure:"issuer"`

	// Audiences are the accepted audiences; a token is valid when its aud
	// set contains at least one of them.
	Audiences []string `mapstructure:"audiences"`

	// JWKSURL is the endpoint the signing keys are fetched from.
	JWKSURL string `mapstructure:"jwks_url"`

	// UserIDClaim names the claim carrying the local user identifier.
	// The generic sub claim identifies the provider session, not the user.
	UserIDClaim string `mapstructure:"user_id_claim"`

	// JWKSTTL bounds how long cached signing keys are trusted without a
	// refresh.
	JWKSTTL time.Duration `mapstructure:"jwks_ttl"`
}

// ProviderConfig configures the upstream identity provider APIs.
type ProviderConfig struct {
	// BaseURL is the root of the provider's first-party authorize and
	// machine-client APIs.
	BaseURL string `mapstructure:"base_url"`

	// APIToken authenticates podward itself to the provider APIs.
	APIToken string `mapstructure:"api_token"`

	// CACertPath is an optional CA bundle for provider TLS.
	CACertPath string `mapstructure:"ca_cert_path"`
}

// PodConfig configures access to the pod server.
type PodConfig struct {
	// AccountIndexURL is the unauthenticated account-index discovery
	// document of the pod server, used by provisioning.
	AccountIndexURL string `mapstructure:"account_index_url"`

	// TokenPath is the token endpoint path relative to each pod base URL.
	TokenPath string `mapstructure:"token_path"`
}

// StateConfig configures the OAuth state store backend.
type StateConfig struct {
	// Backend is "memory" or "redis".
	Backend string `mapstructure:"backend"`

	// TTL is how long an issued state entry stays consumable.
	TTL time.Duration `mapstructure:"ttl"`

	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the Redis state store backend.
type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// DatabaseConfig configures the SQLite credential store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1:8080")
	v.SetDefault("session.user_id_claim", "user_id")
	v.SetDefault("session.jwks_ttl", time.Hour)
	v.SetDefault("pod.token_path", "/.oidc/token")
	v.SetDefault("state.backend", "memory")
	v.SetDefault("state.ttl", 10*time.Minute)
	v.SetDefault("state.redis.key_prefix", "podward:oauth:state:")
	v.SetDefault("database.path", "podward.db")
}

// Load reads configuration from the given file (optional, may be empty)
// and the environment, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PODWARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigurationError("failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigurationError("failed to parse configuration", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that all required settings are present.
func (c *Config) Validate() error {
	switch {
	case c.Session.Issuer == "":
		return errors.NewConfigurationError("session.issuer is required", nil)
	case len(c.Session.Audiences) == 0:
		return errors.NewConfigurationError("session.audiences is required", nil)
	case c.Session.JWKSURL == "":
		return errors.NewConfigurationError("session.jwks_url is required", nil)
	case c.Provider.BaseURL == "":
		return errors.NewConfigurationError("provider.base_url is required", nil)
	case c.Pod.AccountIndexURL == "":
		return errors.NewConfigurationError("pod.account_index_url is required", nil)
	}

	if c.State.Backend != "memory" && c.State.Backend != "redis" {
		return errors.NewConfigurationError("state.backend must be memory or redis", nil)
	}
	if c.State.Backend == "redis" && c.State.Redis.Address == "" {
		return errors.NewConfigurationError("state.redis.address is required for the redis backend", nil)
	}
	return nil
}
