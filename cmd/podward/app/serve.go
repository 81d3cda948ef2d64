// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/podward/podward/pkg/api"
	v1 "github.com/podward/podward/pkg/api/v1"
	"github.com/podward/podward/pkg/auth"
	"github.com/podward/podward/pkg/authserver"
	"github.com/podward/podward/pkg/authserver/idp"
	"github.com/podward/podward/pkg/authserver/storage"
	"github.com/podward/podward/pkg/config"
	"github.com/podward/podward/pkg/credentials"
	"github.com/podward/podward/pkg/logger"
	"github.com/podward/podward/pkg/networking"
	"github.com/podward/podward/pkg/pod/provision"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the podward HTTP server",
	RunE:  serve,
}

func serve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Initialize(cfg.Debug)

	providerHTTP, err := networking.NewHTTPClientBuilder().
		WithCABundle(cfg.Provider.CACertPath).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build provider HTTP client: %w", err)
	}

	db, err := credentials.OpenDB(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	states, err := newStateStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer states.Close()

	cache := auth.NewJWKSCache(cfg.Session.JWKSURL, cfg.Session.JWKSTTL, nil)
	validator, err := auth.NewTokenValidator(auth.ValidatorConfig{
		Issuer:      cfg.Session.Issuer,
		Audiences:   cfg.Session.Audiences,
		UserIDClaim: cfg.Session.UserIDClaim,
	}, cache)
	if err != nil {
		return err
	}

	provider, err := idp.NewHTTPProvider(cfg.Provider.BaseURL, cfg.Provider.APIToken,
		idp.WithHTTPClient(providerHTTP))
	if err != nil {
		return err
	}
	machineAPI, err := credentials.NewHTTPMachineClientAPI(cfg.Provider.BaseURL, cfg.Provider.APIToken,
		credentials.WithMachineClientHTTP(providerHTTP))
	if err != nil {
		return err
	}
	saga, err := provision.NewSaga(cfg.Pod.AccountIndexURL)
	if err != nil {
		return err
	}

	manager := credentials.NewManager(credentials.NewSQLiteRecordStore(db), machineAPI)
	pods := credentials.NewSQLiteUserPodStore(db)
	oauth := authserver.NewServer(states, provider)

	router := api.NewRouter(api.RouterConfig{
		AuthMiddleware: validator.Middleware,
		OAuthRouter:    oauth.Router(),
		ClientsRouter:  v1.ClientsRouter(manager),
		PodRouter:      v1.PodRouter(saga, pods),
	})

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("podward listening", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newStateStore picks the configured OAuth state backend.
func newStateStore(ctx context.Context, cfg *config.Config) (storage.StateStore, error) {
	switch cfg.State.Backend {
	case "redis":
		return storage.NewRedisStateStore(ctx, storage.RedisConfig{
			Address:   cfg.State.Redis.Address,
			Password:  cfg.State.Redis.Password,
			DB:        cfg.State.Redis.DB,
			KeyPrefix: cfg.State.Redis.KeyPrefix,
			TTL:       cfg.State.TTL,
		})
	default:
		return storage.NewMemoryStateStore(storage.WithTTL(cfg.State.TTL)), nil
	}
}
