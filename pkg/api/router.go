// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// middlewareTimeout bounds every request; individual upstream calls
// carry their own client timeouts below it.
const middlewareTimeout = 60 * time.Second

// RouterConfig collects the assembled sub-routers and the session
// middleware guarding them.
type RouterConfig struct {
	// AuthMiddleware validates the inbound session token and stores
	// the caller identity in the request context.
	AuthMiddleware func(http.Handler) http.Handler

	OAuthRouter   http.Handler
	ClientsRouter http.Handler
	PodRouter     http.Handler
}

// NewRouter assembles the full HTTP surface. Everything except the
// health endpoint sits behind the session token middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
	)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(cfg.AuthMiddleware)
		r.Mount("/oauth", cfg.OAuthRouter)
		r.Route("/api/me", func(r chi.Router) {
			r.Mount("/clients", cfg.ClientsRouter)
			r.Mount("/pod", cfg.PodRouter)
		})
	})

	return r
}
