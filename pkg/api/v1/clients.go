// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package v1 contains the versioned HTTP handlers for the caller-facing
// API: client credential management and pod registration.
package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/podward/podward/pkg/api"
	"github.com/podward/podward/pkg/auth"
	"github.com/podward/podward/pkg/credentials"
	"github.com/podward/podward/pkg/errors"
)

// ClientsRoutes serves /api/me/clients.
type ClientsRoutes struct {
	manager *credentials.Manager
}

// ClientsRouter mounts the client credential endpoints. Callers mount it
// behind the session token middleware.
func ClientsRouter(manager *credentials.Manager) http.Handler {
	routes := &ClientsRoutes{manager: manager}
	r := chi.NewRouter()
	r.Post("/create", routes.create)
	r.Get("/list", routes.list)
	r.Post("/{id}/rotate", routes.rotate)
	r.Delete("/{id}", routes.remove)
	return r
}

// identity pulls the validated caller or writes the 401.
func identity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		api.WriteError(w, errors.NewUnauthorizedError("authentication required", nil))
		return nil, false
	}
	return id, true
}

// create mints a credential. The response is the only place the full
// secret ever appears.
func (c *ClientsRoutes) create(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req credentials.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, errors.NewBadRequestError("malformed request body", err))
		return
	}

	record, err := c.manager.Create(r.Context(), id.UserID, req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, record)
}

func (c *ClientsRoutes) list(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	records, err := c.manager.List(r.Context(), id.UserID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, records)
}

func (c *ClientsRoutes) rotate(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	record, err := c.manager.Rotate(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, record)
}

func (c *ClientsRoutes) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	if err := c.manager.Delete(r.Context(), chi.URLParam(r, "id"), id.UserID); err != nil {
		api.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
