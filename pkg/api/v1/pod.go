// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/podward/podward/pkg/api"
	"github.com/podward/podward/pkg/auth/dpop"
	"github.com/podward/podward/pkg/credentials"
	"github.com/podward/podward/pkg/errors"
	"github.com/podward/podward/pkg/pod/provision"
)

// Provisioner runs the remote provisioning saga.
type Provisioner interface {
	Provision(ctx context.Context, req provision.Request) (*provision.Result, error)
}

// PodRoutes serves /api/me/pod.
type PodRoutes struct {
	saga Provisioner
	pods credentials.UserPodStore
}

// PodRouter mounts the pod registration endpoints behind the session
// token middleware.
func PodRouter(saga Provisioner, pods credentials.UserPodStore) http.Handler {
	routes := &PodRoutes{saga: saga, pods: pods}
	r := chi.NewRouter()
	r.Post("/register", routes.register)
	r.Get("/", routes.get)
	return r
}

// registerRequest is the caller's input for pod registration.
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	PodName  string `json:"pod_name"`
}

// podResponse never includes the stored client secret or DPoP key.
type podResponse struct {
	PodBaseURL string `json:"pod_base_url"`
	WebID      string `json:"web_id"`
	ClientID   string `json:"client_id"`
}

// register provisions a pod for the caller. An existing pod record
// rejects the request before the remote saga runs, so a duplicate
// registration never creates an orphaned remote account.
func (p *PodRoutes) register(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, errors.NewBadRequestError("malformed request body", err))
		return
	}
	if req.Email == "" || req.Password == "" || req.PodName == "" {
		api.WriteError(w, errors.NewBadRequestError("email, password and pod_name are required", nil))
		return
	}

	existing, err := p.pods.Get(r.Context(), id.UserID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if existing != nil {
		api.WriteError(w, errors.NewBadRequestError("pod already provisioned for this user", nil))
		return
	}

	privateJWK, err := dpop.GenerateKey()
	if err != nil {
		api.WriteError(w, err)
		return
	}

	result, err := p.saga.Provision(r.Context(), provision.Request{
		UserID:   id.UserID,
		Email:    req.Email,
		Password: req.Password,
		PodName:  req.PodName,
	})
	if err != nil {
		api.WriteError(w, err)
		return
	}

	record := credentials.UserPod{
		UserID:               id.UserID,
		Email:                result.Email,
		ClientID:             result.ClientID,
		ClientSecret:         result.ClientSecret,
		DPoPPrivateJWK:       privateJWK,
		PodBaseURL:           result.PodBaseURL,
		WebID:                result.WebID,
		ClientResourceURL:    result.ClientResourceURL,
		AccountTokenLastFour: tail(result.AccountToken),
		CreatedAt:            time.Now().UTC(),
	}
	if err := p.pods.Insert(r.Context(), record); err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusCreated, podResponse{
		PodBaseURL: result.PodBaseURL,
		WebID:      result.WebID,
		ClientID:   result.ClientID,
	})
}

// get returns the caller's pod record, without secret material.
func (p *PodRoutes) get(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	record, err := p.pods.Get(r.Context(), id.UserID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if record == nil {
		api.WriteError(w, errors.NewNotFoundError("no pod provisioned for this user", nil))
		return
	}

	api.WriteJSON(w, http.StatusOK, podResponse{
		PodBaseURL: record.PodBaseURL,
		WebID:      record.WebID,
		ClientID:   record.ClientID,
	})
}

// tail reduces a token to its last four characters for at-rest storage.
func tail(token string) string {
	if len(token) <= 4 {
		return token
	}
	return token[len(token)-4:]
}
