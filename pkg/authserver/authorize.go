// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package authserver implements the first-party Authorization-Code+PKCE
// flow: the authorize entry point that issues a CSRF-bound state and the
// consent entry point that consumes it and completes the grant upstream.
package authserver

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/podward/podward/pkg/api"
	"github.com/podward/podward/pkg/auth"
	"github.com/podward/podward/pkg/authserver/idp"
	"github.com/podward/podward/pkg/authserver/storage"
	"github.com/podward/podward/pkg/errors"
	"github.com/podward/podward/pkg/logger"
)

// pkceMethodS256 is the only accepted code challenge method. Plain PKCE
// defeats the point of the challenge and is rejected outright.
const pkceMethodS256 = "S256"

// invalidStateMessage is the uniform public message for every state
// failure, so callers cannot distinguish absent from expired from
// tampered.
const invalidStateMessage = "invalid or expired authorization request"

// Server drives the authorize/consent exchange.
type Server struct {
	states   storage.StateStore
	provider idp.Provider
}

// NewServer wires the flow's collaborators.
func NewServer(states storage.StateStore, provider idp.Provider) *Server {
	return &Server{states: states, provider: provider}
}

// Router returns the /oauth routes. Callers mount it behind the session
// token middleware; both handlers require an authenticated identity.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/authorize", s.handleAuthorize)
	r.Post("/authorize", s.handleConsent)
	return r
}

// consentData is what the consent screen renders.
type consentData struct {
	ApplicationName     string `json:"application_name"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

// authorizeParams are the fields shared by both entry points.
type authorizeParams struct {
	clientID            string
	redirectURI         string
	responseType        string
	scope               string
	state               string
	codeChallenge       string
	codeChallengeMethod string
	nonce               string
}

func paramsFrom(get func(string) string) authorizeParams {
	return authorizeParams{
		clientID:            get("client_id"),
		redirectURI:         get("redirect_uri"),
		responseType:        get("response_type"),
		scope:               get("scope"),
		state:               get("state"),
		codeChallenge:       get("code_challenge"),
		codeChallengeMethod: get("code_challenge_method"),
		nonce:               get("nonce"),
	}
}

// validate enforces the request shape both entry points share. PKCE is
// mandatory, not optional.
func (p authorizeParams) validate() error {
	if p.clientID == "" {
		return errors.NewBadRequestError("client_id is required", nil)
	}
	if p.responseType != "code" {
		return errors.NewBadRequestError("response_type must be code", nil)
	}
	parsed, err := url.Parse(p.redirectURI)
	if err != nil || !parsed.IsAbs() {
		return errors.NewBadRequestError("redirect_uri is malformed", err)
	}
	if p.codeChallenge == "" {
		return errors.NewBadRequestError("code_challenge is required", nil)
	}
	if p.codeChallengeMethod != pkceMethodS256 {
		return errors.NewBadRequestError("code_challenge_method must be S256", nil)
	}
	return nil
}

// handleAuthorize is the GET entry point: it resolves the requesting
// application upstream, stores the CSRF-bound state and returns the
// consent screen data.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		api.WriteError(w, errors.NewUnauthorizedError("authentication required", nil))
		return
	}

	params := paramsFrom(r.URL.Query().Get)
	if err := params.validate(); err != nil {
		api.WriteError(w, err)
		return
	}
	if params.state == "" {
		params.state = uuid.NewString()
	}

	start, err := s.provider.AuthorizeStart(r.Context(), idp.StartRequest{
		ClientID:    params.clientID,
		RedirectURI: params.redirectURI,
		Scope:       params.scope,
	})
	if err != nil {
		api.WriteError(w, err)
		return
	}

	err = s.states.Store(r.Context(), storage.StateEntry{
		State:               params.state,
		UserID:              identity.UserID,
		ClientID:            params.clientID,
		RedirectURI:         params.redirectURI,
		Scope:               params.scope,
		CodeChallenge:       params.codeChallenge,
		CodeChallengeMethod: params.codeChallengeMethod,
		Nonce:               params.nonce,
	})
	if err != nil {
		api.WriteError(w, err)
		return
	}

	logger.Debugw("authorization request issued",
		"client_id", params.clientID,
		"user_id", identity.UserID,
	)
	api.WriteJSON(w, http.StatusOK, consentData{
		ApplicationName:     start.ApplicationName,
		ClientID:            params.clientID,
		RedirectURI:         params.redirectURI,
		Scope:               params.scope,
		State:               params.state,
		CodeChallenge:       params.codeChallenge,
		CodeChallengeMethod: params.codeChallengeMethod,
	})
}

// handleConsent is the POST entry point: it consumes the state exactly
// once, then either completes the grant upstream or reports the denial
// to the caller's redirect URI.
func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		api.WriteError(w, errors.NewUnauthorizedError("authentication required", nil))
		return
	}

	if err := r.ParseForm(); err != nil {
		api.WriteError(w, errors.NewBadRequestError("malformed form body", err))
		return
	}
	params := paramsFrom(r.PostForm.Get)
	if params.state == "" {
		api.WriteError(w, errors.NewUnauthorizedError(invalidStateMessage, nil))
		return
	}
	if err := params.validate(); err != nil {
		api.WriteError(w, err)
		return
	}

	entry, err := s.states.Consume(r.Context(), params.state, storage.ConsumeMatch{
		UserID:      identity.UserID,
		ClientID:    params.clientID,
		RedirectURI: params.redirectURI,
		Scope:       params.scope,
	})
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if entry == nil {
		api.WriteError(w, errors.NewUnauthorizedError(invalidStateMessage, nil))
		return
	}

	if r.PostForm.Get("approved") != "true" {
		logger.Infow("consent denied",
			"client_id", entry.ClientID,
			"user_id", identity.UserID,
		)
		denial, err := url.Parse(entry.RedirectURI)
		if err != nil {
			api.WriteError(w, errors.NewBadRequestError("redirect_uri is malformed", err))
			return
		}
		q := denial.Query()
		q.Set("error", "access_denied")
		q.Set("error_description", "the user denied the authorization request")
		q.Set("state", entry.State)
		denial.RawQuery = q.Encode()
		http.Redirect(w, r, denial.String(), http.StatusFound)
		return
	}

	authorized, err := s.provider.Authorize(r.Context(), idp.AuthorizeRequest{
		UserID:              identity.UserID,
		ClientID:            entry.ClientID,
		RedirectURI:         entry.RedirectURI,
		Scope:               entry.Scope,
		State:               entry.State,
		CodeChallenge:       entry.CodeChallenge,
		CodeChallengeMethod: entry.CodeChallengeMethod,
		Nonce:               entry.Nonce,
	})
	if err != nil {
		api.WriteError(w, err)
		return
	}

	logger.Infow("consent approved",
		"client_id", entry.ClientID,
		"user_id", identity.UserID,
	)
	http.Redirect(w, r, authorized.RedirectURI, http.StatusFound)
}
