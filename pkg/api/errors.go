// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package api carries the shared HTTP plumbing for Podward's handlers:
// the error-to-status mapping and JSON response helpers.
package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/podward/podward/pkg/errors"
	"github.com/podward/podward/pkg/logger"
)

// errorResponse is the JSON body written for every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps the error taxonomy onto HTTP status codes. Unknown
// errors collapse to 500 with a generic message.
func statusFor(err error) (int, string) {
	var typed *errors.Error
	if !stderrors.As(err, &typed) {
		return http.StatusInternalServerError, "internal server error"
	}
	switch typed.Type {
	case errors.TypeUnauthorized:
		return http.StatusUnauthorized, typed.Message
	case errors.TypeBadRequest:
		return http.StatusBadRequest, typed.Message
	case errors.TypeNotFound:
		return http.StatusNotFound, typed.Message
	case errors.TypeUpstream:
		// Upstream detail is logged server-side only.
		return http.StatusBadGateway, typed.Message
	default:
		// Configuration problems are operator-facing, not caller-facing.
		return http.StatusInternalServerError, "internal server error"
	}
}

// WriteError logs the full error server-side and writes the taxonomy's
// status with a client-safe message.
func WriteError(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Errorw("request failed", "error", err)
	} else {
		logger.Debugw("request rejected", "status", status, "error", err)
	}
	WriteJSON(w, status, errorResponse{Error: message})
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("failed to encode response", "error", err)
	}
}
