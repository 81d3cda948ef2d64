// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the error taxonomy for the authentication and
// provisioning layer.
//
// Every error crossing a package boundary carries one of the types below.
// The Message is safe to show to API callers; the Cause carries the full
// detail and is only ever logged server-side. Validation failures in
// particular must not reveal which individual check failed, so callers
// construct them with a single generic message.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// TypeUnauthorized is returned for bad, expired or malformed tokens,
	// invalid or expired OAuth state, and exhausted nonce retries.
	TypeUnauthorized = "unauthorized"

	// TypeBadRequest is returned for missing PKCE parameters, unsupported
	// PKCE methods, malformed redirect URIs and empty state values.
	TypeBadRequest = "bad_request"

	// TypeNotFound is returned when a resource does not exist or is not
	// owned by the caller. Ownership failures deliberately use this type
	// so existence is never confirmed to unauthorized callers.
	TypeNotFound = "not_found"

	// TypeConfiguration is returned for missing settings or malformed
	// signing keys. Fatal and never user-facing.
	TypeConfiguration = "configuration"

	// TypeUpstream is returned when a call to the identity provider or
	// pod server failed. Wraps status and body for logs; clients only
	// see the generic message.
	TypeUpstream = "upstream"
)

// Error represents an error in the application.
type Error struct {
	// Type is one of the Type* constants.
	Type string

	// Message is a caller-safe description.
	Message string

	// Cause is the underlying error, if any. Logged, never surfaced.
	Cause error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error with the given type.
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewUnauthorizedError creates a new unauthorized error.
func NewUnauthorizedError(message string, cause error) *Error {
	return NewError(TypeUnauthorized, message, cause)
}

// NewBadRequestError creates a new bad request error.
func NewBadRequestError(message string, cause error) *Error {
	return NewError(TypeBadRequest, message, cause)
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(message string, cause error) *Error {
	return NewError(TypeNotFound, message, cause)
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, cause error) *Error {
	return NewError(TypeConfiguration, message, cause)
}

// NewUpstreamError creates a new upstream error.
func NewUpstreamError(message string, cause error) *Error {
	return NewError(TypeUpstream, message, cause)
}

// IsType reports whether err (or anything it wraps) is an *Error of the
// given type.
func IsType(err error, errorType string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errorType
	}
	return false
}

// IsUnauthorized reports whether err is an unauthorized error.
func IsUnauthorized(err error) bool { return IsType(err, TypeUnauthorized) }

// IsBadRequest reports whether err is a bad request error.
func IsBadRequest(err error) bool { return IsType(err, TypeBadRequest) }

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool { return IsType(err, TypeNotFound) }

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return IsType(err, TypeConfiguration) }

// IsUpstream reports whether err is an upstream error.
func IsUpstream(err error) bool { return IsType(err, TypeUpstream) }
