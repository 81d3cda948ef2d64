// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage holds the pending first-party authorization requests
// between the authorize and consent steps of the OAuth flow.
//
// Entries are short-lived and strictly single-use: consuming one removes
// it atomically, so a replayed consent can never succeed twice. Lookups
// that miss, hit an expired entry, or hit an entry whose bound parameters
// do not match all report the same "no entry" result, never an error.
package storage

import (
	"context"
	"time"
)

// DefaultTTL bounds how long an issued authorization request stays valid.
const DefaultTTL = 10 * time.Minute

// StateEntry is one pending authorization request, keyed by its opaque
// state token.
type StateEntry struct {
	State               string    `json:"state"`
	UserID              string    `json:"user_id"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	Nonce               string    `json:"nonce,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// ConsumeMatch is the tuple an entry is CSRF-bound to. Every field must
// equal the stored value for consumption to succeed.
type ConsumeMatch struct {
	UserID      string
	ClientID    string
	RedirectURI string
	Scope       string
}

// matches reports whether the entry is bound to exactly this tuple.
func (e *StateEntry) matches(m ConsumeMatch) bool {
	return e.UserID == m.UserID &&
		e.ClientID == m.ClientID &&
		e.RedirectURI == m.RedirectURI &&
		e.Scope == m.Scope
}

// StateStore persists pending authorization requests.
//
// Consume is atomic check-and-remove: when the state exists, is unexpired
// and the match tuple is equal, the entry is returned and removed in one
// step. Absent, expired, or mismatched lookups return (nil, nil); a
// mismatch leaves the entry in place. Errors are reserved for backend
// failures.
type StateStore interface {
	Store(ctx context.Context, entry StateEntry) error
	Consume(ctx context.Context, state string, match ConsumeMatch) (*StateEntry, error)
	Close() error
}
