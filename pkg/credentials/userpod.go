// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"
)

// UserPod is the persisted pod-access record one provisioning run
// produces for a user. The client secret and DPoP key are stored in
// full because the pod client needs them back verbatim; the account
// token is reduced to its last four characters since nothing reads it
// after provisioning.
type UserPod struct {
	UserID               string
	Email                string
	ClientID             string
	ClientSecret         string
	DPoPPrivateJWK       string
	PodBaseURL           string
	WebID                string
	ClientResourceURL    string
	AccountTokenLastFour string
	CreatedAt            time.Time
}

// UserPodStore persists one pod record per user.
type UserPodStore interface {
	Insert(ctx context.Context, pod UserPod) error
	Get(ctx context.Context, userID string) (*UserPod, error)
}

// SQLiteUserPodStore implements UserPodStore on the shared SQLite handle.
type SQLiteUserPodStore struct {
	db *sql.DB
}

// NewSQLiteUserPodStore creates a store over an opened database.
func NewSQLiteUserPodStore(db *DB) *SQLiteUserPodStore {
	return &SQLiteUserPodStore{db: db.DB()}
}

var _ UserPodStore = (*SQLiteUserPodStore)(nil)

// Insert stores a freshly provisioned pod record. A second insert for
// the same user fails on the primary key; callers check Get first to
// reject re-provisioning before the remote saga ever runs.
func (s *SQLiteUserPodStore) Insert(ctx context.Context, pod UserPod) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_pods (
			user_id, css_email, css_client_id, css_client_secret,
			dpop_private_jwk, pod_base_url, web_id, client_resource_url,
			account_token_last_four, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pod.UserID,
		pod.Email,
		pod.ClientID,
		pod.ClientSecret,
		pod.DPoPPrivateJWK,
		pod.PodBaseURL,
		pod.WebID,
		pod.ClientResourceURL,
		pod.AccountTokenLastFour,
		pod.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting user pod record: %w", err)
	}
	return nil
}

// Get returns the user's pod record, or nil when none exists.
func (s *SQLiteUserPodStore) Get(ctx context.Context, userID string) (*UserPod, error) {
	var pod UserPod
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, css_email, css_client_id, css_client_secret,
			dpop_private_jwk, pod_base_url, web_id, client_resource_url,
			account_token_last_four, created_at
		FROM user_pods
		WHERE user_id = ?`,
		userID,
	).Scan(
		&pod.UserID,
		&pod.Email,
		&pod.ClientID,
		&pod.ClientSecret,
		&pod.DPoPPrivateJWK,
		&pod.PodBaseURL,
		&pod.WebID,
		&pod.ClientResourceURL,
		&pod.AccountTokenLastFour,
		&pod.CreatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading user pod record: %w", err)
	}
	return &pod, nil
}
