// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/podward/podward/pkg/errors"
	"github.com/podward/podward/pkg/logger"
)

// userIDMetadataKey is the trusted metadata field binding an upstream
// client to its owner.
const userIDMetadataKey = "user_id"

// notFoundMessage is the uniform message for records a caller cannot
// see, whether they are absent or owned by someone else.
const notFoundMessage = "credential not found"

// CreateRequest is the caller's input for minting a credential.
type CreateRequest struct {
	Scopes      []string `json:"scopes"`
	Name        string   `json:"client_name,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Manager implements the credential lifecycle. Every mutating operation
// resolves the record by (id, user_id) first, so cross-user access
// surfaces as not found rather than forbidden.
type Manager struct {
	store RecordStore
	idp   MachineClientAPI
}

// NewManager wires the manager's collaborators.
func NewManager(store RecordStore, idp MachineClientAPI) *Manager {
	return &Manager{store: store, idp: idp}
}

// Create mints an upstream client bound to userID and persists its
// metadata. The returned record carries the full secret; this is the
// only time it is ever exposed.
func (m *Manager) Create(ctx context.Context, userID string, req CreateRequest) (*Record, error) {
	if len(req.Scopes) == 0 {
		return nil, errors.NewBadRequestError("at least one scope is required", nil)
	}

	client, err := m.idp.Create(ctx, MachineClientRequest{
		Name:   req.Name,
		Scopes: req.Scopes,
		TrustedMetadata: map[string]string{
			userIDMetadataKey: userID,
		},
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := Record{
		ID:                   uuid.NewString(),
		UserID:               userID,
		ClientID:             client.ClientID,
		ClientSecretLastFour: lastFour(client.ClientSecret),
		Name:                 req.Name,
		Description:          req.Description,
		Scopes:               req.Scopes,
		Status:               StatusActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := m.store.Insert(ctx, record); err != nil {
		return nil, err
	}

	logger.Infow("client credential created",
		"user_id", userID,
		"credential_id", record.ID,
	)
	record.ClientSecret = client.ClientSecret
	return &record, nil
}

// List returns the caller's records, never including secrets.
func (m *Manager) List(ctx context.Context, userID string) ([]Record, error) {
	records, err := m.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Rotate replaces the secret of a record the caller owns. The new
// secret is returned exactly once.
func (m *Manager) Rotate(ctx context.Context, id, userID string) (*Record, error) {
	record, err := m.store.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.NewNotFoundError(notFoundMessage, nil)
	}

	client, err := m.idp.Rotate(ctx, record.ClientID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := m.store.UpdateSecret(ctx, id, userID, lastFour(client.ClientSecret), now); err != nil {
		return nil, err
	}

	logger.Infow("client credential rotated",
		"user_id", userID,
		"credential_id", id,
	)
	record.ClientSecretLastFour = lastFour(client.ClientSecret)
	record.UpdatedAt = now
	record.ClientSecret = client.ClientSecret
	return record, nil
}

// Delete removes a record the caller owns, upstream first. An upstream
// client that is already gone counts as deleted.
func (m *Manager) Delete(ctx context.Context, id, userID string) error {
	record, err := m.store.Get(ctx, id, userID)
	if err != nil {
		return err
	}
	if record == nil {
		return errors.NewNotFoundError(notFoundMessage, nil)
	}

	if err := m.idp.Delete(ctx, record.ClientID); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id, userID); err != nil {
		return err
	}

	logger.Infow("client credential deleted",
		"user_id", userID,
		"credential_id", id,
	)
	return nil
}
