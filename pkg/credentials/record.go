// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"
)

// Record is one M2M client credential owned by a user. ClientSecret is
// populated only in the create/rotate responses and is never stored.
type Record struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"-"`
	ClientID             string    `json:"client_id"`
	ClientSecret         string    `json:"client_secret,omitempty"`
	ClientSecretLastFour string    `json:"client_secret_last_four"`
	Name                 string    `json:"client_name,omitempty"`
	Description          string    `json:"description,omitempty"`
	Scopes               []string  `json:"scopes"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// StatusActive is the only status new records get; revocation flows may
// add more later.
const StatusActive = "active"

// RecordStore persists credential records. Get resolves strictly by
// (id, user_id): a record owned by someone else is reported as absent.
type RecordStore interface {
	Insert(ctx context.Context, record Record) error
	Get(ctx context.Context, id, userID string) (*Record, error)
	List(ctx context.Context, userID string) ([]Record, error)
	UpdateSecret(ctx context.Context, id, userID, lastFour string, updatedAt time.Time) error
	Delete(ctx context.Context, id, userID string) error
}

// SQLiteRecordStore implements RecordStore on the shared SQLite handle.
type SQLiteRecordStore struct {
	db *sql.DB
}

// NewSQLiteRecordStore creates a store over an opened database.
func NewSQLiteRecordStore(db *DB) *SQLiteRecordStore {
	return &SQLiteRecordStore{db: db.DB()}
}

var _ RecordStore = (*SQLiteRecordStore)(nil)

const recordColumns = `id, user_id, client_id, client_secret_last_four, name, description, scopes, status, created_at, updated_at`

// Insert stores a new record. The caller has already reduced the secret
// to its last four characters.
func (s *SQLiteRecordStore) Insert(ctx context.Context, record Record) error {
	scopesJSON, err := json.Marshal(record.Scopes)
	if err != nil {
		return fmt.Errorf("encoding scopes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO client_credentials (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.ClientID,
		record.ClientSecretLastFour,
		record.Name,
		record.Description,
		string(scopesJSON),
		record.Status,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting credential record: %w", err)
	}
	return nil
}

// Get returns the record owned by userID, or nil when it does not exist
// or belongs to another user.
func (s *SQLiteRecordStore) Get(ctx context.Context, id, userID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM client_credentials
		WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	record, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential record: %w", err)
	}
	return record, nil
}

// List returns every record owned by userID, oldest first.
func (s *SQLiteRecordStore) List(ctx context.Context, userID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM client_credentials
		WHERE user_id = ?
		ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing credential records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("reading credential record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing credential records: %w", err)
	}
	return records, nil
}

// UpdateSecret replaces the stored last-four after a rotation.
func (s *SQLiteRecordStore) UpdateSecret(ctx context.Context, id, userID, lastFour string, updatedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE client_credentials
		SET client_secret_last_four = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		lastFour, updatedAt, id, userID,
	)
	if err != nil {
		return fmt.Errorf("updating credential record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating credential record: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes the record owned by userID.
func (s *SQLiteRecordStore) Delete(ctx context.Context, id, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM client_credentials
		WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("deleting credential record: %w", err)
	}
	return nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var record Record
	var scopesJSON string
	err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.ClientID,
		&record.ClientSecretLastFour,
		&record.Name,
		&record.Description,
		&scopesJSON,
		&record.Status,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scopesJSON), &record.Scopes); err != nil {
		return nil, fmt.Errorf("decoding scopes: %w", err)
	}
	return &record, nil
}
