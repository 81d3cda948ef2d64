// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package credentials manages M2M client credential records and the
// persisted pod credentials of each user. Full secrets pass through this
// package exactly once, on creation or rotation; at rest only the last
// four characters and metadata remain.
package credentials

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	_ "modernc.org/sqlite" // sqlite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// DB wraps the SQLite handle shared by the stores in this package.
type DB struct {
	db *sql.DB
}

// OpenDB opens (or creates) the database at path and applies pending
// migrations.
func OpenDB(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

// DB returns the underlying handle.
func (d *DB) DB() *sql.DB {
	return d.db
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// runMigrations applies all pending migrations using goose.
func runMigrations(ctx context.Context, db *sql.DB) error {
	// The embedded filesystem has files under "migrations/"; goose wants
	// a flat filesystem of .sql files.
	migrationFS, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create sub filesystem: %w", err)
	}

	provider, err := goose.NewProvider(database.DialectSQLite3, db, migrationFS)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// lastFour returns the trailing four characters of a secret, which is
// all this package ever persists of it.
func lastFour(secret string) string {
	if len(secret) <= 4 {
		return secret
	}
	return secret[len(secret)-4:]
}
