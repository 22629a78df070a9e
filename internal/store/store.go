// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package store persists linked accounts in SQLite.
//
// The table is read in full at startup to restore workers, written once
// per account when its port is assigned, and written once on deletion.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver" // registers "sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed"  // bundled SQLite build

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
)

var (
	// ErrAccountNotFound is returned when no account has the given id.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when creating an account whose id is taken.
	ErrAccountExists = errors.New("account already exists")

	// ErrPortAlreadySet is returned by SetPort when the account already has a port.
	ErrPortAlreadySet = errors.New("account port already assigned")

	// ErrPortTaken is returned by SetPort when another account holds the port.
	ErrPortTaken = errors.New("port assigned to another account")
)

const accountColumns = `id, account_kind, display_name, owner_code, port, created_at`

// Store is the SQLite-backed account table.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(wal)"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logging.Debug().Str("path", path).Msg("Account store opened")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func scanAccount(scanner interface{ Scan(...any) error }) (models.Account, error) {
	var (
		a         models.Account
		port      sql.NullInt64
		createdAt int64
	)
	if err := scanner.Scan(&a.ID, &a.Kind, &a.DisplayName, &a.OwnerCode, &port, &createdAt); err != nil {
		return models.Account{}, err
	}
	if port.Valid {
		a.Port = int(port.Int64)
	}
	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	return a, nil
}

// Create inserts a new account. A zero CreatedAt is set to now.
func (s *Store) Create(ctx context.Context, a *models.Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var port any
	if a.HasPort() {
		port = a.Port
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Kind, a.DisplayName, a.OwnerCode, port, a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "port") {
				return fmt.Errorf("create account %s: %w", a.ID, ErrPortTaken)
			}
			return fmt.Errorf("create account %s: %w", a.ID, ErrAccountExists)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// Get returns one account.
func (s *Store) Get(ctx context.Context, id string) (models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, fmt.Errorf("get account %s: %w", id, ErrAccountNotFound)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// List returns every account ordered by creation time.
func (s *Store) List(ctx context.Context) ([]models.Account, error) {
	return s.query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
}

// ListByOwner returns the accounts of one owner ordered by creation time.
func (s *Store) ListByOwner(ctx context.Context, owner string) ([]models.Account, error) {
	return s.query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_code = ? ORDER BY created_at, id`, owner)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("account rows error: %w", err)
	}
	return accounts, nil
}

// Count returns the number of accounts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}

// UsedPorts returns every assigned port in ascending order.
func (s *Store) UsedPorts(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT port FROM accounts WHERE port IS NOT NULL ORDER BY port`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ports: %w", err)
	}
	defer rows.Close()

	var ports []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan port: %w", err)
		}
		ports = append(ports, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("port rows error: %w", err)
	}
	return ports, nil
}

// SetPort records the account's port. It succeeds only while the account
// has no port.
func (s *Store) SetPort(ctx context.Context, id string, port int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET port = ? WHERE id = ? AND port IS NULL`, port, id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("set port %d for %s: %w", port, id, ErrPortTaken)
		}
		return fmt.Errorf("failed to set port: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("set port for %s: %w", id, ErrPortAlreadySet)
}

// Delete removes an account.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete account %s: %w", id, ErrAccountNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode() == sqlite3.CONSTRAINT_UNIQUE ||
			serr.ExtendedCode() == sqlite3.CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
