// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package store

import (
	"context"
	"fmt"
)

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		account_kind TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("schema exec failed: %w", err)
	}

	// Databases created before tenancy and port persistence lack these columns.
	if err := s.ensureColumnExists(ctx, "accounts", "owner_code",
		`ALTER TABLE accounts ADD COLUMN owner_code TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}
	if err := s.ensureColumnExists(ctx, "accounts", "port",
		`ALTER TABLE accounts ADD COLUMN port INTEGER`); err != nil {
		return err
	}

	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_port ON accounts(port) WHERE port IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner_code)`,
	}
	for _, stmt := range indexes {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema exec failed: %w", err)
		}
	}
	return nil
}

func (s *Store) ensureColumnExists(ctx context.Context, tableName, columnName, alterStmt string) error {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+tableName+")")
	if err != nil {
		return fmt.Errorf("table_info query failed for %s: %w", tableName, err)
	}

	found := false
	for rows.Next() {
		var (
			cid          int
			name         string
			ctype        string
			notNull      int
			defaultValue any
			pk           int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defaultValue, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("table_info scan failed for %s: %w", tableName, err)
		}
		if name == columnName {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("table_info row error for %s: %w", tableName, err)
	}
	rows.Close()

	if found {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, alterStmt); err != nil {
		return fmt.Errorf("alter table failed for %s.%s: %w", tableName, columnName, err)
	}
	return nil
}
