// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/require"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
)

// setupTestStore opens a store in a temp dir, closed when the test ends.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "inbox.db"))
	require.NoError(t, err, "Failed to open test store")
	t.Cleanup(func() { s.Close() })
	return s
}

func newAccount(id, owner string) *models.Account {
	return &models.Account{ID: id, Kind: models.KindWhatsApp, DisplayName: "Account " + id, OwnerCode: owner}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "inbox.db")

	s, err := Open(dbPath)
	require.NoError(t, err, "Open should create missing parent directories")
	defer s.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err)
	require.True(t, info.IsDir())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	}
}

func TestOpen_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "inbox.db")

	s1, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Create(context.Background(), newAccount("acc1", "owner")))
	require.NoError(t, s1.Close())

	s2, err := Open(dbPath)
	require.NoError(t, err, "Reopening an existing database should succeed")
	defer s2.Close()

	got, err := s2.Get(context.Background(), "acc1")
	require.NoError(t, err)
	require.Equal(t, "owner", got.OwnerCode)
}

func TestOpen_MigratesLegacyTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	raw, err := sql.Open("sqlite3", "file:"+dbPath)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE accounts (
		id TEXT PRIMARY KEY,
		account_kind TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`)
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO accounts (id, account_kind, display_name, created_at) VALUES ('old', 'telegram', 'Old', 1000)`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	s, err := Open(dbPath)
	require.NoError(t, err, "Open should add missing columns")
	defer s.Close()

	got, err := s.Get(context.Background(), "old")
	require.NoError(t, err)
	require.Equal(t, "", got.OwnerCode)
	require.False(t, got.HasPort())
	require.NoError(t, s.SetPort(context.Background(), "old", 3006))
}

func TestStore_CreateGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := newAccount("acc1", "team-a")
	require.NoError(t, s.Create(ctx, a))
	require.False(t, a.CreatedAt.IsZero(), "Create should stamp CreatedAt")

	got, err := s.Get(ctx, "acc1")
	require.NoError(t, err)
	require.Equal(t, a.Kind, got.Kind)
	require.Equal(t, a.DisplayName, got.DisplayName)
	require.Equal(t, 0, got.Port)
	require.WithinDuration(t, a.CreatedAt, got.CreatedAt, time.Millisecond)

	err = s.Create(ctx, newAccount("acc1", "team-b"))
	require.ErrorIs(t, err, ErrAccountExists)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestStore_ListOrderingAndOwner(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"c", "a", "b"} {
		a := newAccount(id, "team-a")
		if id == "b" {
			a.OwnerCode = "team-b"
		}
		a.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Create(ctx, a))
	}

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []string{"c", "a", "b"}, []string{all[0].ID, all[1].ID, all[2].ID})

	teamA, err := s.ListByOwner(ctx, "team-a")
	require.NoError(t, err)
	require.Len(t, teamA, 2)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestStore_SetPortOnce(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newAccount("acc1", "o")))
	require.NoError(t, s.Create(ctx, newAccount("acc2", "o")))

	require.NoError(t, s.SetPort(ctx, "acc1", 3006))
	require.ErrorIs(t, s.SetPort(ctx, "acc1", 3007), ErrPortAlreadySet)
	require.ErrorIs(t, s.SetPort(ctx, "acc2", 3006), ErrPortTaken)
	require.ErrorIs(t, s.SetPort(ctx, "ghost", 3008), ErrAccountNotFound)

	got, err := s.Get(ctx, "acc1")
	require.NoError(t, err)
	require.Equal(t, 3006, got.Port)

	ports, err := s.UsedPorts(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{3006}, ports)
}

func TestStore_Delete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := newAccount("acc1", "o")
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.SetPort(ctx, "acc1", 3006))

	require.NoError(t, s.Delete(ctx, "acc1"))
	require.ErrorIs(t, s.Delete(ctx, "acc1"), ErrAccountNotFound)

	// The freed port can be reused by another account.
	require.NoError(t, s.Create(ctx, newAccount("acc2", "o")))
	require.NoError(t, s.SetPort(ctx, "acc2", 3006))
}
