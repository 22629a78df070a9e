// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package wal is a durable spool for worker events the event tap could
// not publish. Entries are stored in BadgerDB under time-ordered keys so
// replay preserves arrival order, and are deleted once acknowledged.
//
// The BadgerDB implementation is compiled in with the "wal" build tag.
// Without it Open returns ErrUnavailable and the tap drops failed
// publishes as before.
//
//	sp, err := wal.Open(wal.ConfigFrom(cfg.EventTap.Spool))
//	tap.SetSpool(sp)
package wal

import (
	"errors"
	"time"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
)

var (
	// ErrUnavailable is returned by builds without the "wal" tag.
	ErrUnavailable = errors.New("event spool not available: build with -tags=wal")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("event spool is closed")

	// ErrEntryNotFound is returned when acknowledging an unknown entry.
	ErrEntryNotFound = errors.New("spool entry not found")
)

// Config controls the spool.
type Config struct {
	Path string

	// SyncWrites fsyncs every append.
	SyncWrites bool

	// EntryTTL expires entries that were never replayed. Zero keeps them
	// until acknowledged.
	EntryTTL time.Duration
}

// ConfigFrom maps the master configuration section.
func ConfigFrom(c config.SpoolConfig) Config {
	return Config{
		Path:       c.Path,
		SyncWrites: c.SyncWrites,
		EntryTTL:   c.EntryTTL,
	}
}

// Entry is one spooled event.
type Entry struct {
	ID        string    `json:"id"`
	Event     ipc.Event `json:"event"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
}
