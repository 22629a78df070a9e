// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

//go:build !wal

package wal

import (
	"context"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
)

// Spool is a stub when BadgerDB is not compiled in.
type Spool struct{}

// Open returns ErrUnavailable.
func Open(cfg Config) (*Spool, error) { return nil, ErrUnavailable }

// Append returns ErrUnavailable.
func (s *Spool) Append(ev ipc.Event) error { return ErrUnavailable }

// Pending returns ErrUnavailable.
func (s *Spool) Pending(ctx context.Context, limit int) ([]Entry, error) { return nil, ErrUnavailable }

// Ack returns ErrUnavailable.
func (s *Spool) Ack(id string) error { return ErrUnavailable }

// MarkFailed returns ErrUnavailable.
func (s *Spool) MarkFailed(id string, cause error) (int, error) { return 0, ErrUnavailable }

// Len always reports zero.
func (s *Spool) Len() (int, error) { return 0, nil }

// Compact is a no-op.
func (s *Spool) Compact() error { return nil }

// Close is a no-op.
func (s *Spool) Close() error { return nil }
