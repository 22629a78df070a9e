// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

//go:build !nats

package eventtap

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
)

// Bus is a stub when NATS dependencies are not compiled in.
// Build with -tags=nats to enable it.
type Bus struct{}

// NewBus returns ErrNATSUnavailable.
func NewBus(cfg config.EventTapConfig) (*Bus, error) {
	return nil, ErrNATSUnavailable
}

// Start returns ErrNATSUnavailable.
func (b *Bus) Start(ctx context.Context) error { return ErrNATSUnavailable }

// Shutdown is a no-op.
func (b *Bus) Shutdown(ctx context.Context) {}

// IsRunning always reports false.
func (b *Bus) IsRunning() bool { return false }

// Publish returns ErrNATSUnavailable.
func (b *Bus) Publish(topic string, msgs ...*message.Message) error { return ErrNATSUnavailable }

// Close is a no-op.
func (b *Bus) Close() error { return nil }
