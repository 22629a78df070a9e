// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package eventtap

import "errors"

var (
	// ErrNATSUnavailable is returned by builds without the "nats" tag.
	ErrNATSUnavailable = errors.New("NATS event tap not available: build with -tags=nats")

	// ErrBusNotStarted is returned by Publish before Start or after Shutdown.
	ErrBusNotStarted = errors.New("event bus not started")
)
