// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package main is the entry point for the unified inbox.
//
// One binary plays two roles. The master process (inbox serve) owns the
// account store, supervises one worker process per linked account and
// relays worker events to browser sessions over WebSocket. Each worker
// (inbox worker) is launched by the master with ACCOUNT_ID, ACCOUNT_KIND
// and PORT in its environment, speaks newline-delimited JSON on
// stdin/stdout and serves a local HTTP/WebSocket face on PORT.
//
// # Initialization order (serve)
//
//  1. Configuration: defaults, optional inbox.yaml, environment (koanf v2)
//  2. Logging: zerolog, bridged to slog for suture
//  3. Account store: SQLite, migrated on open
//  4. Supervisor tree and account supervisor
//  5. Relay, optional event tap (build with -tags nats)
//  6. Authentication and casbin authorization
//  7. HTTP API and WebSocket endpoint
//  8. Restore: one worker per persisted account, staggered
//
// # Build Tags
//
//	go build ./cmd/inbox                  # event tap disabled
//	go build -tags nats ./cmd/inbox       # NATS JetStream event tap
//	go build -tags nats,wal ./cmd/inbox   # plus the BadgerDB event spool
//
// # Signal Handling
//
// SIGINT and SIGTERM stop restarts, cancel the supervisor tree (which
// terminates every worker within its stop grace) and close the store.
//
// # Example Usage
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	inbox serve
//	inbox token --owner shop-42 --role member
//	inbox accounts add --kind whatsapp --name "Support" --owner shop-42
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
