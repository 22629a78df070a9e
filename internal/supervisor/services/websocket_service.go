// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package services

import (
	"context"
)

// NamedHub is satisfied by *websocket.Hub.
type NamedHub interface {
	RunWithContext(ctx context.Context) error
	Name() string
}

// WebSocketHubService runs a worker's WebSocket hub under supervision.
type WebSocketHubService struct {
	hub NamedHub
}

// NewWebSocketHubService wraps hub.
func NewWebSocketHubService(hub NamedHub) *WebSocketHubService {
	return &WebSocketHubService{hub: hub}
}

// Serve implements suture.Service. The hub returns ctx.Err() on shutdown.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	return w.hub.RunWithContext(ctx)
}

// String names the service after its hub, e.g. "websocket-hub:worker-acc1".
func (w *WebSocketHubService) String() string {
	if name := w.hub.Name(); name != "" {
		return "websocket-hub:" + name
	}
	return "websocket-hub"
}
