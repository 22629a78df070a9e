// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package api serves the master's HTTP surface: health, Prometheus
// metrics, account management and the /ws relay endpoint.
package api

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/auth"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/relay"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/websocket"
)

// AccountStore is the persistence the API reads and creates accounts in.
type AccountStore interface {
	Create(ctx context.Context, a *models.Account) error
	Get(ctx context.Context, id string) (models.Account, error)
	List(ctx context.Context) ([]models.Account, error)
	ListByOwner(ctx context.Context, owner string) ([]models.Account, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// Workers is the worker registry.
type Workers interface {
	Spawn(ctx context.Context, acc models.Account) error
	Teardown(ctx context.Context, accountID string) error
	Restart(accountID string) error
	Status(accountID string) models.WorkerStatus
	RunningCount() int
}

// Relay routes commands and manages room membership.
type Relay interface {
	Join(s relay.Session, accountID string, mode relay.Mode) error
	Leave(s relay.Session, accountID string)
	Disconnect(s relay.Session)
	RouteCommand(s relay.Session, accountID, command string, payload json.RawMessage, replyExpected bool) (<-chan relay.Result, error)
	SessionCount() int
}

// Authorizer decides whether a principal may act on an owner's accounts.
type Authorizer interface {
	Authorize(p *auth.Principal, ownerCode, action string) error
}

// Handler holds the dependencies of every endpoint.
type Handler struct {
	store      AccountStore
	workers    Workers
	relay      Relay
	authz      Authorizer
	upgrader   gorillaws.Upgrader
	sendBuffer int
	startTime  time.Time
}

// NewHandler wires the endpoint dependencies.
func NewHandler(store AccountStore, workers Workers, rl Relay, authorizer Authorizer, cfg *config.Config) *Handler {
	return &Handler{
		store:      store,
		workers:    workers,
		relay:      rl,
		authz:      authorizer,
		upgrader:   websocket.NewUpgrader(cfg.Server.CORSOrigins),
		sendBuffer: cfg.Relay.SendBuffer,
		startTime:  time.Now(),
	}
}
