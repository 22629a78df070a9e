// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package models

import (
	"time"

	json "github.com/goccy/go-json"
)

// CreateAccountRequest is the body of POST /api/v1/accounts.
type CreateAccountRequest struct {
	Kind        string `json:"kind" validate:"required,account_kind"`
	DisplayName string `json:"display_name" validate:"required,min=1,max=100"`
	// OwnerCode is honoured only for admins; members always create under their own code.
	OwnerCode string `json:"owner_code,omitempty" validate:"omitempty,owner_code"`
}

// CommandRequest is the body of POST /api/v1/accounts/{id}/commands.
type CommandRequest struct {
	Command       string          `json:"command" validate:"required,command_name"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ReplyExpected bool            `json:"reply_expected"`
}

// WorkerStatus describes the live worker of an account, if any.
type WorkerStatus struct {
	State     string     `json:"state"`
	PID       int        `json:"pid,omitempty"`
	Port      int        `json:"port,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Restarts  int        `json:"restarts"`

	LastExitCode *int `json:"last_exit_code,omitempty"`
}

// AccountView is an account together with its worker status.
type AccountView struct {
	Account
	Worker WorkerStatus `json:"worker"`
}

// CommandResult is returned by the command endpoint.
type CommandResult struct {
	RequestID string          `json:"request_id,omitempty"`
	Queued    bool            `json:"queued"`
	Response  json.RawMessage `json:"response,omitempty"`
}

// HealthStatus is returned by the health endpoint.
type HealthStatus struct {
	Status         string `json:"status"`
	Accounts       int    `json:"accounts"`
	WorkersRunning int    `json:"workers_running"`
	RelaySessions  int    `json:"relay_sessions"`
}
