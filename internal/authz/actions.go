// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package authz

// Actions checked against the policy. The prefix before ':' names the
// resource so that policies can grant "account:*" or "room:*".
const (
	ActionAccountList    = "account:list"
	ActionAccountCreate  = "account:create"
	ActionAccountRead    = "account:read"
	ActionAccountDelete  = "account:delete"
	ActionAccountRestart = "account:restart"
	ActionAccountCommand = "account:command"
	ActionRoomJoin       = "room:join"
	ActionRoomCommand    = "room:command"
)
