// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package supervisor

import (
	"context"

	"github.com/thejerf/suture/v4"
)

// restoreService runs RestoreAll once under supervision so that shutdown
// interrupts a long staggered restore.
type restoreService struct {
	sup *AccountSupervisor
}

// RestoreService returns a one-shot service that restores every
// persisted account.
func (s *AccountSupervisor) RestoreService() suture.Service {
	return &restoreService{sup: s}
}

func (r *restoreService) Serve(ctx context.Context) error {
	if err := r.sup.RestoreAll(ctx); err != nil && ctx.Err() == nil {
		r.sup.logger.Error().Err(err).Msg("Account restore incomplete")
	}
	return suture.ErrDoNotRestart
}

func (r *restoreService) String() string {
	return "account-restore"
}
