// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package eventtap

import (
	"context"
	"errors"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/metrics"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/wal"
)

// Spool durably holds events the tap could not publish. *wal.Spool
// implements it.
type Spool interface {
	Append(ev ipc.Event) error
	Pending(ctx context.Context, limit int) ([]wal.Entry, error)
	Ack(id string) error
	MarkFailed(id string, cause error) (int, error)
	Len() (int, error)
	Compact() error
}

// SetSpool enables spooling. It must be called before Serve.
func (t *Tap) SetSpool(s Spool) {
	t.spool = s
	n, err := s.Len()
	if err != nil {
		t.logger.Warn().Err(err).Msg("Could not count spooled events")
		n = 1 // replay finds out
	}
	t.spooled.Store(int64(n))
	if n > 0 {
		t.logger.Info().Int("pending", n).Msg("Spooled events will be replayed")
	}
}

// Spooled returns how many events are believed to be in the spool.
func (t *Tap) Spooled() int64 {
	return t.spooled.Load()
}

func (t *Tap) spoolEvent(ev ipc.Event) {
	if err := t.spool.Append(ev); err != nil {
		metrics.EventTapPublishes.WithLabelValues(resultDropped).Inc()
		t.logger.Error().Err(err).Str("account_id", ev.AccountID).Str("event", ev.Name).Msg("Failed to spool event")
		return
	}
	t.spooled.Add(1)
	metrics.EventTapPublishes.WithLabelValues(resultSpooled).Inc()
}

// replay publishes spooled events oldest first and stops at the first
// failure so order is kept. An entry that fails MaxAttempts times is
// abandoned.
func (t *Tap) replay(ctx context.Context) {
	if t.spooled.Load() == 0 {
		return
	}

	entries, err := t.spool.Pending(ctx, t.cfg.ReplayBatch)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to read event spool")
		return
	}

	for i := range entries {
		e := &entries[i]
		err := t.send(e.Event)
		if err == nil {
			t.ack(e.ID)
			metrics.SpoolReplays.WithLabelValues(resultOK).Inc()
			continue
		}
		if isBreakerOpen(err) {
			return
		}

		attempts, merr := t.spool.MarkFailed(e.ID, err)
		if merr == nil && attempts < t.cfg.MaxAttempts && !errors.Is(err, errEncode) {
			metrics.SpoolReplays.WithLabelValues(resultError).Inc()
			t.logger.Debug().Err(err).Str("entry_id", e.ID).Int("attempts", attempts).Msg("Spool replay failed")
			return
		}

		t.ack(e.ID)
		metrics.SpoolReplays.WithLabelValues("abandoned").Inc()
		t.logger.Warn().Err(err).
			Str("entry_id", e.ID).
			Str("account_id", e.Event.AccountID).
			Str("event", e.Event.Name).
			Int("attempts", attempts).
			Msg("Abandoning spooled event")
	}

	// Only Serve appends, so a short batch that fully drained means the
	// spool is empty. Expired entries may have made the count stale.
	if len(entries) < t.cfg.ReplayBatch {
		t.spooled.Store(0)
		if err := t.spool.Compact(); err != nil {
			t.logger.Debug().Err(err).Msg("Spool compaction failed")
		}
		if len(entries) > 0 {
			t.logger.Info().Int("replayed", len(entries)).Msg("Event spool drained")
		}
	}
}

func (t *Tap) ack(id string) {
	if err := t.spool.Ack(id); err != nil && !errors.Is(err, wal.ErrEntryNotFound) {
		t.logger.Warn().Err(err).Str("entry_id", id).Msg("Failed to acknowledge spooled event")
		return
	}
	if t.spooled.Add(-1) < 0 {
		t.spooled.Store(0)
	}
}
