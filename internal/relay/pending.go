// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package relay

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/metrics"
)

// Result is the outcome of a command routed with a reply expected.
// Exactly one Result is delivered per request.
type Result struct {
	RequestID string
	Data      json.RawMessage
	Err       error
}

type pendingRequest struct {
	id        string
	accountID string
	command   string
	sessionID string
	ch        chan Result
	timer     *time.Timer
	created   time.Time
}

// RouteCommand sends a command to the worker of accountID. s may be nil
// for callers outside a session. Without a live worker it fails with
// ErrServiceNotRunning and sends nothing.
//
// When replyExpected is true the returned channel receives exactly one
// Result: the worker's response, or ErrTimeout after the request timeout.
// Otherwise the channel is nil.
func (r *Relay) RouteCommand(s Session, accountID, command string, payload json.RawMessage, replyExpected bool) (<-chan Result, error) {
	if s != nil && !r.allow(s) {
		metrics.RecordCommand(command, "rate_limited")
		return nil, ErrRateLimited
	}
	if !r.workers.IsRunning(accountID) {
		metrics.RecordCommand(command, "not_running")
		return nil, ErrServiceNotRunning
	}

	cmd := ipc.Command{Name: command, Payload: payload}
	if !replyExpected {
		if err := r.workers.Send(accountID, cmd); err != nil {
			metrics.RecordCommand(command, "not_running")
			return nil, err
		}
		metrics.RecordCommand(command, "sent")
		return nil, nil
	}

	p := r.register(s, accountID, command)
	cmd.RequestID = p.id
	if err := r.workers.Send(accountID, cmd); err != nil {
		r.discard(p.id)
		metrics.RecordCommand(command, "not_running")
		return nil, err
	}
	metrics.RecordCommand(command, "sent")
	return p.ch, nil
}

// PendingCount returns the number of unresolved requests.
func (r *Relay) PendingCount() int {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	return len(r.pending)
}

func (r *Relay) allow(s Session) bool {
	r.mu.Lock()
	st := r.sessionLocked(s)
	r.mu.Unlock()
	return st.limiter == nil || st.limiter.Allow()
}

func (r *Relay) register(s Session, accountID, command string) *pendingRequest {
	p := &pendingRequest{
		id:        uuid.NewString(),
		accountID: accountID,
		command:   command,
		ch:        make(chan Result, 1),
		created:   time.Now(),
	}
	if s != nil {
		p.sessionID = s.ID()
	}

	r.pendingMu.Lock()
	r.pending[p.id] = p
	p.timer = time.AfterFunc(r.cfg.RequestTimeout, func() { r.expire(p.id) })
	r.pendingMu.Unlock()

	metrics.PendingRequests.Inc()
	return p
}

// take removes and returns the pending request, or nil if it was
// already resolved.
func (r *Relay) take(id string) *pendingRequest {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	p := r.pending[id]
	if p == nil {
		return nil
	}
	delete(r.pending, id)
	p.timer.Stop()
	metrics.PendingRequests.Dec()
	return p
}

func (r *Relay) resolve(id string, res Result) bool {
	p := r.take(id)
	if p == nil {
		return false
	}
	res.RequestID = id
	p.ch <- res
	close(p.ch)
	return true
}

func (r *Relay) discard(id string) {
	if p := r.take(id); p != nil {
		close(p.ch)
	}
}

func (r *Relay) expire(id string) {
	p := r.take(id)
	if p == nil {
		return
	}
	p.ch <- Result{RequestID: id, Err: ErrTimeout}
	close(p.ch)

	metrics.PendingTimeouts.Inc()
	r.logger.Warn().
		Str("request_id", id).
		Str("account_id", p.accountID).
		Str("command", p.command).
		Dur("waited", time.Since(p.created)).
		Msg("Pending request timed out")
}

func (r *Relay) handleResponse(ev ipc.Event) {
	resp, err := ipc.DecodeResponse(ev.Payload)
	if err != nil || resp.RequestID == "" {
		r.logger.Warn().Err(err).Str("account_id", ev.AccountID).Msg("Ignoring malformed response event")
		return
	}

	res := Result{Data: resp.Data}
	if resp.Error != "" {
		res.Err = fmt.Errorf("%w: %s", ErrCommandFailed, resp.Error)
	}
	if !r.resolve(resp.RequestID, res) {
		metrics.LateResponses.Inc()
		r.logger.Debug().Str("request_id", resp.RequestID).Str("account_id", ev.AccountID).Msg("Dropping response with no pending request")
	}
}

func (r *Relay) failSessionPending(sessionID string, cause error) int {
	r.pendingMu.Lock()
	ids := make([]string, 0)
	for id, p := range r.pending {
		if p.sessionID == sessionID {
			ids = append(ids, id)
		}
	}
	r.pendingMu.Unlock()

	n := 0
	for _, id := range ids {
		if r.resolve(id, Result{Err: cause}) {
			n++
		}
	}
	return n
}

func (r *Relay) failAllPending(cause error) {
	r.pendingMu.Lock()
	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	r.pendingMu.Unlock()

	for _, id := range ids {
		r.resolve(id, Result{Err: cause})
	}
}
