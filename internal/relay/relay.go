// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package relay connects browser sessions to account workers.
//
// Sessions join per-account rooms. Worker events are fanned out to every
// session in the account's room in arrival order, with no buffering or
// replay. Commands go the other way: they are routed to the account's
// worker, failing fast when none is running, and may be correlated with
// a response through a pending request that times out.
package relay

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/metrics"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/supervisor"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/websocket"
)

var (
	// ErrServiceNotRunning means the account has no live worker.
	ErrServiceNotRunning = supervisor.ErrServiceNotRunning

	// ErrTimeout resolves a pending request that got no response in time.
	ErrTimeout = errors.New("request timed out")

	// ErrSessionClosed resolves pending requests of a session that went away.
	ErrSessionClosed = errors.New("session closed")

	// ErrCommandFailed wraps an error reported by the worker in a response.
	ErrCommandFailed = errors.New("command failed")

	// ErrInvalidMode rejects a join whose mode is neither active nor passive.
	ErrInvalidMode = errors.New("join mode must be active or passive")

	// ErrRateLimited rejects a command over the session's command rate.
	ErrRateLimited = errors.New("command rate limit exceeded")
)

// Mode selects what a joining session asks the worker for.
type Mode string

const (
	// ModeActive requests the full state snapshot.
	ModeActive Mode = "active"
	// ModePassive requests only the summary.
	ModePassive Mode = "passive"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeActive || m == ModePassive
}

// Session is one browser connection.
type Session interface {
	ID() string
	// Send queues msg without blocking. It returns false when the
	// session is closed or its queue is full.
	Send(msg websocket.Message) bool
	Close()
}

// Workers is the view of the worker registry the relay routes through.
type Workers interface {
	IsRunning(accountID string) bool
	Send(accountID string, cmd ipc.Command) error
}

// Tap receives a copy of every worker event.
type Tap interface {
	Publish(ev ipc.Event)
}

// Config controls request correlation and fan-out.
type Config struct {
	RequestTimeout      time.Duration
	StateCoalesceWindow time.Duration

	// CommandRate and CommandBurst limit commands per session. A zero
	// rate disables the limit.
	CommandRate  float64
	CommandBurst int
}

// ConfigFrom maps the master configuration section.
func ConfigFrom(c config.RelayConfig) Config {
	return Config{
		RequestTimeout:      c.RequestTimeout,
		StateCoalesceWindow: c.StateCoalesceWindow,
		CommandRate:         c.CommandRate,
		CommandBurst:        c.CommandBurst,
	}
}

type sessionState struct {
	session Session
	rooms   map[string]Mode
	limiter *rate.Limiter
}

// Relay owns room membership and pending requests.
type Relay struct {
	workers Workers
	tap     Tap
	cfg     Config
	logger  zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionState
	rooms    map[string]map[string]Session
	// lastState holds when the unanswered request_state of a room was sent.
	lastState map[string]time.Time

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest
}

// New creates a relay routing to workers. tap may be nil.
func New(workers Workers, tap Tap, cfg Config) *Relay {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.StateCoalesceWindow < 0 {
		cfg.StateCoalesceWindow = 0
	}
	return &Relay{
		workers:   workers,
		tap:       tap,
		cfg:       cfg,
		logger:    logging.WithComponent("relay"),
		sessions:  make(map[string]*sessionState),
		rooms:     make(map[string]map[string]Session),
		lastState: make(map[string]time.Time),
		pending:   make(map[string]*pendingRequest),
	}
}

// Join adds s to the room of accountID and asks the worker for state.
// An active join shares the request_state of an earlier active join to
// the same room while that request is unanswered and younger than the
// coalesce window. When the worker is not running
// the session still joins and ErrServiceNotRunning is returned.
func (r *Relay) Join(s Session, accountID string, mode Mode) error {
	if !mode.Valid() {
		return ErrInvalidMode
	}

	cmd := ipc.Command{Name: ipc.CmdRequestSummary}
	coalesced := false

	r.mu.Lock()
	st := r.sessionLocked(s)
	if _, member := st.rooms[accountID]; !member {
		room := r.rooms[accountID]
		if room == nil {
			room = make(map[string]Session)
			r.rooms[accountID] = room
		}
		room[s.ID()] = s
		metrics.RelayRoomMembers.Inc()
	}
	st.rooms[accountID] = mode

	if mode == ModeActive {
		cmd.Name = ipc.CmdRequestState
		now := time.Now()
		if last, ok := r.lastState[accountID]; ok && now.Sub(last) < r.cfg.StateCoalesceWindow {
			coalesced = true
		} else {
			r.lastState[accountID] = now
		}
	}
	r.mu.Unlock()

	log := r.logger.With().Str("session_id", s.ID()).Str("account_id", accountID).Str("mode", string(mode)).Logger()

	if coalesced {
		log.Debug().Msg("Active join coalesced with a recent state request")
		if !r.workers.IsRunning(accountID) {
			return ErrServiceNotRunning
		}
		return nil
	}

	if err := r.workers.Send(accountID, cmd); err != nil {
		if mode == ModeActive {
			r.mu.Lock()
			delete(r.lastState, accountID)
			r.mu.Unlock()
		}
		log.Debug().Err(err).Msg("Joined room of an account without a running worker")
		return err
	}
	log.Debug().Str("command", cmd.Name).Msg("Session joined room")
	return nil
}

// Leave removes s from the room of accountID.
func (r *Relay) Leave(s Session, accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st := r.sessions[s.ID()]; st != nil {
		if _, ok := st.rooms[accountID]; ok {
			delete(st.rooms, accountID)
			r.removeMemberLocked(s.ID(), accountID)
		}
	}
}

// Disconnect removes s from every room and fails its pending requests
// with ErrSessionClosed.
func (r *Relay) Disconnect(s Session) {
	r.mu.Lock()
	st := r.sessions[s.ID()]
	if st != nil {
		for accountID := range st.rooms {
			r.removeMemberLocked(s.ID(), accountID)
		}
		delete(r.sessions, s.ID())
		metrics.RelaySessions.Dec()
	}
	r.mu.Unlock()

	if st != nil {
		n := r.failSessionPending(s.ID(), ErrSessionClosed)
		r.logger.Debug().Str("session_id", s.ID()).Int("pending_failed", n).Msg("Session disconnected")
	}
}

// Rooms returns the accounts s has joined, sorted.
func (r *Relay) Rooms(s Session) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := r.sessions[s.ID()]
	if st == nil {
		return nil
	}
	out := make([]string, 0, len(st.rooms))
	for id := range st.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RoomSize returns the number of sessions joined to accountID.
func (r *Relay) RoomSize(accountID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[accountID])
}

// SessionCount returns the number of sessions with at least one join.
func (r *Relay) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// OnWorkerEvent implements supervisor.EventHandler. A response resolves
// its pending request; anything else is broadcast to the account's room
// and offered to the tap.
func (r *Relay) OnWorkerEvent(ev ipc.Event) {
	if ev.Name == ipc.EventResponse {
		r.handleResponse(ev)
		return
	}
	if r.tap != nil {
		r.tap.Publish(ev)
	}
	r.broadcast(ev)
}

func (r *Relay) broadcast(ev ipc.Event) {
	// A state event answers the in-flight request_state. The room snapshot
	// and the reset happen under one lock: a session that joins afterwards
	// was not sent this state and must ask again.
	r.mu.Lock()
	if ev.Name == ipc.EventState {
		delete(r.lastState, ev.AccountID)
	}
	room := r.rooms[ev.AccountID]
	targets := make([]Session, 0, len(room))
	for _, s := range room {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].ID() < targets[j].ID() })

	msg := websocket.Message{Type: websocket.MessageTypeEvent, Data: ev}
	dropped := 0
	for _, s := range targets {
		if s.Send(msg) {
			continue
		}
		dropped++
		r.logger.Warn().
			Str("session_id", s.ID()).
			Str("account_id", ev.AccountID).
			Str("event", ev.Name).
			Msg("Session send queue full, dropping session")
		r.Disconnect(s)
		s.Close()
	}
	metrics.RecordBroadcast(ev.Name, dropped)
}

// Close fails every pending request and closes every session.
func (r *Relay) Close() {
	r.mu.Lock()
	sessions := make([]Session, 0, len(r.sessions))
	for _, st := range r.sessions {
		sessions = append(sessions, st.session)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		r.Disconnect(s)
		s.Close()
	}
	r.failAllPending(ErrSessionClosed)
}

func (r *Relay) sessionLocked(s Session) *sessionState {
	st := r.sessions[s.ID()]
	if st == nil {
		st = &sessionState{session: s, rooms: make(map[string]Mode)}
		if r.cfg.CommandRate > 0 {
			burst := r.cfg.CommandBurst
			if burst <= 0 {
				burst = 1
			}
			st.limiter = rate.NewLimiter(rate.Limit(r.cfg.CommandRate), burst)
		}
		r.sessions[s.ID()] = st
		metrics.RelaySessions.Inc()
	}
	return st
}

func (r *Relay) removeMemberLocked(sessionID, accountID string) {
	room := r.rooms[accountID]
	if _, ok := room[sessionID]; !ok {
		return
	}
	delete(room, sessionID)
	metrics.RelayRoomMembers.Dec()
	if len(room) == 0 {
		delete(r.rooms, accountID)
	}
}
