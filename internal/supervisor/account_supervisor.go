// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package supervisor owns the process tree of the master: the suture
// hierarchy and, within it, one supervised service per account worker.
//
// AccountSupervisor is the worker registry. It guarantees at most one
// live worker per account, assigns each account a persisted port on
// first spawn, restarts crashed workers after a fixed cool-down and
// restores every persisted account at boot, staggered.
//
//	sup, err := supervisor.NewAccountSupervisor(tree, store, allocator, launcher, relay, cfg)
//	tree.AddDataService(sup.RestoreService())
//	err = sup.Spawn(ctx, account)
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"golang.org/x/time/rate"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/store"
)

var (
	// ErrServiceNotRunning means the account has no live worker process.
	ErrServiceNotRunning = errors.New("service not running")

	// ErrWorkerCrashed is returned to suture when a worker exits on its own.
	ErrWorkerCrashed = errors.New("worker exited unexpectedly")

	// ErrQuarantined is returned to suture while the restart breaker is open.
	ErrQuarantined = errors.New("worker quarantined after repeated crashes")

	// ErrCommandQueueFull means the worker is not draining its stdin.
	ErrCommandQueueFull = errors.New("worker command queue full")

	ErrNilSupervisorTree = errors.New("supervisor tree cannot be nil")
	ErrNilLauncher       = errors.New("launcher cannot be nil")
	ErrSupervisorStopped = errors.New("account supervisor is stopping")
)

// State is the lifecycle state of an account's worker.
type State string

const (
	StateStopped     State = "STOPPED"
	StateStarting    State = "STARTING"
	StateRunning     State = "RUNNING"
	StateCrashed     State = "CRASHED"
	StateQuarantined State = "QUARANTINED"
)

// EventHandler receives worker events in the order each worker emitted them.
type EventHandler interface {
	OnWorkerEvent(ev ipc.Event)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ev ipc.Event)

// OnWorkerEvent calls f.
func (f EventHandlerFunc) OnWorkerEvent(ev ipc.Event) { f(ev) }

// AccountStore is the persistence the supervisor needs.
type AccountStore interface {
	List(ctx context.Context) ([]models.Account, error)
	Delete(ctx context.Context, id string) error
}

// PortAssigner returns an account's persisted port, assigning one if needed.
type PortAssigner interface {
	Assign(ctx context.Context, accountID string) (int, error)
}

// Config controls worker lifecycle timing.
type Config struct {
	RestartDelay   time.Duration
	RestoreStagger time.Duration
	StopGrace      time.Duration
	CommandBuffer  int
	Quarantine     config.QuarantineConfig
}

// ConfigFrom maps the master configuration section.
func ConfigFrom(c config.SupervisorConfig) Config {
	return Config{
		RestartDelay:   c.RestartDelay,
		RestoreStagger: c.RestoreStagger,
		StopGrace:      c.StopGrace,
		Quarantine:     c.Quarantine,
	}
}

// Handle describes a live worker process. It is never persisted.
type Handle struct {
	AccountID string    `json:"account_id"`
	Kind      string    `json:"kind"`
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

type managedWorker struct {
	account models.Account
	token   suture.ServiceToken
	svc     *workerService // nil while the port is being assigned
}

// AccountSupervisor is the registry of account workers.
type AccountSupervisor struct {
	tree     *SupervisorTree
	store    AccountStore
	ports    PortAssigner
	launcher Launcher
	events   EventHandler
	cfg      Config

	mu       sync.RWMutex
	workers  map[string]*managedWorker
	stopping atomic.Bool
	logger   zerolog.Logger
}

// NewAccountSupervisor creates the registry. events may be nil.
func NewAccountSupervisor(
	tree *SupervisorTree,
	accounts AccountStore,
	ports PortAssigner,
	launcher Launcher,
	events EventHandler,
	cfg Config,
) (*AccountSupervisor, error) {
	if tree == nil {
		return nil, ErrNilSupervisorTree
	}
	if launcher == nil {
		return nil, ErrNilLauncher
	}
	if events == nil {
		events = EventHandlerFunc(func(ipc.Event) {})
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 5 * time.Second
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = 256
	}
	return &AccountSupervisor{
		tree:     tree,
		store:    accounts,
		ports:    ports,
		launcher: launcher,
		events:   events,
		cfg:      cfg,
		workers:  make(map[string]*managedWorker),
		logger:   logging.WithComponent("account-supervisor"),
	}, nil
}

// Spawn starts a worker for acc unless one is already live or starting,
// in which case it does nothing. The port is assigned and persisted on
// the first spawn only.
func (s *AccountSupervisor) Spawn(ctx context.Context, acc models.Account) error {
	if s.stopping.Load() {
		return ErrSupervisorStopped
	}

	s.mu.Lock()
	if _, exists := s.workers[acc.ID]; exists {
		s.mu.Unlock()
		s.logger.Debug().Str("account_id", acc.ID).Msg("Worker already running, spawn ignored")
		return nil
	}
	mw := &managedWorker{account: acc}
	s.workers[acc.ID] = mw
	s.mu.Unlock()

	port, err := s.ports.Assign(ctx, acc.ID)
	if err != nil {
		s.mu.Lock()
		if s.workers[acc.ID] == mw {
			delete(s.workers, acc.ID)
		}
		s.mu.Unlock()
		return fmt.Errorf("assign port for %s: %w", acc.ID, err)
	}
	acc.Port = port

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workers[acc.ID] != mw {
		// Torn down while the port was being assigned.
		return nil
	}
	mw.account = acc
	mw.svc = newWorkerService(s, acc)
	mw.token = s.tree.AddWorkerService(mw.svc)

	s.logger.Info().
		Str("account_id", acc.ID).
		Str("kind", acc.Kind).
		Int("port", port).
		Msg("Worker service added to supervisor")
	return nil
}

// Teardown stops the account's worker without restart and deletes the
// persisted account. It is safe when no worker is running and for an
// unknown account.
func (s *AccountSupervisor) Teardown(ctx context.Context, accountID string) error {
	s.mu.Lock()
	mw := s.workers[accountID]
	delete(s.workers, accountID)
	s.mu.Unlock()

	if mw != nil && mw.svc != nil {
		mw.svc.tornDown.Store(true)
		if err := s.tree.RemoveWorkerServiceAndWait(mw.token, s.cfg.StopGrace+2*time.Second); err != nil {
			s.logger.Warn().Err(err).Str("account_id", accountID).Msg("Worker service did not stop cleanly, killing")
			mw.svc.killProcess()
		}
	}

	if s.store != nil {
		if err := s.store.Delete(ctx, accountID); err != nil && !errors.Is(err, store.ErrAccountNotFound) {
			return fmt.Errorf("delete account %s: %w", accountID, err)
		}
	}

	s.logger.Info().Str("account_id", accountID).Bool("had_worker", mw != nil).Msg("Account torn down")
	return nil
}

// Restart kills the account's worker process. It is respawned after the
// usual cool-down.
func (s *AccountSupervisor) Restart(accountID string) error {
	svc := s.service(accountID)
	if svc == nil {
		return ErrServiceNotRunning
	}
	return svc.kill()
}

// Send queues cmd for the account's worker stdin.
func (s *AccountSupervisor) Send(accountID string, cmd ipc.Command) error {
	svc := s.service(accountID)
	if svc == nil {
		return ErrServiceNotRunning
	}
	return svc.send(cmd)
}

// Handle returns the live worker of accountID.
func (s *AccountSupervisor) Handle(accountID string) (Handle, bool) {
	svc := s.service(accountID)
	if svc == nil {
		return Handle{}, false
	}
	return svc.handle()
}

// IsRunning reports whether accountID has a live worker process.
func (s *AccountSupervisor) IsRunning(accountID string) bool {
	_, ok := s.Handle(accountID)
	return ok
}

// Status reports the worker state of accountID. Unmanaged accounts are STOPPED.
func (s *AccountSupervisor) Status(accountID string) models.WorkerStatus {
	s.mu.RLock()
	mw := s.workers[accountID]
	s.mu.RUnlock()

	switch {
	case mw == nil:
		return models.WorkerStatus{State: string(StateStopped)}
	case mw.svc == nil:
		return models.WorkerStatus{State: string(StateStarting)}
	default:
		return mw.svc.status()
	}
}

// List returns the live workers sorted by account id.
func (s *AccountSupervisor) List() []Handle {
	s.mu.RLock()
	svcs := make([]*workerService, 0, len(s.workers))
	for _, mw := range s.workers {
		if mw.svc != nil {
			svcs = append(svcs, mw.svc)
		}
	}
	s.mu.RUnlock()

	handles := make([]Handle, 0, len(svcs))
	for _, svc := range svcs {
		if h, ok := svc.handle(); ok {
			handles = append(handles, h)
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].AccountID < handles[j].AccountID })
	return handles
}

// RunningCount returns the number of live worker processes.
func (s *AccountSupervisor) RunningCount() int {
	return len(s.List())
}

// RestoreAll spawns a worker for every persisted account, one every
// RestoreStagger. It returns early when ctx is canceled.
func (s *AccountSupervisor) RestoreAll(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	accounts, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	limit := rate.Inf
	if s.cfg.RestoreStagger > 0 {
		limit = rate.Every(s.cfg.RestoreStagger)
	}
	limiter := rate.NewLimiter(limit, 1)

	s.logger.Info().Int("count", len(accounts)).Dur("stagger", s.cfg.RestoreStagger).Msg("Restoring account workers")

	var failed int
	for i := range accounts {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if err := s.Spawn(ctx, accounts[i]); err != nil {
			failed++
			s.logger.Warn().Err(err).Str("account_id", accounts[i].ID).Msg("Failed to restore worker")
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to restore %d of %d accounts", failed, len(accounts))
	}
	s.logger.Info().Int("count", len(accounts)).Msg("All account workers restored")
	return nil
}

// Shutdown stops scheduling restarts. Running workers are stopped by the
// tree as its context is canceled.
func (s *AccountSupervisor) Shutdown() {
	s.stopping.Store(true)
}

func (s *AccountSupervisor) service(accountID string) *workerService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if mw := s.workers[accountID]; mw != nil {
		return mw.svc
	}
	return nil
}
