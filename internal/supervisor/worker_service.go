// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/thejerf/suture/v4"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/metrics"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
)

const maxStderrLine = 1024 * 1024

// Exit reasons recorded in inbox_worker_exits_total.
const (
	exitReasonCrashed = "crashed"
	exitReasonExited  = "exited"
	exitReasonStopped = "stopped"
)

type exitResult struct {
	code int
	err  error
}

// runningProcess is one launch of a worker.
type runningProcess struct {
	handle Handle
	proc   Process
	cmds   chan ipc.Command
	done   chan struct{}
}

// workerService supervises one account's worker process. Each Serve call
// is one process lifetime; after an unexpected exit Serve sleeps the
// restart delay before returning so suture restarts it exactly once.
type workerService struct {
	sup      *AccountSupervisor
	account  models.Account
	logger   zerolog.Logger
	breaker  *gobreaker.CircuitBreaker[struct{}]
	tornDown atomic.Bool

	mu       sync.RWMutex
	state    State
	proc     *runningProcess
	launches int
	restarts int
	lastExit *int
}

func newWorkerService(sup *AccountSupervisor, acc models.Account) *workerService {
	w := &workerService{
		sup:     sup,
		account: acc,
		logger:  logging.ForAccount("worker-service", acc.ID).With().Str("kind", acc.Kind).Logger(),
		state:   StateStarting,
	}
	if q := sup.cfg.Quarantine; q.Enabled {
		w.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "worker-" + acc.ID,
			MaxRequests: 1,
			Interval:    q.Window,
			Timeout:     q.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= q.MaxCrashes
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				w.logger.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("Worker restart breaker state changed")
			},
		})
	}
	return w
}

// String implements fmt.Stringer for suture logging.
func (w *workerService) String() string {
	return "worker-" + w.account.ID
}

// Serve implements suture.Service.
func (w *workerService) Serve(ctx context.Context) error {
	if w.tornDown.Load() || w.sup.stopping.Load() {
		w.setState(StateStopped)
		return suture.ErrDoNotRestart
	}

	var err error
	if w.breaker != nil {
		_, err = w.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, w.runOnce(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return w.quarantine(ctx)
		}
	} else {
		err = w.runOnce(ctx)
	}
	return w.afterExit(ctx, err)
}

// runOnce launches the worker and blocks until it exits or ctx is canceled.
func (w *workerService) runOnce(ctx context.Context) error {
	w.setState(StateStarting)
	proc, err := w.sup.launcher.Launch(ProcessSpec{
		AccountID: w.account.ID,
		Kind:      w.account.Kind,
		Port:      w.account.Port,
	})
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to launch worker")
		return fmt.Errorf("%w: launch: %w", ErrWorkerCrashed, err)
	}

	rp := &runningProcess{
		handle: Handle{
			AccountID: w.account.ID,
			Kind:      w.account.Kind,
			PID:       proc.Pid(),
			Port:      w.account.Port,
			StartedAt: time.Now(),
		},
		proc: proc,
		cmds: make(chan ipc.Command, w.sup.cfg.CommandBuffer),
		done: make(chan struct{}),
	}

	w.mu.Lock()
	if w.launches > 0 {
		w.restarts++
		metrics.RecordWorkerRestart(w.account.Kind)
	}
	w.launches++
	w.proc = rp
	w.state = StateRunning
	w.mu.Unlock()

	metrics.RecordWorkerSpawn(w.account.Kind)
	w.logger.Info().Int("pid", rp.handle.PID).Int("port", rp.handle.Port).Msg("Worker started")

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		w.pumpEvents(proc.Stdout())
	}()
	go func() {
		defer readers.Done()
		w.pumpStderr(proc.Stderr())
	}()
	go w.pumpCommands(rp)

	exitCh := make(chan exitResult, 1)
	go func() {
		readers.Wait()
		code, err := proc.Wait()
		exitCh <- exitResult{code: code, err: err}
	}()

	select {
	case res := <-exitCh:
		reason := exitReasonCrashed
		if res.code == 0 {
			reason = exitReasonExited
		}
		w.onExit(rp, res, reason)
		return fmt.Errorf("%w: exit code %d", ErrWorkerCrashed, res.code)

	case <-ctx.Done():
		res := w.stopProcess(rp, exitCh)
		w.onExit(rp, res, exitReasonStopped)
		return ctx.Err()
	}
}

// stopProcess closes stdin, asks the worker to terminate and kills it
// after the grace period.
func (w *workerService) stopProcess(rp *runningProcess, exitCh <-chan exitResult) exitResult {
	_ = rp.proc.Stdin().Close()
	if err := rp.proc.Terminate(); err != nil {
		w.logger.Debug().Err(err).Msg("Terminate signal failed")
	}

	grace := time.NewTimer(w.sup.cfg.StopGrace)
	defer grace.Stop()
	select {
	case res := <-exitCh:
		return res
	case <-grace.C:
		w.logger.Warn().Dur("grace", w.sup.cfg.StopGrace).Msg("Worker did not stop in time, killing")
		_ = rp.proc.Kill()
		return <-exitCh
	}
}

// onExit removes the handle and records the exit.
func (w *workerService) onExit(rp *runningProcess, res exitResult, reason string) {
	close(rp.done)
	_ = rp.proc.Stdin().Close()

	w.mu.Lock()
	if w.proc == rp {
		w.proc = nil
	}
	code := res.code
	w.lastExit = &code
	w.mu.Unlock()

	metrics.RecordWorkerExit(w.account.Kind, reason)

	event := w.logger.Info()
	if reason == exitReasonCrashed {
		event = w.logger.Warn()
	}
	if res.err != nil {
		event = event.Err(res.err)
	}
	event.Int("pid", rp.handle.PID).
		Int("exit_code", res.code).
		Str("reason", reason).
		Dur("uptime", time.Since(rp.handle.StartedAt)).
		Msg("Worker exited")
}

// afterExit decides between stopping for good and a delayed restart.
func (w *workerService) afterExit(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		w.setState(StateStopped)
		return ctx.Err()
	}
	if w.tornDown.Load() || w.sup.stopping.Load() {
		w.setState(StateStopped)
		return suture.ErrDoNotRestart
	}

	w.setState(StateCrashed)
	w.logger.Info().Dur("restart_in", w.sup.cfg.RestartDelay).Msg("Scheduling worker restart")
	if !sleepCtx(ctx, w.sup.cfg.RestartDelay) {
		w.setState(StateStopped)
		return ctx.Err()
	}
	return err
}

// quarantine holds the service while the breaker is open.
func (w *workerService) quarantine(ctx context.Context) error {
	w.setState(StateQuarantined)
	metrics.WorkersQuarantined.Inc()
	defer metrics.WorkersQuarantined.Dec()

	cooldown := w.sup.cfg.Quarantine.Cooldown
	w.logger.Warn().Dur("cooldown", cooldown).Msg("Worker quarantined after repeated crashes")
	if !sleepCtx(ctx, cooldown) {
		w.setState(StateStopped)
		return ctx.Err()
	}
	return ErrQuarantined
}

// pumpEvents forwards worker stdout to the event handler. Events are
// always attributed to this service's account.
func (w *workerService) pumpEvents(r io.Reader) {
	dec := ipc.NewDecoder(r)
	for {
		var ev ipc.Event
		err := dec.Decode(&ev)
		switch {
		case errors.Is(err, io.EOF):
			return
		case errors.Is(err, ipc.ErrLineTooLong):
			w.logger.Error().Err(err).Msg("Worker output line too long, discarding remaining output")
			_, _ = io.Copy(io.Discard, r)
			return
		case err != nil:
			w.logger.Warn().Err(err).Msg("Ignoring malformed worker event")
			continue
		}

		if ev.AccountID != w.account.ID {
			if ev.AccountID != "" {
				w.logger.Warn().Str("claimed_account_id", ev.AccountID).Msg("Worker event carried a foreign account id")
			}
			ev.AccountID = w.account.ID
		}
		w.sup.events.OnWorkerEvent(ev)
	}
}

// pumpStderr copies worker log lines into the master log.
func (w *workerService) pumpStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStderrLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if json.Valid(line) {
			w.logger.Info().RawJSON("worker", line).Msg("Worker log")
		} else {
			w.logger.Info().Str("line", string(line)).Msg("Worker output")
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

func (w *workerService) pumpCommands(rp *runningProcess) {
	enc := ipc.NewEncoder(rp.proc.Stdin())
	for {
		select {
		case cmd := <-rp.cmds:
			if err := enc.Encode(cmd); err != nil {
				w.logger.Warn().Err(err).Str("command", cmd.Name).Msg("Failed to write command to worker")
			}
		case <-rp.done:
			return
		}
	}
}

func (w *workerService) send(cmd ipc.Command) error {
	w.mu.RLock()
	rp := w.proc
	w.mu.RUnlock()
	if rp == nil {
		return ErrServiceNotRunning
	}
	select {
	case <-rp.done:
		return ErrServiceNotRunning
	case rp.cmds <- cmd:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

func (w *workerService) kill() error {
	w.mu.RLock()
	rp := w.proc
	w.mu.RUnlock()
	if rp == nil {
		return ErrServiceNotRunning
	}
	w.logger.Info().Int("pid", rp.handle.PID).Msg("Killing worker on request")
	return rp.proc.Kill()
}

func (w *workerService) killProcess() {
	if err := w.kill(); err != nil && !errors.Is(err, ErrServiceNotRunning) {
		w.logger.Warn().Err(err).Msg("Kill failed")
	}
}

func (w *workerService) handle() (Handle, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.proc == nil {
		return Handle{}, false
	}
	return w.proc.handle, true
}

func (w *workerService) status() models.WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	st := models.WorkerStatus{
		State:        string(w.state),
		Port:         w.account.Port,
		Restarts:     w.restarts,
		LastExitCode: w.lastExit,
	}
	if w.proc != nil {
		started := w.proc.handle.StartedAt
		st.PID = w.proc.handle.PID
		st.StartedAt = &started
	}
	return st
}

func (w *workerService) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// sleepCtx waits d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
