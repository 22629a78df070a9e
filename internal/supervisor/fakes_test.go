// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package supervisor

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/store"
)

var pidCounter atomic.Int32

// fakeProcess is an in-memory worker. The test plays the worker side of
// its pipes and decides when and how it exits.
type fakeProcess struct {
	pid     int
	spec    ProcessSpec
	started time.Time

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	once       sync.Once
	exitCode   chan int
	terminated atomic.Bool
}

func newFakeProcess(spec ProcessSpec) *fakeProcess {
	p := &fakeProcess{
		pid:      int(pidCounter.Add(1)) + 1000,
		spec:     spec,
		started:  time.Now(),
		exitCode: make(chan int, 1),
	}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

func (p *fakeProcess) Pid() int              { return p.pid }
func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdinW }
func (p *fakeProcess) Stdout() io.Reader     { return p.stdoutR }
func (p *fakeProcess) Stderr() io.Reader     { return p.stderrR }

func (p *fakeProcess) Wait() (int, error) { return <-p.exitCode, nil }

func (p *fakeProcess) Terminate() error {
	p.terminated.Store(true)
	p.exit(0)
	return nil
}

func (p *fakeProcess) Kill() error {
	p.exit(-1)
	return nil
}

// exit closes the output pipes and reports code to Wait.
func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		_ = p.stdoutW.Close()
		_ = p.stderrW.Close()
		_ = p.stdinR.Close()
		p.exitCode <- code
	})
}

// emit writes an event line as the worker would.
func (p *fakeProcess) emit(t *testing.T, ev ipc.Event) {
	t.Helper()
	if err := ipc.NewEncoder(p.stdoutW).Encode(ev); err != nil {
		t.Fatalf("emit: %v", err)
	}
}

type fakeLauncher struct {
	mu       sync.Mutex
	procs    []*fakeProcess
	launched chan *fakeProcess
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{launched: make(chan *fakeProcess, 64)}
}

func (l *fakeLauncher) Launch(spec ProcessSpec) (Process, error) {
	p := newFakeProcess(spec)
	l.mu.Lock()
	l.procs = append(l.procs, p)
	l.mu.Unlock()
	l.launched <- p
	return p, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

func (l *fakeLauncher) next(t *testing.T) *fakeProcess {
	t.Helper()
	select {
	case p := <-l.launched:
		return p
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for worker launch")
		return nil
	}
}

// memAccounts is an in-memory AccountStore and PortAssigner.
type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	assigns  atomic.Int32
	deleted  []string
	nextPort int
}

func newMemAccounts(accs ...models.Account) *memAccounts {
	m := &memAccounts{accounts: make(map[string]models.Account), nextPort: 3006}
	for _, a := range accs {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *memAccounts) List(context.Context) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAccounts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return store.ErrAccountNotFound
	}
	delete(m.accounts, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memAccounts) Assign(_ context.Context, id string) (int, error) {
	m.assigns.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, store.ErrAccountNotFound
	}
	if a.Port == 0 {
		a.Port = m.nextPort
		m.nextPort++
		m.accounts[id] = a
	}
	return a.Port, nil
}

// eventRecorder collects forwarded worker events.
type eventRecorder struct {
	mu     sync.Mutex
	events []ipc.Event
}

func (r *eventRecorder) OnWorkerEvent(ev ipc.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) snapshot() []ipc.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ipc.Event(nil), r.events...)
}
