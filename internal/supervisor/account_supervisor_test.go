// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package supervisor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ports"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/store"
)

type supervisorHarness struct {
	sup      *AccountSupervisor
	tree     *SupervisorTree
	launcher *fakeLauncher
	accounts *memAccounts
	events   *eventRecorder
	cancel   context.CancelFunc
	done     <-chan error
	stopOnce sync.Once
}

func testAccount(id string) models.Account {
	return models.Account{ID: id, Kind: models.KindWhatsApp, DisplayName: id, OwnerCode: "owner"}
}

func fastConfig() Config {
	return Config{
		RestartDelay: 100 * time.Millisecond,
		StopGrace:    500 * time.Millisecond,
	}
}

func newHarness(t *testing.T, cfg Config, accs ...models.Account) *supervisorHarness {
	t.Helper()
	tree, err := NewSupervisorTree(testLogger(), TreeConfig{
		ShutdownTimeout:       3 * time.Second,
		WorkerShutdownTimeout: 2 * time.Second,
	})
	require.NoError(t, err)

	h := &supervisorHarness{
		tree:     tree,
		launcher: newFakeLauncher(),
		accounts: newMemAccounts(accs...),
		events:   &eventRecorder{},
	}
	h.sup, err = NewAccountSupervisor(tree, h.accounts, h.accounts, h.launcher, h.events, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = tree.ServeBackground(ctx)
	t.Cleanup(h.stop)
	return h
}

func (h *supervisorHarness) stop() {
	h.stopOnce.Do(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
		}
	})
}

// assertNoLaunch fails if another worker is launched within d.
func (h *supervisorHarness) assertNoLaunch(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case p := <-h.launcher.launched:
		t.Fatalf("unexpected launch for %s", p.spec.AccountID)
	case <-time.After(d):
	}
}

func TestNewAccountSupervisor_Validation(t *testing.T) {
	_, err := NewAccountSupervisor(nil, nil, nil, newFakeLauncher(), nil, Config{})
	require.ErrorIs(t, err, ErrNilSupervisorTree)

	tree, err := NewSupervisorTree(testLogger(), TreeConfig{})
	require.NoError(t, err)
	_, err = NewAccountSupervisor(tree, nil, nil, nil, nil, Config{})
	require.ErrorIs(t, err, ErrNilLauncher)

	sup, err := NewAccountSupervisor(tree, nil, nil, newFakeLauncher(), nil, Config{})
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, sup.cfg.RestartDelay)
	require.Equal(t, 5*time.Second, sup.cfg.StopGrace)
	require.Equal(t, 256, sup.cfg.CommandBuffer)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.SupervisorConfig{
		RestartDelay:   time.Second,
		RestoreStagger: 2 * time.Second,
		StopGrace:      3 * time.Second,
		Quarantine:     config.QuarantineConfig{Enabled: true, MaxCrashes: 4},
	})
	require.Equal(t, time.Second, cfg.RestartDelay)
	require.Equal(t, 2*time.Second, cfg.RestoreStagger)
	require.Equal(t, 3*time.Second, cfg.StopGrace)
	require.True(t, cfg.Quarantine.Enabled)
	require.Equal(t, uint32(4), cfg.Quarantine.MaxCrashes)
}

func TestSpawn_StartsWorkerWithAssignedPort(t *testing.T) {
	h := newHarness(t, fastConfig(), testAccount("acc1"))
	ctx := context.Background()

	require.NoError(t, h.sup.Spawn(ctx, testAccount("acc1")))
	p := h.launcher.next(t)

	require.Equal(t, "acc1", p.spec.AccountID)
	require.Equal(t, models.KindWhatsApp, p.spec.Kind)
	require.Equal(t, 3006, p.spec.Port)

	require.Eventually(t, func() bool { return h.sup.IsRunning("acc1") }, 2*time.Second, 10*time.Millisecond)
	handle, ok := h.sup.Handle("acc1")
	require.True(t, ok)
	require.Equal(t, p.pid, handle.PID)
	require.Equal(t, 3006, handle.Port)

	st := h.sup.Status("acc1")
	require.Equal(t, string(StateRunning), st.State)
	require.Equal(t, p.pid, st.PID)
	require.NotNil(t, st.StartedAt)
	require.Zero(t, st.Restarts)
}

func TestSpawn_Idempotent(t *testing.T) {
	h := newHarness(t, fastConfig(), testAccount("acc1"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.sup.Spawn(ctx, testAccount("acc1")); err != nil {
				t.Errorf("spawn: %v", err)
			}
		}()
	}
	wg.Wait()

	h.launcher.next(t)
	require.NoError(t, h.sup.Spawn(ctx, testAccount("acc1")))
	h.assertNoLaunch(t, 200*time.Millisecond)

	require.Equal(t, 1, h.launcher.count())
	require.Equal(t, int32(1), h.accounts.assigns.Load(), "port must be assigned once")
}

func TestSpawn_AssignFailureLeavesNoEntry(t *testing.T) {
	h := newHarness(t, fastConfig())

	err := h.sup.Spawn(context.Background(), testAccount("ghost"))
	require.ErrorIs(t, err, store.ErrAccountNotFound)
	require.Equal(t, string(StateStopped), h.sup.Status("ghost").State)
	require.Zero(t, h.launcher.count())
}

func TestWorker_CrashRestartsOnceAfterDelay(t *testing.T) {
	h := newHarness(t, fastConfig(), testAccount("acc1"))
	require.NoError(t, h.sup.Spawn(context.Background(), testAccount("acc1")))
	p1 := h.launcher.next(t)

	crashedAt := time.Now()
	p1.exit(1)

	require.Eventually(t, func() bool {
		return h.sup.Status("acc1").State == string(StateCrashed)
	}, time.Second, 5*time.Millisecond)
	require.False(t, h.sup.IsRunning("acc1"))

	p2 := h.launcher.next(t)
	require.GreaterOrEqual(t, p2.started.Sub(crashedAt), 90*time.Millisecond, "restart must wait for the cool-down")
	require.Equal(t, p1.spec.Port, p2.spec.Port, "port is reused across restarts")
	h.assertNoLaunch(t, 300*time.Millisecond)

	require.Eventually(t, func() bool { return h.sup.IsRunning("acc1") }, time.Second, 5*time.Millisecond)
	st := h.sup.Status("acc1")
	require.Equal(t, 1, st.Restarts)
	require.NotNil(t, st.LastExitCode)
	require.Equal(t, 1, *st.LastExitCode)
}

func TestWorker_CleanExitIsRestartedToo(t *testing.T) {
	h := newHarness(t, fastConfig(), testAccount("acc1"))
	require.NoError(t, h.sup.Spawn(context.Background(), testAccount("acc1")))

	h.launcher.next(t).exit(0)
	h.launcher.next(t)
	require.Equal(t, 2, h.launcher.count())
}

func TestTeardown(t *testing.T) {
	t.Run("stops worker without restart and deletes account", func(t *testing.T) {
		h := newHarness(t, fastConfig(), testAccount("acc1"))
		require.NoError(t, h.sup.Spawn(context.Background(), testAccount("acc1")))
		p := h.launcher.next(t)
		require.Eventually(t, func() bool { return h.sup.IsRunning("acc1") }, time.Second, 5*time.Millisecond)

		require.NoError(t, h.sup.Teardown(context.Background(), "acc1"))

		require.True(t, p.terminated.Load(), "worker should be asked to terminate")
		require.False(t, h.sup.IsRunning("acc1"))
		require.Equal(t, string(StateStopped), h.sup.Status("acc1").State)
		require.Equal(t, []string{"acc1"}, h.accounts.deleted)
		h.assertNoLaunch(t, 300*time.Millisecond)
	})

	t.Run("unknown account is a no-op", func(t *testing.T) {
		h := newHarness(t, fastConfig())
		require.NoError(t, h.sup.Teardown(context.Background(), "nope"))
		require.Empty(t, h.accounts.deleted)
	})

	t.Run("persisted account without worker is deleted", func(t *testing.T) {
		h := newHarness(t, fastConfig(), testAccount("idle"))
		require.NoError(t, h.sup.Teardown(context.Background(), "idle"))
		require.Equal(t, []string{"idle"}, h.accounts.deleted)
	})

	t.Run("during restart cool-down", func(t *testing.T) {
		cfg := fastConfig()
		cfg.RestartDelay = 300 * time.Millisecond
		h := newHarness(t, cfg, testAccount("acc1"))
		require.NoError(t, h.sup.Spawn(context.Background(), testAccount("acc1")))
		h.launcher.next(t).exit(1)
		require.Eventually(t, func() bool {
			return h.sup.Status("acc1").State == string(StateCrashed)
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, h.sup.Teardown(context.Background(), "acc1"))
		h.assertNoLaunch(t, 500*time.Millisecond)
	})
}

func TestSend(t *testing.T) {
	h := newHarness(t, fastConfig(), testAccount("acc1"))

	err := h.sup.Send("acc1", ipc.Command{Name: ipc.CmdRequestState})
	require.ErrorIs(t, err, ErrServiceNotRunning)

	require.NoError(t, h.sup.Spawn(context.Background(), testAccount("acc1")))
	p := h.launcher.next(t)
	require.Eventually(t, func() bool { return h.sup.IsRunning("acc1") }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.sup.Send("acc1", ipc.Command{Name: ipc.CmdRequestState}))
	require.NoError(t, h.sup.Send("acc1", ipc.Command{Name: ipc.CmdGetHistory, RequestID: "r1", Payload: []byte(`{"chat_id":"c1"}`)}))

	dec := ipc.NewDecoder(p.stdinR)
	var first, second ipc.Command
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	require.Equal(t, ipc.CmdRequestState, first.Name)
	require.Equal(t, ipc.CmdGetHistory, second.Name)
	require.Equal(t, "r1", second.RequestID)
	require.JSONEq(t, `{"chat_id":"c1"}`, string(second.Payload))
}

func TestSend_QueueFull(t *testing.T) {
	cfg := fastConfig()
	cfg.CommandBuffer = 1
	h := newHarness(t, cfg, testAccount("acc1"))
	require.NoError(t, h.sup.Spawn(context.Background(), testAccount("acc1")))
	h.launcher.next(t)
	require.Eventually(t, func() bool { return h.sup.IsRunning("acc1") }, time.Second, 5*time.Millisecond)

	// Nobody reads the worker's stdin, so the pump blocks on the first
	// command and the queue fills behind it.
	var err error
	for i := 0; i < 5 && err == nil; i++ {
		err = h.sup.Send("acc1", ipc.Command{Name: ipc.CmdForceSync})
	}
	require.ErrorIs(t, err, ErrCommandQueueFull)
}

func TestEvents_ForwardedInOrderWithOwnAccountID(t *testing.T) {
	h := newHarness(t, fastConfig(), testAccount("acc1"))
	require.NoError(t, h.sup.Spawn(context.Background(), testAccount("acc1")))
	p := h.launcher.next(t)

	p.emit(t, ipc.Event{AccountID: "acc1", Name: ipc.EventStatus, Payload: []byte(`{"state":"INITIALIZING"}`)})
	p.emit(t, ipc.Event{AccountID: "someone-else", Name: ipc.EventQR})
	p.emit(t, ipc.Event{Name: ipc.EventChats})
	_, err := p.stdoutW.Write([]byte("not json\n"))
	require.NoError(t, err)
	p.emit(t, ipc.Event{AccountID: "acc1", Name: ipc.EventNewMessage})

	require.Eventually(t, func() bool { return len(h.events.snapshot()) == 4 }, time.Second, 5*time.Millisecond)
	got := h.events.snapshot()
	names := make([]string, 0, len(got))
	for _, ev := range got {
		require.Equal(t, "acc1", ev.AccountID)
		names = append(names, ev.Name)
	}
	require.Equal(t, []string{ipc.EventStatus, ipc.EventQR, ipc.EventChats, ipc.EventNewMessage}, names)
}

func TestRestart_KillsAndRespawns(t *testing.T) {
	h := newHarness(t, fastConfig(), testAccount("acc1"))
	require.ErrorIs(t, h.sup.Restart("acc1"), ErrServiceNotRunning)

	require.NoError(t, h.sup.Spawn(context.Background(), testAccount("acc1")))
	p1 := h.launcher.next(t)
	require.Eventually(t, func() bool { return h.sup.IsRunning("acc1") }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.sup.Restart("acc1"))
	p2 := h.launcher.next(t)
	require.NotEqual(t, p1.pid, p2.pid)

	require.Eventually(t, func() bool { return h.sup.IsRunning("acc1") }, time.Second, 5*time.Millisecond)
	st := h.sup.Status("acc1")
	require.Equal(t, 1, st.Restarts)
	require.NotNil(t, st.LastExitCode)
	require.Equal(t, -1, *st.LastExitCode)
}

func TestRestoreAll_Staggered(t *testing.T) {
	cfg := fastConfig()
	cfg.RestoreStagger = 60 * time.Millisecond
	h := newHarness(t, cfg, testAccount("a"), testAccount("b"), testAccount("c"))

	start := time.Now()
	require.NoError(t, h.sup.RestoreAll(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 110*time.Millisecond, "three spawns need two stagger intervals")

	seen := map[string]int{}
	for i := 0; i < 3; i++ {
		p := h.launcher.next(t)
		seen[p.spec.AccountID] = p.spec.Port
	}
	require.Len(t, seen, 3)
	require.ElementsMatch(t, []int{3006, 3007, 3008}, []int{seen["a"], seen["b"], seen["c"]})

	require.Eventually(t, func() bool { return h.sup.RunningCount() == 3 }, time.Second, 5*time.Millisecond)
	list := h.sup.List()
	require.Equal(t, "a", list[0].AccountID)
	require.Equal(t, "c", list[2].AccountID)
}

func TestRestoreAll_CanceledContext(t *testing.T) {
	cfg := fastConfig()
	cfg.RestoreStagger = time.Second
	h := newHarness(t, cfg, testAccount("a"), testAccount("b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.sup.RestoreAll(ctx)
	require.True(t, errors.Is(err, context.Canceled))
	h.assertNoLaunch(t, 100*time.Millisecond)
}

func TestRestoreService_RunsOnce(t *testing.T) {
	h := newHarness(t, fastConfig(), testAccount("a"), testAccount("b"))
	h.tree.AddDataService(h.sup.RestoreService())

	h.launcher.next(t)
	h.launcher.next(t)
	h.assertNoLaunch(t, 200*time.Millisecond)
	require.Equal(t, "account-restore", h.sup.RestoreService().(interface{ String() string }).String())
}

func TestQuarantine_OpensAfterRepeatedCrashes(t *testing.T) {
	cfg := fastConfig()
	cfg.RestartDelay = 20 * time.Millisecond
	cfg.Quarantine = config.QuarantineConfig{
		Enabled:    true,
		MaxCrashes: 2,
		Window:     time.Minute,
		Cooldown:   400 * time.Millisecond,
	}
	h := newHarness(t, cfg, testAccount("acc1"))
	require.NoError(t, h.sup.Spawn(context.Background(), testAccount("acc1")))

	h.launcher.next(t).exit(1)
	h.launcher.next(t).exit(1)

	require.Eventually(t, func() bool {
		return h.sup.Status("acc1").State == string(StateQuarantined)
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 2, h.launcher.count())

	// The breaker half-opens after the cool-down and lets one launch through.
	p3 := h.launcher.next(t)
	require.Equal(t, "acc1", p3.spec.AccountID)
}

func TestShutdown_StopsRestarts(t *testing.T) {
	h := newHarness(t, fastConfig(), testAccount("acc1"))
	require.NoError(t, h.sup.Spawn(context.Background(), testAccount("acc1")))
	p := h.launcher.next(t)

	h.sup.Shutdown()
	require.ErrorIs(t, h.sup.Spawn(context.Background(), testAccount("acc2")), ErrSupervisorStopped)

	p.exit(1)
	h.assertNoLaunch(t, 300*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.sup.Status("acc1").State == string(StateStopped)
	}, time.Second, 5*time.Millisecond)
}

func TestTreeCancel_TerminatesWorkers(t *testing.T) {
	h := newHarness(t, fastConfig(), testAccount("acc1"))
	require.NoError(t, h.sup.Spawn(context.Background(), testAccount("acc1")))
	p := h.launcher.next(t)
	require.Eventually(t, func() bool { return h.sup.IsRunning("acc1") }, time.Second, 5*time.Millisecond)

	h.stop()
	require.True(t, p.terminated.Load())
	require.False(t, h.sup.IsRunning("acc1"))
}

func TestSpawn_WithSQLiteStoreAndAllocator(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "inbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	for _, id := range []string{"acc1", "acc2"} {
		acc := testAccount(id)
		require.NoError(t, st.Create(ctx, &acc))
	}
	alloc := ports.NewAllocator(st, ports.Config{PreferredStart: 3006, FallbackMin: 40000, FallbackMax: 40010})

	tree, err := NewSupervisorTree(testLogger(), TreeConfig{ShutdownTimeout: 3 * time.Second, WorkerShutdownTimeout: 2 * time.Second})
	require.NoError(t, err)
	launcher := newFakeLauncher()
	sup, err := NewAccountSupervisor(tree, st, alloc, launcher, nil, fastConfig())
	require.NoError(t, err)

	treeCtx, cancel := context.WithCancel(ctx)
	done := tree.ServeBackground(treeCtx)
	t.Cleanup(func() {
		cancel()
		<-done
	})

	acc1, err := st.Get(ctx, "acc1")
	require.NoError(t, err)
	require.NoError(t, sup.Spawn(ctx, acc1))
	require.Equal(t, 3006, launcher.next(t).spec.Port)

	acc2, err := st.Get(ctx, "acc2")
	require.NoError(t, err)
	require.NoError(t, sup.Spawn(ctx, acc2))
	require.Equal(t, 3007, launcher.next(t).spec.Port)

	persisted, err := st.Get(ctx, "acc1")
	require.NoError(t, err)
	require.Equal(t, 3006, persisted.Port)

	require.NoError(t, sup.Teardown(ctx, "acc1"))
	_, err = st.Get(ctx, "acc1")
	require.ErrorIs(t, err, store.ErrAccountNotFound)
}
