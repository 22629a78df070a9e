// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

type mockBus struct {
	running  atomic.Bool
	started  atomic.Bool
	startErr error
}

func (m *mockBus) Start(ctx context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started.Store(true)
	m.running.Store(true)
	return nil
}

func (m *mockBus) Shutdown(ctx context.Context) {
	m.running.Store(false)
}

func (m *mockBus) IsRunning() bool {
	return m.running.Load()
}

func TestBusService(t *testing.T) {
	t.Run("implements suture.Service interface", func(t *testing.T) {
		var _ suture.Service = (*BusService)(nil)
	})

	t.Run("starts and stops the bus", func(t *testing.T) {
		bus := &mockBus{}
		svc := NewBusService(bus)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- svc.Serve(ctx)
		}()

		for i := 0; i < 50 && !bus.started.Load(); i++ {
			time.Sleep(10 * time.Millisecond)
		}
		if !bus.IsRunning() {
			t.Fatal("bus should be running")
		}

		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("service did not stop in time")
		}
		if bus.IsRunning() {
			t.Error("bus should have been shut down")
		}
	})

	t.Run("propagates start error for restart", func(t *testing.T) {
		bus := &mockBus{startErr: errors.New("connection refused")}
		err := NewBusService(bus).Serve(context.Background())
		if !errors.Is(err, bus.startErr) {
			t.Errorf("expected wrapped start error, got %v", err)
		}
	})

	t.Run("String returns service name", func(t *testing.T) {
		if got := NewBusService(&mockBus{}).String(); got != "event-bus" {
			t.Errorf("expected 'event-bus', got %q", got)
		}
	})

	t.Run("non-positive timeout uses default", func(t *testing.T) {
		svc := NewBusServiceWithTimeout(&mockBus{}, 0)
		if svc.shutdownTimeout != 10*time.Second {
			t.Errorf("expected 10s, got %v", svc.shutdownTimeout)
		}
	})
}
