// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package eventtap

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/wal"
)

// memSpool is an in-memory Spool.
type memSpool struct {
	mu      sync.Mutex
	entries []wal.Entry
	seq     int
}

func (m *memSpool) Append(ev ipc.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.entries = append(m.entries, wal.Entry{ID: strconv.Itoa(m.seq), Event: ev, CreatedAt: time.Now()})
	return nil
}

func (m *memSpool) Pending(_ context.Context, limit int) ([]wal.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]wal.Entry(nil), m.entries[:n]...), nil
}

func (m *memSpool) Ack(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return wal.ErrEntryNotFound
}

func (m *memSpool) MarkFailed(id string, cause error) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == id {
			m.entries[i].Attempts++
			m.entries[i].LastError = cause.Error()
			return m.entries[i].Attempts, nil
		}
	}
	return 0, wal.ErrEntryNotFound
}

func (m *memSpool) Len() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

func (m *memSpool) Compact() error { return nil }

// switchPublisher fails while down is set and records what it published.
type switchPublisher struct {
	down atomic.Bool

	mu     sync.Mutex
	topics []string
	events []ipc.Event
}

func (p *switchPublisher) Publish(topic string, msgs ...*message.Message) error {
	if p.down.Load() {
		return errors.New("bus unreachable")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		var ev ipc.Event
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			return err
		}
		p.topics = append(p.topics, topic)
		p.events = append(p.events, ev)
	}
	return nil
}

func (p *switchPublisher) Close() error { return nil }

func (p *switchPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Name
	}
	return out
}

func spoolConfig() Config {
	return Config{
		TopicPrefix:      "inbox.events",
		BreakerThreshold: 1000,
		ReplayInterval:   20 * time.Millisecond,
		ReplayBatch:      2,
		MaxAttempts:      1000,
	}
}

func TestTap_SpoolsAndReplaysInOrder(t *testing.T) {
	pub := &switchPublisher{}
	pub.down.Store(true)
	sp := &memSpool{}

	tap := New(pub, spoolConfig())
	tap.SetSpool(sp)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tap.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	tap.Publish(ipc.Event{AccountID: "acc1", Name: "e1"})
	tap.Publish(ipc.Event{AccountID: "acc1", Name: "e2"})
	require.Eventually(t, func() bool { n, _ := sp.Len(); return n == 2 }, 2*time.Second, 5*time.Millisecond)

	pub.down.Store(false)
	// Arrives while older events are still spooled, so it queues behind them.
	tap.Publish(ipc.Event{AccountID: "acc1", Name: "e3"})

	require.Eventually(t, func() bool { return len(pub.names()) == 3 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"e1", "e2", "e3"}, pub.names())
	require.Eventually(t, func() bool { return tap.Spooled() == 0 }, time.Second, 5*time.Millisecond)

	// Drained: publishing goes direct again.
	tap.Publish(ipc.Event{AccountID: "acc1", Name: "e4"})
	require.Eventually(t, func() bool { return len(pub.names()) == 4 }, 2*time.Second, 5*time.Millisecond)
	n, _ := sp.Len()
	require.Zero(t, n)
}

func TestTap_AbandonsAfterMaxAttempts(t *testing.T) {
	pub := &switchPublisher{}
	pub.down.Store(true)
	sp := &memSpool{}
	require.NoError(t, sp.Append(ipc.Event{AccountID: "acc1", Name: "stale"}))

	cfg := spoolConfig()
	cfg.MaxAttempts = 3
	tap := New(pub, cfg)
	tap.SetSpool(sp)
	require.Equal(t, int64(1), tap.Spooled())

	for i := 0; i < 3; i++ {
		tap.replay(context.Background())
	}
	n, _ := sp.Len()
	require.Zero(t, n, "entry is dropped after three failed replays")
	require.Zero(t, tap.Spooled())
	require.Empty(t, pub.names())
}

func TestTap_ReplayWaitsWhileBreakerOpen(t *testing.T) {
	pub := &switchPublisher{}
	pub.down.Store(true)
	sp := &memSpool{}

	cfg := spoolConfig()
	cfg.BreakerThreshold = 1
	cfg.BreakerTimeout = time.Minute
	cfg.MaxAttempts = 1
	tap := New(pub, cfg)
	tap.SetSpool(sp)

	tap.publish(ipc.Event{AccountID: "acc1", Name: "trips"})
	tap.publish(ipc.Event{AccountID: "acc1", Name: "held"})
	require.Equal(t, int64(2), tap.Spooled())

	// The breaker is open, so replay neither publishes nor counts attempts.
	tap.replay(context.Background())
	entries, _ := sp.Pending(context.Background(), 0)
	require.Len(t, entries, 2)
	require.Zero(t, entries[0].Attempts)
}
