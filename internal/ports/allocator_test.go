// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package ports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"pgregory.net/rapid"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/store"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

var testConfig = Config{PreferredStart: 3006, FallbackMin: 40000, FallbackMax: 40999}

// memStore is an in-memory Store with failure injection.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	failRead bool
}

func newMemStore(ids ...string) *memStore {
	m := &memStore{accounts: map[string]models.Account{}}
	for _, id := range ids {
		m.accounts[id] = models.Account{ID: id, Kind: models.KindWhatsApp}
	}
	return m
}

func (m *memStore) Get(_ context.Context, id string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead {
		return models.Account{}, errors.New("disk I/O error")
	}
	a, ok := m.accounts[id]
	if !ok {
		return models.Account{}, store.ErrAccountNotFound
	}
	return a, nil
}

func (m *memStore) UsedPorts(context.Context) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead {
		return nil, errors.New("disk I/O error")
	}
	var used []int
	for _, a := range m.accounts {
		if a.HasPort() {
			used = append(used, a.Port)
		}
	}
	return used, nil
}

func (m *memStore) SetPort(_ context.Context, id string, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	if a.HasPort() {
		return store.ErrPortAlreadySet
	}
	for _, other := range m.accounts {
		if other.Port == port {
			return store.ErrPortTaken
		}
	}
	a.Port = port
	m.accounts[id] = a
	return nil
}

func TestAllocate_SmallestFree(t *testing.T) {
	tests := []struct {
		name  string
		used  []int
		start int
		want  int
	}{
		{"empty", nil, 3006, 3006},
		{"start taken", []int{3006}, 3006, 3007},
		{"gap", []int{3006, 3008}, 3006, 3007},
		{"below start ignored", []int{1000, 2000}, 3006, 3006},
		{"unordered", []int{3008, 3006, 3007}, 3006, 3009},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := smallestFree(tt.used, tt.start)
			if err != nil {
				t.Fatalf("smallestFree() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("smallestFree() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAllocate_Exhausted(t *testing.T) {
	if _, err := smallestFree([]int{65534, 65535}, 65534); !errors.Is(err, ErrNoFreePort) {
		t.Fatalf("smallestFree() error = %v, want ErrNoFreePort", err)
	}
}

func TestAllocate_FallbackOnReadFailure(t *testing.T) {
	s := newMemStore()
	s.failRead = true
	a := NewAllocator(s, testConfig)

	for i := 0; i < 20; i++ {
		port, err := a.Allocate(context.Background(), 3006)
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		if port < testConfig.FallbackMin || port > testConfig.FallbackMax {
			t.Fatalf("fallback port %d outside [%d,%d]", port, testConfig.FallbackMin, testConfig.FallbackMax)
		}
	}
}

func TestAssign_FirstSpawnGets3006AndIsStable(t *testing.T) {
	s := newMemStore("acc1")
	a := NewAllocator(s, testConfig)

	port, err := a.Assign(context.Background(), "acc1")
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if port != 3006 {
		t.Fatalf("Assign() = %d, want 3006", port)
	}

	again, err := a.Assign(context.Background(), "acc1")
	if err != nil {
		t.Fatalf("second Assign() error = %v", err)
	}
	if again != 3006 {
		t.Errorf("second Assign() = %d, want the persisted 3006", again)
	}
}

func TestAssign_UnknownAccount(t *testing.T) {
	a := NewAllocator(newMemStore(), testConfig)
	if _, err := a.Assign(context.Background(), "ghost"); !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("Assign() error = %v, want ErrAccountNotFound", err)
	}
}

func TestAssign_ConcurrentUnique(t *testing.T) {
	ids := make([]string, 40)
	for i := range ids {
		ids[i] = fmt.Sprintf("acc%02d", i)
	}
	s := newMemStore(ids...)
	a := NewAllocator(s, testConfig)

	var wg sync.WaitGroup
	results := make([]int, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			p, err := a.Assign(context.Background(), id)
			if err != nil {
				t.Errorf("Assign(%s) error = %v", id, err)
			}
			results[i] = p
		}(i, id)
	}
	wg.Wait()

	seen := map[int]bool{}
	for _, p := range results {
		if seen[p] {
			t.Fatalf("port %d handed out twice", p)
		}
		seen[p] = true
		if p < 3006 || p >= 3006+len(ids) {
			t.Errorf("port %d outside the dense range", p)
		}
	}
}

// Property: whatever ports are already persisted, a newly assigned port is
// never one of them and is the smallest free one from the preferred start.
func TestAssign_NeverReusesHeldPort(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		s := newMemStore()
		held := rapid.SliceOfNDistinct(rapid.IntRange(3000, 3040), 0, 20, rapid.ID[int]).Draw(r, "held")
		for i, p := range held {
			id := fmt.Sprintf("held-%d", i)
			s.accounts[id] = models.Account{ID: id, Port: p}
		}
		newCount := rapid.IntRange(1, 10).Draw(r, "newCount")
		for i := 0; i < newCount; i++ {
			id := fmt.Sprintf("new-%d", i)
			s.accounts[id] = models.Account{ID: id}
		}

		a := NewAllocator(s, testConfig)
		for i := 0; i < newCount; i++ {
			id := fmt.Sprintf("new-%d", i)
			before, _ := s.UsedPorts(context.Background())
			want, _ := smallestFree(before, testConfig.PreferredStart)

			got, err := a.Assign(context.Background(), id)
			if err != nil {
				r.Fatalf("Assign(%s) error = %v", id, err)
			}
			for _, p := range before {
				if p == got {
					r.Fatalf("Assign(%s) returned held port %d", id, got)
				}
			}
			if got != want {
				r.Fatalf("Assign(%s) = %d, want smallest free %d", id, got, want)
			}
		}
	})
}

func TestAssign_WithSQLiteStore(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "inbox.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	for _, id := range []string{"acc1", "acc2"} {
		if err := s.Create(ctx, &models.Account{ID: id, Kind: models.KindTelegram}); err != nil {
			t.Fatal(err)
		}
	}

	a := NewAllocator(s, testConfig)
	p1, err := a.Assign(ctx, "acc1")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := a.Assign(ctx, "acc2")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != 3006 || p2 != 3007 {
		t.Errorf("ports = %d, %d, want 3006, 3007", p1, p2)
	}

	got, err := s.Get(ctx, "acc1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Port != 3006 {
		t.Errorf("persisted port = %d, want 3006", got.Port)
	}
}
