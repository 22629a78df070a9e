// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package ports hands out and persists one network port per account.
package ports

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/metrics"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/store"
)

const maxPort = 65535

// maxAssignAttempts bounds retries when a candidate port turns out to be
// taken by the time it is persisted.
const maxAssignAttempts = 8

var (
	// ErrNoFreePort is returned when every port from the preferred start up
	// to 65535 is assigned.
	ErrNoFreePort = errors.New("no free port available")

	// ErrPortConflict marks a fallback allocation. It is logged, never returned.
	ErrPortConflict = errors.New("port allocator fell back to random range")
)

// Store is the subset of the account store the allocator needs.
type Store interface {
	Get(ctx context.Context, id string) (models.Account, error)
	UsedPorts(ctx context.Context) ([]int, error)
	SetPort(ctx context.Context, id string, port int) error
}

// Config bounds the allocator.
type Config struct {
	PreferredStart int
	FallbackMin    int
	FallbackMax    int
}

// Allocator serializes port assignment so concurrent callers never
// receive the same port.
type Allocator struct {
	store  Store
	cfg    Config
	logger zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewAllocator creates an allocator over s.
func NewAllocator(s Store, cfg Config) *Allocator {
	return &Allocator{
		store:  s,
		cfg:    cfg,
		logger: logging.WithComponent("ports"),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Allocate returns the smallest port >= preferredStart that no account
// holds. If persisted assignments cannot be read it returns a random port
// from the fallback range instead.
func (a *Allocator) Allocate(ctx context.Context, preferredStart int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocateLocked(ctx, preferredStart)
}

func (a *Allocator) allocateLocked(ctx context.Context, preferredStart int) (int, error) {
	used, err := a.store.UsedPorts(ctx)
	if err != nil {
		return a.fallback(err), nil
	}
	return smallestFree(used, preferredStart)
}

// smallestFree expects used in any order.
func smallestFree(used []int, start int) (int, error) {
	taken := make(map[int]struct{}, len(used))
	for _, p := range used {
		taken[p] = struct{}{}
	}
	for p := start; p <= maxPort; p++ {
		if _, ok := taken[p]; !ok {
			return p, nil
		}
	}
	return 0, ErrNoFreePort
}

func (a *Allocator) fallback(cause error) int {
	lo, hi := a.cfg.FallbackMin, a.cfg.FallbackMax
	port := lo + a.rng.IntN(hi-lo+1)
	metrics.PortFallbacks.Inc()
	a.logger.Warn().
		Err(fmt.Errorf("%w: %w", ErrPortConflict, cause)).
		Int("port", port).
		Msg("Could not read assigned ports, using random fallback port")
	return port
}

// Assign returns the account's persisted port, allocating and persisting
// one first if the account has none. The whole read-allocate-persist
// sequence holds the allocator lock.
func (a *Allocator) Assign(ctx context.Context, accountID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	acc, err := a.store.Get(ctx, accountID)
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		return 0, err
	case err != nil:
		return a.fallback(err), nil
	case acc.HasPort():
		return acc.Port, nil
	}

	for attempt := 0; attempt < maxAssignAttempts; attempt++ {
		port, err := a.allocateLocked(ctx, a.cfg.PreferredStart)
		if err != nil {
			return 0, err
		}

		err = a.store.SetPort(ctx, accountID, port)
		switch {
		case err == nil:
			a.logger.Info().Str("account_id", accountID).Int("port", port).Msg("Port assigned")
			return port, nil
		case errors.Is(err, store.ErrPortTaken):
			a.logger.Debug().Str("account_id", accountID).Int("port", port).Msg("Candidate port taken, retrying")
			continue
		case errors.Is(err, store.ErrPortAlreadySet):
			acc, getErr := a.store.Get(ctx, accountID)
			if getErr != nil {
				return 0, getErr
			}
			return acc.Port, nil
		case errors.Is(err, store.ErrAccountNotFound):
			return 0, err
		default:
			// Unpersisted: the next spawn tries again. A collision shows up as
			// a worker bind failure and a restart.
			a.logger.Warn().Err(err).Str("account_id", accountID).Int("port", port).
				Msg("Failed to persist port, using it unpersisted")
			return port, nil
		}
	}
	return 0, fmt.Errorf("assign port for %s: %w", accountID, ErrNoFreePort)
}
