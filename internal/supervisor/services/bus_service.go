// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package services

import (
	"context"
	"fmt"
	"time"
)

// BusRunner is the lifecycle of the event bus (eventtap.Bus).
type BusRunner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context)
	IsRunning() bool
}

// BusService runs the event bus in the messaging layer:
//  1. Start(ctx) connects the publisher and any embedded server
//  2. it waits for ctx to be canceled
//  3. Shutdown runs with a fresh context bounded by the shutdown timeout
//
// A failed Start is returned so suture retries with its backoff.
//
//	bus, _ := eventtap.NewBus(cfg.EventTap)
//	tree.AddMessagingService(services.NewBusService(bus))
type BusService struct {
	bus             BusRunner
	shutdownTimeout time.Duration
	name            string
}

// NewBusService wraps bus with a 10 second shutdown timeout.
func NewBusService(bus BusRunner) *BusService {
	return NewBusServiceWithTimeout(bus, 10*time.Second)
}

// NewBusServiceWithTimeout wraps bus with a custom shutdown timeout.
func NewBusServiceWithTimeout(bus BusRunner, shutdownTimeout time.Duration) *BusService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &BusService{
		bus:             bus,
		shutdownTimeout: shutdownTimeout,
		name:            "event-bus",
	}
}

// Serve implements suture.Service.
func (s *BusService) Serve(ctx context.Context) error {
	if err := s.bus.Start(ctx); err != nil {
		return fmt.Errorf("event bus start failed: %w", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.bus.Shutdown(shutdownCtx)

	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (s *BusService) String() string {
	return s.name
}
