// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package eventtap mirrors worker events onto a watermill publisher so
// that other systems can observe account activity.
//
// The tap never slows the relay: events are queued without blocking and
// published from the tap's own goroutine behind a circuit breaker. Events
// that do not fit the queue are counted and dropped. Events that fail to
// publish are dropped too unless a Spool is set, in which case they are
// stored and replayed in arrival order once the bus recovers. The NATS
// transport and the embedded NATS server are compiled in with the "nats"
// build tag, the BadgerDB spool with "wal".
package eventtap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/metrics"
)

// Metadata keys set on every published message.
const (
	MetadataAccountID = "account_id"
	MetadataEvent     = "event"
)

const defaultQueueSize = 1024

// Publish outcomes recorded in inbox_eventtap_publish_total.
const (
	resultOK          = "ok"
	resultError       = "error"
	resultBreakerOpen = "breaker_open"
	resultDropped     = "dropped"
	resultSpooled     = "spooled"
)

// Config controls topic naming and publish protection.
type Config struct {
	TopicPrefix      string
	QueueSize        int
	BreakerThreshold uint32
	BreakerTimeout   time.Duration

	// Spool replay. Used only after SetSpool.
	MaxAttempts    int
	ReplayInterval time.Duration
	ReplayBatch    int
}

// ConfigFrom maps the master configuration section.
func ConfigFrom(c config.EventTapConfig) Config {
	return Config{
		TopicPrefix:      c.TopicPrefix,
		BreakerThreshold: c.BreakerThreshold,
		BreakerTimeout:   c.BreakerTimeout,
		MaxAttempts:      c.Spool.MaxAttempts,
		ReplayInterval:   c.Spool.ReplayInterval,
		ReplayBatch:      c.Spool.ReplayBatch,
	}
}

// Tap queues worker events and publishes them. It implements the relay's
// tap interface and suture.Service.
type Tap struct {
	pub     message.Publisher
	cfg     Config
	queue   chan ipc.Event
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  zerolog.Logger

	spool   Spool
	spooled atomic.Int64
}

// New creates a tap publishing to pub.
func New(pub message.Publisher, cfg Config) *Tap {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 100
	}
	if cfg.ReplayInterval <= 0 {
		cfg.ReplayInterval = 10 * time.Second
	}
	if cfg.ReplayBatch <= 0 {
		cfg.ReplayBatch = 256
	}
	cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, ".")

	t := &Tap{
		pub:    pub,
		cfg:    cfg,
		queue:  make(chan ipc.Event, cfg.QueueSize),
		logger: logging.WithComponent("eventtap"),
	}
	t.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "eventtap",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Event tap breaker state changed")
		},
	})
	return t
}

// Topic returns the topic an event is published to:
// <prefix>.<account_id>.<event>.
func Topic(prefix string, ev ipc.Event) string {
	if prefix == "" {
		return ev.AccountID + "." + ev.Name
	}
	return prefix + "." + ev.AccountID + "." + ev.Name
}

// Publish queues ev. It never blocks.
func (t *Tap) Publish(ev ipc.Event) {
	select {
	case t.queue <- ev:
	default:
		metrics.EventTapPublishes.WithLabelValues(resultDropped).Inc()
	}
}

// Serve publishes queued events until ctx is canceled. With a spool set
// it also replays spooled events every ReplayInterval.
func (t *Tap) Serve(ctx context.Context) error {
	t.logger.Info().Str("topic_prefix", t.cfg.TopicPrefix).Bool("spool", t.spool != nil).Msg("Event tap started")

	var replay <-chan time.Time
	if t.spool != nil {
		ticker := time.NewTicker(t.cfg.ReplayInterval)
		defer ticker.Stop()
		replay = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-t.queue:
			t.publish(ev)
		case <-replay:
			t.replay(ctx)
		}
	}
}

func (t *Tap) String() string {
	return "eventtap"
}

func (t *Tap) publish(ev ipc.Event) {
	// Older events are still spooled; keep arrival order.
	if t.spool != nil && t.spooled.Load() > 0 {
		t.spoolEvent(ev)
		return
	}

	err := t.send(ev)
	switch {
	case err == nil:
		metrics.EventTapPublishes.WithLabelValues(resultOK).Inc()
		return
	case errors.Is(err, errEncode):
		metrics.EventTapPublishes.WithLabelValues(resultError).Inc()
		t.logger.Error().Err(err).Str("event", ev.Name).Msg("Failed to encode event for tap")
		return
	case isBreakerOpen(err):
		metrics.EventTapPublishes.WithLabelValues(resultBreakerOpen).Inc()
	default:
		metrics.EventTapPublishes.WithLabelValues(resultError).Inc()
		t.logger.Warn().Err(err).Str("topic", Topic(t.cfg.TopicPrefix, ev)).Msg("Event tap publish failed")
	}

	if t.spool != nil {
		t.spoolEvent(ev)
	}
}

var errEncode = errors.New("encode event")

// send publishes ev through the breaker.
func (t *Tap) send(ev ipc.Event) error {
	msg, err := newMessage(ev)
	if err != nil {
		return fmt.Errorf("%w: %w", errEncode, err)
	}
	topic := Topic(t.cfg.TopicPrefix, ev)
	_, err = t.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, t.pub.Publish(topic, msg)
	})
	return err
}

func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func newMessage(ev ipc.Event) (*message.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetadataAccountID, ev.AccountID)
	msg.Metadata.Set(MetadataEvent, ev.Name)
	return msg, nil
}
