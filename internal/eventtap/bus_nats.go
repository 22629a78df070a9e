// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

//go:build nats

package eventtap

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
)

// Bus is a NATS-backed watermill publisher, optionally with an embedded
// NATS server. It implements message.Publisher and the lifecycle used by
// the messaging-layer service.
type Bus struct {
	cfg    config.EventTapConfig
	logger watermill.LoggerAdapter

	mu     sync.RWMutex
	server *server.Server
	pub    message.Publisher
}

// NewBus validates cfg. Nothing connects until Start.
func NewBus(cfg config.EventTapConfig) (*Bus, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("eventtap url is required")
	}
	return &Bus{cfg: cfg, logger: NewLoggerAdapter()}, nil
}

// Start launches the embedded server when configured and connects the
// publisher. The connection retries in the background, so an unreachable
// broker does not fail Start.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pub != nil {
		return nil
	}

	natsURL := b.cfg.URL
	if b.cfg.EmbeddedServer {
		ns, err := startEmbeddedServer(b.cfg)
		if err != nil {
			return err
		}
		b.server = ns
		natsURL = ns.ClientURL()
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("inbox-eventtap"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				b.logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			b.logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	// Subjects are per account, so publish on core NATS; a JetStream
	// stream over <prefix>.> can be added by consumers.
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         natsURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, b.logger)
	if err != nil {
		b.shutdownServerLocked()
		return fmt.Errorf("create watermill publisher: %w", err)
	}
	b.pub = pub
	b.logger.Info("Event bus started", watermill.LogFields{"url": natsURL, "embedded": b.cfg.EmbeddedServer})
	return nil
}

// Shutdown closes the publisher and stops the embedded server.
func (b *Bus) Shutdown(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pub != nil {
		if err := b.pub.Close(); err != nil {
			b.logger.Error("Failed to close publisher", err, nil)
		}
		b.pub = nil
	}
	b.shutdownServerLocked()
}

// IsRunning reports whether the publisher is open.
func (b *Bus) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pub != nil
}

// Publish implements message.Publisher.
func (b *Bus) Publish(topic string, msgs ...*message.Message) error {
	b.mu.RLock()
	pub := b.pub
	b.mu.RUnlock()
	if pub == nil {
		return ErrBusNotStarted
	}
	for _, msg := range msgs {
		if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
			msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
		}
	}
	return pub.Publish(topic, msgs...)
}

// Close implements message.Publisher.
func (b *Bus) Close() error {
	b.Shutdown(context.Background())
	return nil
}

func (b *Bus) shutdownServerLocked() {
	if b.server == nil {
		return
	}
	b.server.Shutdown()
	b.server.WaitForShutdown()
	b.server = nil
}

func startEmbeddedServer(cfg config.EventTapConfig) (*server.Server, error) {
	host, port, err := listenAddress(cfg.URL)
	if err != nil {
		return nil, err
	}
	ns, err := server.NewServer(&server.Options{
		ServerName: "inbox-events",
		Host:       host,
		Port:       port,
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		MaxPayload: 8 * 1024 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	ns.ConfigureLogger()
	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}
	return ns, nil
}

// listenAddress derives the embedded server address from the client URL.
func listenAddress(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, fmt.Errorf("parse eventtap url: %w", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return u.Hostname(), 4222, nil //nolint:nilerr // no port in URL means the NATS default
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("eventtap url port %q: %w", portStr, err)
	}
	return host, port, nil
}
