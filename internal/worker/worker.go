// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package worker runs one account in its own process.
//
// Commands arrive as newline-delimited JSON on stdin and from clients of
// the collocated WebSocket face. Both sources feed a single dispatch loop,
// so commands are handled one at a time in arrival order. Every event the
// driver emits is tagged with the account id, written to stdout and
// broadcast to local WebSocket clients.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/driver"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/supervisor/services"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/websocket"
)

const commandQueueSize = 64

// Options configures a Worker.
type Options struct {
	AccountID string
	Kind      string
	Host      string
	Port      int

	// In carries commands from the master; EOF stops the worker.
	In io.Reader
	// Out receives events for the master.
	Out io.Writer

	Driver driver.Driver

	// AllowedOrigins lists browser origins that may open the local /ws.
	// Clients that send no Origin header are always accepted.
	AllowedOrigins []string
	// Token, when set, must accompany /ws as a "token" query parameter
	// or a bearer Authorization header.
	Token string
}

// Worker hosts one account driver.
type Worker struct {
	opts     Options
	drv      driver.Driver
	enc      *ipc.Encoder
	hub      *websocket.Hub
	commands chan ipc.Command
	handlers map[string]commandHandler
	logger   zerolog.Logger
}

// New builds a worker. Run starts it.
func New(opts Options) *Worker {
	w := &Worker{
		opts:     opts,
		drv:      opts.Driver,
		enc:      ipc.NewEncoder(opts.Out),
		hub:      websocket.NewHub("worker-" + opts.AccountID),
		commands: make(chan ipc.Command, commandQueueSize),
		logger:   logging.ForAccount("worker", opts.AccountID),
	}
	w.handlers = w.commandTable()
	return w
}

// Emit implements driver.EventSink. The event goes to stdout first, then
// to local WebSocket clients.
func (w *Worker) Emit(event string, payload any) {
	ev, err := ipc.NewEvent(w.opts.AccountID, event, payload)
	if err != nil {
		w.logger.Error().Err(err).Str("event", event).Msg("Failed to encode event")
		return
	}
	w.publish(ev)
}

func (w *Worker) publish(ev ipc.Event) {
	if err := w.enc.Encode(ev); err != nil {
		w.logger.Error().Err(err).Str("event", ev.Name).Msg("Failed to write event to master")
	}
	w.hub.Broadcast(websocket.Message{Type: websocket.MessageTypeEvent, Data: ev})
}

// Run binds the local port, starts the driver and dispatches commands
// until ctx is canceled or the command input reaches EOF. Bind and driver
// start failures are returned so the process exits non-zero.
func (w *Worker) Run(ctx context.Context) error {
	addr := net.JoinHostPort(w.opts.Host, strconv.Itoa(w.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := w.drv.Start(ctx, w); err != nil {
		_ = ln.Close()
		return fmt.Errorf("start %s driver: %w", w.opts.Kind, err)
	}
	defer func() {
		if err := w.drv.Stop(); err != nil {
			w.logger.Warn().Err(err).Msg("Driver stop failed")
		}
	}()

	srv := &http.Server{
		Handler:           w.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	sup := suture.New("worker-"+w.opts.AccountID, suture.Spec{
		EventHook: (&sutureslog.Handler{Logger: logging.NewSlogLogger()}).MustHook(),
		Timeout:   5 * time.Second,
	})
	sup.Add(services.NewWebSocketHubService(w.hub))
	sup.Add(services.NewHTTPServerService(services.NewListenerServer(srv, ln), 5*time.Second))
	supDone := sup.ServeBackground(ctx)

	w.logger.Info().Str("kind", w.opts.Kind).Str("addr", ln.Addr().String()).Msg("Worker started")

	inputDone := make(chan error, 1)
	go func() { inputDone <- w.readCommands(ctx) }()

	runErr := w.loop(ctx, inputDone)
	cancel()
	if err := <-supDone; err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn().Err(err).Msg("Worker services stopped with error")
	}
	w.logger.Info().Msg("Worker stopped")
	return runErr
}

// readCommands decodes stdin until EOF. Malformed lines are skipped.
func (w *Worker) readCommands(ctx context.Context) error {
	dec := ipc.NewDecoder(w.opts.In)
	for {
		var cmd ipc.Command
		err := dec.Decode(&cmd)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, ipc.ErrLineTooLong):
			return err
		case err != nil:
			w.logger.Warn().Err(err).Msg("Ignoring malformed command line")
			continue
		}
		if !w.enqueue(ctx, cmd) {
			return nil
		}
	}
}

func (w *Worker) enqueue(ctx context.Context, cmd ipc.Command) bool {
	select {
	case w.commands <- cmd:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Worker) loop(ctx context.Context, inputDone <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-inputDone:
			if err != nil {
				return fmt.Errorf("read commands: %w", err)
			}
			w.logger.Info().Msg("Command input closed, stopping")
			return nil
		case cmd := <-w.commands:
			w.dispatch(ctx, cmd)
		}
	}
}
