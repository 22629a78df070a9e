// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/api"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/auth"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/authz"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/eventtap"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ports"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/relay"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/store"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/supervisor"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/supervisor/services"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/wal"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the master process: supervisor, relay and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

//nolint:gocyclo // sequential wiring of every component
func runServe(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("db_path", cfg.Store.Path).
		Str("auth_mode", cfg.Auth.Mode).
		Int("port_start", cfg.Ports.PreferredStart).
		Msg("Starting unified inbox")

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open account store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing account store")
		}
	}()

	allocator := ports.NewAllocator(st, ports.Config{
		PreferredStart: cfg.Ports.PreferredStart,
		FallbackMin:    cfg.Ports.FallbackMin,
		FallbackMax:    cfg.Ports.FallbackMax,
	})

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	if grace := cfg.Supervisor.StopGrace + 5*time.Second; grace > treeCfg.WorkerShutdownTimeout {
		treeCfg.WorkerShutdownTimeout = grace
	}
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	launcher := &supervisor.ExecLauncher{
		Binary: cfg.Supervisor.WorkerBinary,
		Args:   cfg.Supervisor.WorkerArgs,
		Env:    workerEnv(cfg),
	}

	// Worker events reach the relay through this indirection; the relay
	// needs the supervisor to route commands. No event is delivered before
	// the tree starts, by which time rl is set.
	var rl *relay.Relay
	accounts, err := supervisor.NewAccountSupervisor(tree, st, allocator, launcher,
		supervisor.EventHandlerFunc(func(ev ipc.Event) { rl.OnWorkerEvent(ev) }),
		supervisor.ConfigFrom(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("failed to create account supervisor: %w", err)
	}

	tap, closeTap := initEventTap(cfg, tree)
	defer closeTap()
	rl = relay.New(accounts, tap, relay.ConfigFrom(cfg.Relay))
	defer rl.Close()

	enforcer, err := authz.NewEnforcer(authz.ConfigFrom(cfg.Authz))
	if err != nil {
		return fmt.Errorf("failed to create authorization enforcer: %w", err)
	}
	defer enforcer.Close()

	authn, err := auth.NewAuthenticator(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}
	warnInsecure(cfg)

	handler := api.NewHandler(st, accounts, rl, enforcer, cfg)
	router := api.NewRouter(handler, authn, api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(cfg.Server, cfg.Auth.OwnerHeader)))

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router.Setup(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree.AddDataService(accounts.RestoreService())
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown requested, stopping workers")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	accounts.Shutdown()

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Unified inbox stopped")
	return nil
}

// initEventTap adds the bus and tap to the messaging layer when enabled.
// The tap is nil when disabled or when the binary was built without NATS.
// The returned func closes the spool and must run after the tree stops.
func initEventTap(cfg *config.Config, tree *supervisor.SupervisorTree) (relay.Tap, func()) {
	noop := func() {}
	if !cfg.EventTap.Enabled {
		logging.Info().Msg("Event tap disabled (EVENTTAP_ENABLED=false)")
		return nil, noop
	}

	bus, err := eventtap.NewBus(cfg.EventTap)
	if err != nil {
		logging.Warn().Err(err).Msg("Event tap unavailable, continuing without it")
		return nil, noop
	}
	tap := eventtap.New(bus, eventtap.ConfigFrom(cfg.EventTap))

	closeSpool := noop
	if cfg.EventTap.Spool.Enabled {
		sp, err := wal.Open(wal.ConfigFrom(cfg.EventTap.Spool))
		if err != nil {
			logging.Warn().Err(err).Msg("Event spool unavailable, failed publishes will be dropped")
		} else {
			tap.SetSpool(sp)
			closeSpool = func() {
				if err := sp.Close(); err != nil {
					logging.Error().Err(err).Msg("Error closing event spool")
				}
			}
		}
	}

	tree.AddMessagingService(services.NewBusService(bus))
	tree.AddMessagingService(tap)
	logging.Info().
		Str("url", cfg.EventTap.URL).
		Bool("embedded", cfg.EventTap.EmbeddedServer).
		Str("topic_prefix", cfg.EventTap.TopicPrefix).
		Bool("spool", cfg.EventTap.Spool.Enabled).
		Msg("Event tap added to supervisor tree")
	return tap, closeSpool
}

// workerEnv is added to every worker's environment. The local face gets
// the explicit CORS origins only: a wildcard would let any web page drive
// the account.
func workerEnv(cfg *config.Config) []string {
	origins := make([]string, 0, len(cfg.Server.CORSOrigins))
	for _, o := range cfg.Server.CORSOrigins {
		if o != "*" {
			origins = append(origins, o)
		}
	}
	return []string{
		config.EnvLogLevel + "=" + cfg.Logging.Level,
		config.EnvLogFormat + "=json",
		config.EnvWorkerOrigins + "=" + strings.Join(origins, ","),
		config.EnvWorkerToken + "=" + cfg.Supervisor.WorkerToken,
	}
}

func warnInsecure(cfg *config.Config) {
	if cfg.Auth.Mode == auth.AuthModeNone.String() {
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  SECURITY WARNING: Authentication is DISABLED (AUTH_MODE=none)")
		logging.Warn().Msgf("  Any caller can act as any owner by setting %s.", cfg.Auth.OwnerHeader)
		logging.Warn().Msg("  Use only on isolated networks or for local development.")
		logging.Warn().Msg("============================================================")
	}
	for _, origin := range cfg.Server.CORSOrigins {
		if origin == "*" && cfg.Auth.Mode != auth.AuthModeNone.String() {
			logging.Warn().Msg("CORS allows any origin (CORS_ORIGINS=*); set explicit origins in production")
			break
		}
	}
	if cfg.Server.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
}
