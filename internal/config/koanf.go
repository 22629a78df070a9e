// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"inbox.yaml",
	"inbox.yml",
	"/etc/inbox/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Store: StoreConfig{
			Path: "data/inbox.db",
		},
		Ports: PortsConfig{
			PreferredStart: 3006,
			FallbackMin:    40000,
			FallbackMax:    49999,
		},
		Supervisor: SupervisorConfig{
			WorkerArgs:     []string{"worker"},
			RestartDelay:   5 * time.Second,
			RestoreStagger: 2 * time.Second,
			StopGrace:      5 * time.Second,
			Quarantine: QuarantineConfig{
				Enabled:    false,
				MaxCrashes: 5,
				Window:     10 * time.Minute,
				Cooldown:   5 * time.Minute,
			},
		},
		Relay: RelayConfig{
			RequestTimeout:      30 * time.Second,
			StateCoalesceWindow: 500 * time.Millisecond,
			SendBuffer:          256,
			CommandRate:         20,
			CommandBurst:        40,
		},
		Auth: AuthConfig{
			Mode:        "jwt",
			Issuer:      "inbox",
			TokenTTL:    24 * time.Hour,
			OwnerHeader: "X-Owner-Code",
			DefaultRole: "member",
		},
		Authz: AuthzConfig{
			ReloadInterval: 30 * time.Second,
			CacheEnabled:   true,
			CacheTTL:       5 * time.Minute,
		},
		EventTap: EventTapConfig{
			Enabled:          false,
			URL:              "nats://127.0.0.1:4222",
			TopicPrefix:      "inbox.events",
			StoreDir:         "data/nats",
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
			Spool: SpoolConfig{
				Path:           "data/spool",
				SyncWrites:     true,
				EntryTTL:       7 * 24 * time.Hour,
				MaxAttempts:    100,
				ReplayInterval: 10 * time.Second,
				ReplayBatch:    256,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		Host:       "127.0.0.1",
		DriverStep: time.Second,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the master configuration: defaults, then the optional YAML
// file, then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k, sliceConfigPaths); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWorker reads the worker configuration from the process environment.
func LoadWorker() (*WorkerConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultWorkerConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(env.Provider("", ".", workerEnvTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := processSliceFields(k, []string{"allowed_origins"}); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &WorkerConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal worker configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("worker configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
	"supervisor.worker_args",
}

// processSliceFields splits comma-separated env values for slice fields.
// YAML lists are already slices and are left alone.
func processSliceFields(k *koanf.Koanf, paths []string) error {
	for _, path := range paths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_reqs",
	"rate_limit_window":     "server.rate_limit_window",
	"disable_rate_limit":    "server.rate_limit_disabled",

	"inbox_db_path": "store.path",

	"port_preferred_start": "ports.preferred_start",
	"port_fallback_min":    "ports.fallback_min",
	"port_fallback_max":    "ports.fallback_max",

	"worker_binary":                 "supervisor.worker_binary",
	"worker_args":                   "supervisor.worker_args",
	"worker_restart_delay":          "supervisor.restart_delay",
	"worker_restore_stagger":        "supervisor.restore_stagger",
	"worker_stop_grace":             "supervisor.stop_grace",
	"worker_token":                  "supervisor.worker_token",
	"worker_quarantine_enabled":     "supervisor.quarantine.enabled",
	"worker_quarantine_max_crashes": "supervisor.quarantine.max_crashes",
	"worker_quarantine_window":      "supervisor.quarantine.window",
	"worker_quarantine_cooldown":    "supervisor.quarantine.cooldown",

	"relay_request_timeout":       "relay.request_timeout",
	"relay_state_coalesce_window": "relay.state_coalesce_window",
	"relay_send_buffer":           "relay.send_buffer",
	"relay_command_rate":          "relay.command_rate",
	"relay_command_burst":         "relay.command_burst",

	"auth_mode":         "auth.mode",
	"jwt_secret":        "auth.jwt_secret",
	"jwt_issuer":        "auth.issuer",
	"jwt_token_ttl":     "auth.token_ttl",
	"auth_owner_header": "auth.owner_header",
	"auth_default_role": "auth.default_role",

	"authz_policy_path":     "authz.policy_path",
	"authz_reload_interval": "authz.reload_interval",
	"authz_cache_enabled":   "authz.cache_enabled",
	"authz_cache_ttl":       "authz.cache_ttl",

	"eventtap_enabled":           "eventtap.enabled",
	"nats_url":                   "eventtap.url",
	"eventtap_topic_prefix":      "eventtap.topic_prefix",
	"nats_embedded":              "eventtap.embedded_server",
	"nats_store_dir":             "eventtap.store_dir",
	"eventtap_breaker_threshold": "eventtap.breaker_threshold",
	"eventtap_breaker_timeout":   "eventtap.breaker_timeout",

	"spool_enabled":         "eventtap.spool.enabled",
	"spool_path":            "eventtap.spool.path",
	"spool_sync_writes":     "eventtap.spool.sync_writes",
	"spool_entry_ttl":       "eventtap.spool.entry_ttl",
	"spool_max_attempts":    "eventtap.spool.max_attempts",
	"spool_replay_interval": "eventtap.spool.replay_interval",
	"spool_replay_batch":    "eventtap.spool.replay_batch",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps known environment variables to config keys.
// Unknown variables return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Worker environment keys set by the supervisor at spawn time.
const (
	EnvAccountID   = "ACCOUNT_ID"
	EnvAccountKind = "ACCOUNT_KIND"
	EnvPort        = "PORT"
	EnvLogLevel    = "LOG_LEVEL"
	EnvLogFormat   = "LOG_FORMAT"

	EnvWorkerToken   = "WORKER_TOKEN"
	EnvWorkerOrigins = "WORKER_ALLOWED_ORIGINS"
)

var workerEnvMappings = map[string]string{
	"account_id":             "account_id",
	"account_kind":           "account_kind",
	"port":                   "port",
	"worker_host":            "host",
	"inbox_driver_step":      "driver_step",
	"worker_allowed_origins": "allowed_origins",
	"worker_token":           "token",
	"log_level":              "logging.level",
	"log_format":             "logging.format",
	"log_caller":             "logging.caller",
}

func workerEnvTransformFunc(key string) string {
	return workerEnvMappings[strings.ToLower(key)]
}
