// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package config loads master and worker configuration.
//
// The master process uses layered loading (defaults, optional YAML file,
// environment). Worker processes are configured only through the
// environment injected by the supervisor at spawn time.
package config

import "time"

// Config is the master process configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Store      StoreConfig      `koanf:"store"`
	Ports      PortsConfig      `koanf:"ports"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Relay      RelayConfig      `koanf:"relay"`
	Auth       AuthConfig       `koanf:"auth"`
	Authz      AuthzConfig      `koanf:"authz"`
	EventTap   EventTapConfig   `koanf:"eventtap"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// StoreConfig locates the SQLite account database.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// PortsConfig controls worker port assignment.
type PortsConfig struct {
	// PreferredStart is the lowest port handed to a worker.
	PreferredStart int `koanf:"preferred_start"`

	// FallbackMin and FallbackMax bound the random range used when
	// persisted assignments cannot be read.
	FallbackMin int `koanf:"fallback_min"`
	FallbackMax int `koanf:"fallback_max"`
}

// SupervisorConfig controls worker process lifecycle.
type SupervisorConfig struct {
	// WorkerBinary is the executable launched per account. Empty means
	// the running executable, invoked with WorkerArgs.
	WorkerBinary string   `koanf:"worker_binary"`
	WorkerArgs   []string `koanf:"worker_args"`

	// WorkerToken, when set, is required by every worker's local /ws.
	WorkerToken string `koanf:"worker_token"`

	RestartDelay   time.Duration    `koanf:"restart_delay"`
	RestoreStagger time.Duration    `koanf:"restore_stagger"`
	StopGrace      time.Duration    `koanf:"stop_grace"`
	Quarantine     QuarantineConfig `koanf:"quarantine"`
}

// QuarantineConfig configures the optional restart circuit breaker.
// Disabled, a crashing account is restarted forever.
type QuarantineConfig struct {
	Enabled    bool          `koanf:"enabled"`
	MaxCrashes uint32        `koanf:"max_crashes"`
	Window     time.Duration `koanf:"window"`
	Cooldown   time.Duration `koanf:"cooldown"`
}

// RelayConfig controls room fan-out and request correlation.
type RelayConfig struct {
	RequestTimeout      time.Duration `koanf:"request_timeout"`
	StateCoalesceWindow time.Duration `koanf:"state_coalesce_window"`
	SendBuffer          int           `koanf:"send_buffer"`
	CommandRate         float64       `koanf:"command_rate"`
	CommandBurst        int           `koanf:"command_burst"`
}

// AuthConfig controls session authentication.
type AuthConfig struct {
	// Mode is "jwt" or "none". With "none" the owner code is taken from
	// OwnerHeader and every caller gets DefaultRole.
	Mode        string        `koanf:"mode"`
	JWTSecret   string        `koanf:"jwt_secret"`
	Issuer      string        `koanf:"issuer"`
	TokenTTL    time.Duration `koanf:"token_ttl"`
	OwnerHeader string        `koanf:"owner_header"`
	DefaultRole string        `koanf:"default_role"`
}

// AuthzConfig controls the casbin enforcer.
type AuthzConfig struct {
	// PolicyPath optionally replaces the embedded policy.
	PolicyPath     string        `koanf:"policy_path"`
	ReloadInterval time.Duration `koanf:"reload_interval"`
	CacheEnabled   bool          `koanf:"cache_enabled"`
	CacheTTL       time.Duration `koanf:"cache_ttl"`
}

// EventTapConfig mirrors worker events onto a message bus.
type EventTapConfig struct {
	Enabled          bool          `koanf:"enabled"`
	URL              string        `koanf:"url"`
	TopicPrefix      string        `koanf:"topic_prefix"`
	EmbeddedServer   bool          `koanf:"embedded_server"`
	StoreDir         string        `koanf:"store_dir"`
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
	Spool            SpoolConfig   `koanf:"spool"`
}

// SpoolConfig keeps events that could not be published in a local
// BadgerDB spool and replays them in order.
type SpoolConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Path           string        `koanf:"path"`
	SyncWrites     bool          `koanf:"sync_writes"`
	EntryTTL       time.Duration `koanf:"entry_ttl"`
	MaxAttempts    int           `koanf:"max_attempts"`
	ReplayInterval time.Duration `koanf:"replay_interval"`
	ReplayBatch    int           `koanf:"replay_batch"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// WorkerConfig is read by the worker process from its environment.
type WorkerConfig struct {
	AccountID  string        `koanf:"account_id"`
	Kind       string        `koanf:"account_kind"`
	Port       int           `koanf:"port"`
	Host       string        `koanf:"host"`
	DriverStep time.Duration `koanf:"driver_step"`

	// AllowedOrigins are the browser origins the local /ws accepts.
	AllowedOrigins []string `koanf:"allowed_origins"`
	Token          string   `koanf:"token"`

	Logging LoggingConfig `koanf:"logging"`
}
