// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package config

import (
	"fmt"
	"strings"
)

const minJWTSecretLength = 32

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validatePorts(); err != nil {
		return err
	}
	if err := c.validateSupervisor(); err != nil {
		return err
	}
	if err := c.validateRelay(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateEventTap(); err != nil {
		return err
	}
	if c.Store.Path == "" {
		return fmt.Errorf("INBOX_DB_PATH must not be empty")
	}
	return validateLogging(c.Logging)
}

func (c *Config) validateServer() error {
	if !validPort(c.Server.Port) {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !c.Server.RateLimitDisabled && c.Server.RateLimitReqs <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.Server.RateLimitReqs)
	}
	return nil
}

func (c *Config) validatePorts() error {
	p := c.Ports
	if !validPort(p.PreferredStart) {
		return fmt.Errorf("PORT_PREFERRED_START must be between 1 and 65535, got %d", p.PreferredStart)
	}
	if !validPort(p.FallbackMin) || !validPort(p.FallbackMax) {
		return fmt.Errorf("port fallback range %d-%d is outside 1-65535", p.FallbackMin, p.FallbackMax)
	}
	if p.FallbackMin > p.FallbackMax {
		return fmt.Errorf("PORT_FALLBACK_MIN (%d) must not exceed PORT_FALLBACK_MAX (%d)", p.FallbackMin, p.FallbackMax)
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	s := c.Supervisor
	if s.RestartDelay <= 0 {
		return fmt.Errorf("WORKER_RESTART_DELAY must be positive, got %v", s.RestartDelay)
	}
	if s.RestoreStagger < 0 {
		return fmt.Errorf("WORKER_RESTORE_STAGGER must not be negative, got %v", s.RestoreStagger)
	}
	if s.StopGrace <= 0 {
		return fmt.Errorf("WORKER_STOP_GRACE must be positive, got %v", s.StopGrace)
	}
	if s.Quarantine.Enabled && s.Quarantine.MaxCrashes == 0 {
		return fmt.Errorf("WORKER_QUARANTINE_MAX_CRASHES must be at least 1 when quarantine is enabled")
	}
	return nil
}

func (c *Config) validateRelay() error {
	r := c.Relay
	if r.RequestTimeout <= 0 {
		return fmt.Errorf("RELAY_REQUEST_TIMEOUT must be positive, got %v", r.RequestTimeout)
	}
	if r.SendBuffer <= 0 {
		return fmt.Errorf("RELAY_SEND_BUFFER must be positive, got %d", r.SendBuffer)
	}
	if r.CommandRate < 0 || r.CommandBurst < 0 {
		return fmt.Errorf("relay command rate and burst must not be negative")
	}
	return nil
}

func (c *Config) validateAuth() error {
	switch c.Auth.Mode {
	case "none":
		if c.Auth.OwnerHeader == "" {
			return fmt.Errorf("AUTH_OWNER_HEADER is required when AUTH_MODE=none")
		}
	case "jwt":
		if len(c.Auth.JWTSecret) < minJWTSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d characters when AUTH_MODE=jwt", minJWTSecretLength)
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("JWT_TOKEN_TTL must be positive, got %v", c.Auth.TokenTTL)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be 'jwt' or 'none', got %q", c.Auth.Mode)
	}
	return nil
}

func (c *Config) validateEventTap() error {
	sp := c.EventTap.Spool
	if !c.EventTap.Enabled || !sp.Enabled {
		return nil
	}
	if sp.Path == "" {
		return fmt.Errorf("SPOOL_PATH must not be empty when the spool is enabled")
	}
	if sp.ReplayInterval <= 0 {
		return fmt.Errorf("SPOOL_REPLAY_INTERVAL must be positive, got %v", sp.ReplayInterval)
	}
	if sp.MaxAttempts <= 0 {
		return fmt.Errorf("SPOOL_MAX_ATTEMPTS must be positive, got %d", sp.MaxAttempts)
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	switch strings.ToLower(l.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", l.Level)
	}
	if l.Format != "json" && l.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'console', got %q", l.Format)
	}
	return nil
}

// Validate checks the worker environment.
func (w *WorkerConfig) Validate() error {
	if w.AccountID == "" {
		return fmt.Errorf("%s is required", EnvAccountID)
	}
	if w.Kind == "" {
		return fmt.Errorf("%s is required", EnvAccountKind)
	}
	if !validPort(w.Port) {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", EnvPort, w.Port)
	}
	if w.DriverStep <= 0 {
		return fmt.Errorf("INBOX_DRIVER_STEP must be positive, got %v", w.DriverStep)
	}
	return validateLogging(w.Logging)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
