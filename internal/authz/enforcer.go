// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package authz decides whether a principal may act on an account.
//
// Decisions come from a casbin RBAC model keyed on (role, subject owner,
// resource owner, action). Non-admin roles are confined to accounts whose
// owner code matches their own; admins may act on any owner.
package authz

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/auth"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// ErrForbidden is returned by Authorize when the policy denies the action.
var ErrForbidden = errors.New("forbidden")

// ErrNoAdapter is returned by LoadPolicy when the embedded policy is in use.
var ErrNoAdapter = errors.New("no policy adapter configured; using embedded policy")

// Config holds enforcer settings.
type Config struct {
	// PolicyPath replaces the embedded policy when set and present.
	PolicyPath string

	// ReloadInterval enables periodic reload of PolicyPath. Zero disables.
	ReloadInterval time.Duration

	CacheEnabled bool
	CacheTTL     time.Duration
}

// DefaultConfig returns the embedded policy with caching on.
func DefaultConfig() Config {
	return Config{
		CacheEnabled: true,
		CacheTTL:     5 * time.Minute,
	}
}

// ConfigFrom maps the master configuration section.
func ConfigFrom(c config.AuthzConfig) Config {
	return Config{
		PolicyPath:     c.PolicyPath,
		ReloadInterval: c.ReloadInterval,
		CacheEnabled:   c.CacheEnabled,
		CacheTTL:       c.CacheTTL,
	}
}

// Enforcer wraps a casbin SyncedEnforcer with a decision cache.
type Enforcer struct {
	config   Config
	enforcer *casbin.SyncedEnforcer
	cache    *enforcementCache
}

// NewEnforcer loads the model and policy.
func NewEnforcer(cfg Config) (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	usingFile := cfg.PolicyPath != "" && fileExists(cfg.PolicyPath)
	if usingFile {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		if cfg.PolicyPath != "" {
			logging.Warn().Str("path", cfg.PolicyPath).Msg("Policy file not found, using embedded policy")
		}
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	if !usingFile {
		cfg.PolicyPath = ""
	}

	if cfg.ReloadInterval > 0 && cfg.PolicyPath != "" {
		enforcer.StartAutoLoadPolicy(cfg.ReloadInterval)
	}

	e := &Enforcer{config: cfg, enforcer: enforcer}
	if cfg.CacheEnabled {
		e.cache = newEnforcementCache(cfg.CacheTTL)
	}
	return e, nil
}

// loadEmbeddedPolicy parses policy CSV lines of the form "p, role, act"
// and "g, child, parent".
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) < 3 {
			continue
		}

		switch parts[0] {
		case "p":
			if _, err := enforcer.AddPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case "g":
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		}
	}
	return nil
}

// Enforce reports whether role, acting as subjectOwner, may perform action
// on a resource belonging to resourceOwner.
func (e *Enforcer) Enforce(role, subjectOwner, resourceOwner, action string) (bool, error) {
	start := time.Now()
	if e.cache != nil {
		if allowed, ok := e.cache.get(role, subjectOwner, resourceOwner, action); ok {
			RecordDecision(role, action, allowed, true, time.Since(start))
			return allowed, nil
		}
	}

	allowed, err := e.enforcer.Enforce(role, subjectOwner, resourceOwner, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}

	if e.cache != nil {
		e.cache.set(role, subjectOwner, resourceOwner, action, allowed)
	}
	RecordDecision(role, action, allowed, false, time.Since(start))
	return allowed, nil
}

// Authorize returns ErrForbidden unless p may perform action on resources
// owned by ownerCode. An empty ownerCode means the caller's own scope.
func (e *Enforcer) Authorize(p *auth.Principal, ownerCode, action string) error {
	if p == nil {
		return ErrForbidden
	}
	if ownerCode == "" {
		ownerCode = p.OwnerCode
	}
	allowed, err := e.Enforce(p.Role, p.OwnerCode, ownerCode, action)
	if err != nil {
		return err
	}
	if !allowed {
		logging.Debug().
			Str("role", p.Role).
			Str("owner_code", p.OwnerCode).
			Str("resource_owner", ownerCode).
			Str("action", action).
			Msg("Authorization denied")
		return fmt.Errorf("%w: %s not permitted for role %q", ErrForbidden, action, p.Role)
	}
	return nil
}

// RolesFor returns the roles a role inherits, including itself.
func (e *Enforcer) RolesFor(role string) []string {
	//nolint:errcheck // only fails when the role manager is nil
	inherited, _ := e.enforcer.GetImplicitRolesForUser(role)
	return append([]string{role}, inherited...)
}

// LoadPolicy reloads the policy file and clears cached decisions.
func (e *Enforcer) LoadPolicy() error {
	if e.config.PolicyPath == "" {
		return ErrNoAdapter
	}
	if err := e.enforcer.LoadPolicy(); err != nil {
		return err
	}
	if e.cache != nil {
		e.cache.clear()
	}
	return nil
}

// Close stops policy reload and the cache janitor.
func (e *Enforcer) Close() {
	e.enforcer.StopAutoLoadPolicy()
	if e.cache != nil {
		e.cache.stop()
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
