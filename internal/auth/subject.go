// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package auth authenticates API and relay sessions.
//
// A session is identified by a Principal: the owner code whose accounts
// it may see and a role used for authorization. In "jwt" mode the
// principal comes from a signed token; in "none" mode the owner code is
// read from a request header and every caller gets the default role.
package auth

import (
	"context"
	"errors"
)

// AuthMode is the authentication strategy.
type AuthMode string

const (
	// AuthModeNone trusts the owner header.
	AuthModeNone AuthMode = "none"

	// AuthModeJWT requires a bearer token.
	AuthModeJWT AuthMode = "jwt"
)

// ParseAuthMode converts a string to AuthMode.
func ParseAuthMode(s string) (AuthMode, error) {
	switch s {
	case "none", "":
		return AuthModeNone, nil
	case "jwt":
		return AuthModeJWT, nil
	default:
		return "", errors.New("invalid auth mode: " + s)
	}
}

// String returns the string representation of AuthMode.
func (m AuthMode) String() string {
	return string(m)
}

// Roles known to the embedded policy.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// IsValidRole reports whether role is one of the built-in roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")
)

// Principal is an authenticated caller.
type Principal struct {
	// Subject identifies the caller in logs.
	Subject   string `json:"sub"`
	OwnerCode string `json:"owner_code"`
	Role      string `json:"role"`
	Mode      string `json:"mode"`
}

// IsAdmin reports whether the principal may act on every owner's accounts.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

type contextKey string

const principalKey contextKey = "auth_principal"

// ContextWithPrincipal stores p in ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by the middleware, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}
