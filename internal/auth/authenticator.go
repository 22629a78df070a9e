// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
)

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (*Principal, error)
	Name() string
}

// tokenQueryParam carries the token on WebSocket upgrades, where browsers
// cannot set an Authorization header.
const tokenQueryParam = "token"

// JWTAuthenticator accepts a bearer token, a "token" cookie or a "token"
// query parameter, in that order.
type JWTAuthenticator struct {
	manager     *JWTManager
	tokenCookie string
}

// NewJWTAuthenticator creates a JWT authenticator.
func NewJWTAuthenticator(manager *JWTManager) *JWTAuthenticator {
	return &JWTAuthenticator{manager: manager, tokenCookie: "token"}
}

// Authenticate implements Authenticator.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (*Principal, error) {
	tokenStr := a.extractToken(r)
	if tokenStr == "" {
		return nil, ErrNoCredentials
	}

	claims, err := a.manager.ValidateToken(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredentials
		}
		return nil, ErrInvalidCredentials
	}
	return &Principal{
		Subject:   claims.Subject,
		OwnerCode: claims.OwnerCode,
		Role:      claims.Role,
		Mode:      string(AuthModeJWT),
	}, nil
}

// Name returns the authenticator name.
func (a *JWTAuthenticator) Name() string {
	return string(AuthModeJWT)
}

func (a *JWTAuthenticator) extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token
			}
		}
	}
	if cookie, err := r.Cookie(a.tokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get(tokenQueryParam)
}

// HeaderAuthenticator trusts an owner code header. The "owner" query
// parameter is accepted for WebSocket upgrades.
type HeaderAuthenticator struct {
	header string
	role   string
}

// NewHeaderAuthenticator creates an authenticator for AUTH_MODE=none.
func NewHeaderAuthenticator(header, role string) *HeaderAuthenticator {
	if role == "" {
		role = RoleMember
	}
	return &HeaderAuthenticator{header: header, role: role}
}

// Authenticate implements Authenticator.
func (a *HeaderAuthenticator) Authenticate(r *http.Request) (*Principal, error) {
	owner := strings.TrimSpace(r.Header.Get(a.header))
	if owner == "" {
		owner = strings.TrimSpace(r.URL.Query().Get("owner"))
	}
	if owner == "" {
		return nil, ErrNoCredentials
	}
	return &Principal{
		Subject:   owner,
		OwnerCode: owner,
		Role:      a.role,
		Mode:      string(AuthModeNone),
	}, nil
}

// Name returns the authenticator name.
func (a *HeaderAuthenticator) Name() string {
	return string(AuthModeNone)
}

// NewAuthenticator builds the authenticator selected by cfg.Mode.
func NewAuthenticator(cfg config.AuthConfig) (Authenticator, error) {
	mode, err := ParseAuthMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	switch mode {
	case AuthModeJWT:
		manager, err := NewJWTManager(cfg)
		if err != nil {
			return nil, err
		}
		return NewJWTAuthenticator(manager), nil
	case AuthModeNone:
		return NewHeaderAuthenticator(cfg.OwnerHeader, cfg.DefaultRole), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", mode)
	}
}
