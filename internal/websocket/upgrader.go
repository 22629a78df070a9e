// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
)

// NewUpgrader returns an upgrader that accepts the given origins. "*"
// accepts any origin, including requests without an Origin header.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      originChecker(allowedOrigins),
	}
}

// NewLocalUpgrader is for loopback faces used by non-browser clients. A
// request without an Origin header is accepted; a browser origin must be
// listed. With no origins listed every browser is rejected.
func NewLocalUpgrader(allowedOrigins []string) websocket.Upgrader {
	u := NewUpgrader(allowedOrigins)
	check := u.CheckOrigin
	u.CheckOrigin = func(r *http.Request) bool {
		if r.Header.Get("Origin") == "" {
			return true
		}
		return check(r)
	}
	return u
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		for _, a := range allowed {
			if a == "*" {
				return true
			}
		}
		if origin == "" {
			logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
			return false
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) {
				return true
			}
		}
		logging.Warn().Str("origin", sanitizeOrigin(origin)).Msg("WebSocket connection rejected from unauthorized origin")
		return false
	}
}

// sanitizeOrigin keeps log lines single-line and bounded.
func sanitizeOrigin(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
