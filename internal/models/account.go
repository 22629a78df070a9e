// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package models

import "time"

// Account kinds. Each kind is hosted by a driver registered under the same name.
const (
	KindWhatsApp = "whatsapp"
	KindTelegram = "telegram"
	KindFacebook = "facebook"
	KindTikTok   = "tiktok"
)

// AccountKinds lists every supported kind.
var AccountKinds = []string{KindWhatsApp, KindTelegram, KindFacebook, KindTikTok}

// IsValidKind reports whether kind is supported.
func IsValidKind(kind string) bool {
	for _, k := range AccountKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Account is one linked messaging identity. Port is 0 until the first
// worker spawn assigns one; after that it never changes.
type Account struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	DisplayName string    `json:"display_name"`
	OwnerCode   string    `json:"owner_code"`
	Port        int       `json:"port,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasPort reports whether a port has been assigned.
func (a *Account) HasPort() bool {
	return a.Port > 0
}
