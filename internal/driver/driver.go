// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package driver defines the account driver a worker runs: the adapter
// between one messaging account and the worker's event stream.
//
// Drivers report progress by calling an EventSink. They never write to the
// worker's output channels themselves.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// State is the account link state.
type State string

const (
	StateInitializing     State = "INITIALIZING"
	StateQRReady          State = "QR_READY"
	StateAuthenticated    State = "AUTHENTICATED"
	StatePasswordRequired State = "PASSWORD_REQUIRED"
	StateConnected        State = "CONNECTED"
	StateDisconnected     State = "DISCONNECTED"
)

var (
	// ErrNotConnected is returned by operations that need a linked account.
	ErrNotConnected = errors.New("account not connected")

	// ErrUnknownKind is returned by New for an unregistered account kind.
	ErrUnknownKind = errors.New("no driver registered for account kind")

	// ErrPasswordNotRequired is returned when a password arrives outside
	// the password step.
	ErrPasswordNotRequired = errors.New("password not requested")

	// ErrInvalidPassword rejects an empty or wrong password.
	ErrInvalidPassword = errors.New("invalid password")

	ErrChatNotFound   = errors.New("chat not found")
	ErrMediaNotFound  = errors.New("media not found")
	ErrAlreadyStarted = errors.New("driver already started")
)

// EventSink receives driver events. Payloads are JSON-encodable.
type EventSink interface {
	Emit(event string, payload any)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(event string, payload any)

// Emit calls f.
func (f EventSinkFunc) Emit(event string, payload any) { f(event, payload) }

// Message is one chat message.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	From      string    `json:"from"`
	Body      string    `json:"body"`
	FromMe    bool      `json:"from_me"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status,omitempty"`
	MediaID   string    `json:"media_id,omitempty"`
}

// Chat is one conversation.
type Chat struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Unread      int      `json:"unread"`
	LastMessage *Message `json:"last_message,omitempty"`
}

// StatusPayload is the payload of a status event.
type StatusPayload struct {
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

// QRPayload carries a login challenge.
type QRPayload struct {
	Code    string `json:"qr"`
	Attempt int    `json:"attempt"`
}

// Snapshot is the full account state sent to an active viewer.
type Snapshot struct {
	State State  `json:"state"`
	QR    string `json:"qr,omitempty"`
	Chats []Chat `json:"chats"`
}

// Summary is the lightweight state sent to a passive viewer.
type Summary struct {
	State  State `json:"state"`
	Chats  int   `json:"chats"`
	Unread int   `json:"unread"`
}

// SendRequest is the payload of send_message.
type SendRequest struct {
	ChatID string `json:"chat_id"`
	Body   string `json:"body"`
}

// SendResult acknowledges an accepted outgoing message.
type SendResult struct {
	MessageID string    `json:"message_id"`
	ChatID    string    `json:"chat_id"`
	Timestamp time.Time `json:"timestamp"`
}

// AckPayload is the payload of message_ack.
type AckPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	Status    string `json:"status"`
}

// HistoryRequest is the payload of get_history.
type HistoryRequest struct {
	ChatID string `json:"chat_id"`
	Limit  int    `json:"limit,omitempty"`
}

// HistoryPayload answers get_history.
type HistoryPayload struct {
	ChatID   string    `json:"chat_id"`
	Messages []Message `json:"messages"`
}

// Media is downloaded attachment content.
type Media struct {
	ID       string `json:"media_id"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// Driver links one messaging account.
type Driver interface {
	// Start begins linking in the background and returns. Progress is
	// reported to sink until ctx is canceled or Stop is called.
	Start(ctx context.Context, sink EventSink) error
	State() State
	Snapshot() Snapshot
	Summary() Summary
	SendMessage(ctx context.Context, req SendRequest) (SendResult, error)
	MarkRead(ctx context.Context, chatID string) error
	History(ctx context.Context, req HistoryRequest) ([]Message, error)
	Sync(ctx context.Context) error
	SubmitPassword(ctx context.Context, password string) error
	DownloadMedia(ctx context.Context, mediaID string) (Media, error)
	Stop() error
}

// Options configures a driver instance.
type Options struct {
	AccountID string
	Kind      string

	// Step paces simulated progress.
	Step time.Duration
}

// Factory builds a driver.
type Factory func(opts Options) (Driver, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register installs f for kind, replacing any previous factory.
func Register(kind string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = f
}

// New builds the driver registered for opts.Kind.
func New(opts Options) (Driver, error) {
	registryMu.RLock()
	f, ok := registry[opts.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
	}
	return f(opts)
}

// Kinds lists registered kinds in sorted order.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
