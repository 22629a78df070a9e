// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
)

// Event names the simulated driver emits. They match the worker's wire
// vocabulary.
const (
	eventStatus     = "status"
	eventQR         = "qr"
	eventChats      = "chats"
	eventMessageAck = "message_ack"
)

const (
	defaultStep   = time.Second
	simChatCount  = 3
	simQRAttempts = 2
)

//nolint:gochecknoinits // the simulated driver serves every kind until real drivers exist
func init() {
	for _, kind := range models.AccountKinds {
		Register(kind, NewSim)
	}
}

// Sim is an in-memory driver that walks the link state machine on a
// timer. Telegram accounts stop at PASSWORD_REQUIRED until a password
// is submitted.
type Sim struct {
	opts            Options
	requirePassword bool

	mu      sync.RWMutex
	state   State
	qr      string
	chats   map[string]*Chat
	history map[string][]Message
	media   map[string]Media
	sink    EventSink
	started bool

	password chan string
	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSim is the Factory for the simulated driver.
func NewSim(opts Options) (Driver, error) {
	if opts.Step <= 0 {
		opts.Step = defaultStep
	}
	s := &Sim{
		opts:            opts,
		requirePassword: opts.Kind == models.KindTelegram,
		state:           StateInitializing,
		chats:           make(map[string]*Chat),
		history:         make(map[string][]Message),
		media:           make(map[string]Media),
		password:        make(chan string, 1),
	}
	s.seed()
	return s, nil
}

func (s *Sim) seed() {
	base := time.Unix(1_700_000_000, 0).UTC()
	for i := 1; i <= simChatCount; i++ {
		chatID := fmt.Sprintf("chat-%d", i)
		mediaID := fmt.Sprintf("media-%s", chatID)
		msg := Message{
			ID:        fmt.Sprintf("%s-msg-1", chatID),
			ChatID:    chatID,
			From:      fmt.Sprintf("contact-%d", i),
			Body:      fmt.Sprintf("Hello from contact %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			MediaID:   mediaID,
		}
		s.chats[chatID] = &Chat{ID: chatID, Name: fmt.Sprintf("Contact %d", i), Unread: i, LastMessage: &msg}
		s.history[chatID] = []Message{msg}
		s.media[mediaID] = Media{ID: mediaID, MimeType: "text/plain", Data: []byte("attachment for " + chatID)}
	}
}

// Start begins the link sequence.
func (s *Sim) Start(ctx context.Context, sink EventSink) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.sink = sink
	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx, s.cancel = runCtx, cancel
	s.mu.Unlock()

	s.emit(eventStatus, StatusPayload{State: StateInitializing})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(runCtx)
	}()
	return nil
}

func (s *Sim) run(ctx context.Context) {
	for attempt := 1; attempt <= simQRAttempts; attempt++ {
		if !s.sleep(ctx) {
			return
		}
		code := fmt.Sprintf("sim:%s:%s:%d", s.opts.Kind, s.opts.AccountID, attempt)
		s.mu.Lock()
		s.qr = code
		s.mu.Unlock()
		if attempt == 1 {
			s.setState(StateQRReady)
		}
		s.emit(eventQR, QRPayload{Code: code, Attempt: attempt})
	}

	if !s.sleep(ctx) {
		return
	}
	s.mu.Lock()
	s.qr = ""
	s.mu.Unlock()
	s.setState(StateAuthenticated)

	if s.requirePassword {
		if !s.sleep(ctx) {
			return
		}
		s.setState(StatePasswordRequired)
		select {
		case <-s.password:
		case <-ctx.Done():
			return
		}
	}

	if !s.sleep(ctx) {
		return
	}
	s.setState(StateConnected)
	s.emit(eventChats, s.chatList())
}

func (s *Sim) sleep(ctx context.Context) bool {
	t := time.NewTimer(s.opts.Step)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Sim) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.emit(eventStatus, StatusPayload{State: st})
}

func (s *Sim) emit(event string, payload any) {
	s.mu.RLock()
	sink := s.sink
	s.mu.RUnlock()
	if sink != nil {
		sink.Emit(event, payload)
	}
}

// State returns the current link state.
func (s *Sim) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns the full state.
func (s *Sim) Snapshot() Snapshot {
	s.mu.RLock()
	st, qr := s.state, s.qr
	s.mu.RUnlock()
	snap := Snapshot{State: st, QR: qr, Chats: []Chat{}}
	if st == StateConnected {
		snap.Chats = s.chatList()
	}
	return snap
}

// Summary returns counts only.
func (s *Sim) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := Summary{State: s.state}
	if s.state != StateConnected {
		return sum
	}
	sum.Chats = len(s.chats)
	for _, c := range s.chats {
		sum.Unread += c.Unread
	}
	return sum
}

func (s *Sim) chatList() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chat, 0, len(s.chats))
	for _, c := range s.chats {
		cp := *c
		if c.LastMessage != nil {
			lm := *c.LastMessage
			cp.LastMessage = &lm
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Sim) requireConnected() error {
	if s.state != StateConnected {
		return ErrNotConnected
	}
	return nil
}

// SendMessage accepts an outgoing message and acknowledges delivery one
// step later with a message_ack event.
func (s *Sim) SendMessage(_ context.Context, req SendRequest) (SendResult, error) {
	s.mu.Lock()
	if err := s.requireConnected(); err != nil {
		s.mu.Unlock()
		return SendResult{}, err
	}
	chat, ok := s.chats[req.ChatID]
	if !ok {
		s.mu.Unlock()
		return SendResult{}, fmt.Errorf("%w: %s", ErrChatNotFound, req.ChatID)
	}
	msg := Message{
		ID:        uuid.NewString(),
		ChatID:    req.ChatID,
		From:      s.opts.AccountID,
		Body:      req.Body,
		FromMe:    true,
		Timestamp: time.Now().UTC(),
		Status:    "sent",
	}
	s.history[req.ChatID] = append(s.history[req.ChatID], msg)
	chat.LastMessage = &msg
	runCtx := s.runCtx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if !s.sleep(runCtx) {
			return
		}
		s.emit(eventMessageAck, AckPayload{MessageID: msg.ID, ChatID: msg.ChatID, Status: "delivered"})
	}()

	return SendResult{MessageID: msg.ID, ChatID: msg.ChatID, Timestamp: msg.Timestamp}, nil
}

// MarkRead clears a chat's unread count.
func (s *Sim) MarkRead(_ context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected(); err != nil {
		return err
	}
	chat, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	chat.Unread = 0
	return nil
}

// History returns up to req.Limit of the newest messages, oldest first.
func (s *Sim) History(_ context.Context, req HistoryRequest) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	msgs, ok := s.history[req.ChatID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, req.ChatID)
	}
	if req.Limit > 0 && len(msgs) > req.Limit {
		msgs = msgs[len(msgs)-req.Limit:]
	}
	return append([]Message(nil), msgs...), nil
}

// Sync re-emits the chat list.
func (s *Sim) Sync(_ context.Context) error {
	s.mu.RLock()
	err := s.requireConnected()
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	s.emit(eventChats, s.chatList())
	return nil
}

// SubmitPassword completes the password step.
func (s *Sim) SubmitPassword(_ context.Context, password string) error {
	s.mu.RLock()
	st := s.state
	s.mu.RUnlock()
	if st != StatePasswordRequired {
		return ErrPasswordNotRequired
	}
	if password == "" {
		return ErrInvalidPassword
	}
	select {
	case s.password <- password:
	default:
		// A password is already queued.
	}
	return nil
}

// DownloadMedia returns stored attachment content.
func (s *Sim) DownloadMedia(_ context.Context, mediaID string) (Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireConnected(); err != nil {
		return Media{}, err
	}
	m, ok := s.media[mediaID]
	if !ok {
		return Media{}, fmt.Errorf("%w: %s", ErrMediaNotFound, mediaID)
	}
	return m, nil
}

// Stop cancels background work and waits for it.
func (s *Sim) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.state = StateDisconnected
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}
