// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/auth"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/authz"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/relay"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/store"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/websocket"
)

const ownerLookupTimeout = 5 * time.Second

// frameData is the data of join, leave and command frames.
type frameData struct {
	AccountID     string          `json:"account_id"`
	Mode          string          `json:"mode,omitempty"`
	Command       string          `json:"command,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ReplyExpected bool            `json:"reply_expected,omitempty"`
}

// joinedData answers a join. WorkerRunning false means the room was
// joined but the account is reconnecting.
type joinedData struct {
	AccountID     string `json:"account_id"`
	Mode          string `json:"mode"`
	WorkerRunning bool   `json:"worker_running"`
}

// WebSocket upgrades an authenticated request into a relay session.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		respondError(w, r, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sess := &wsSession{h: h, principal: p}
	sess.client = websocket.NewClient(conn, sess, h.sendBuffer)
	sess.id = "ws-" + strconv.FormatUint(sess.client.ID(), 10)
	sess.logger = logging.WithComponent("relay-session").With().
		Str("session_id", sess.id).
		Str("owner_code", p.OwnerCode).
		Logger()
	sess.client.Start()

	sess.logger.Info().Msg("Relay session opened")
}

// wsSession adapts a websocket.Client to relay.Session and handles its
// inbound frames.
type wsSession struct {
	h         *Handler
	principal *auth.Principal
	client    *websocket.Client
	id        string
	logger    zerolog.Logger
}

func (s *wsSession) ID() string                      { return s.id }
func (s *wsSession) Send(msg websocket.Message) bool { return s.client.Send(msg) }
func (s *wsSession) Close()                          { s.client.Close() }

// HandleClose drops the session's rooms and fails its pending requests.
func (s *wsSession) HandleClose(_ *websocket.Client) {
	s.h.relay.Disconnect(s)
	s.logger.Info().Msg("Relay session closed")
}

// HandleMessage runs on the client's read loop, one frame at a time.
func (s *wsSession) HandleMessage(_ *websocket.Client, in websocket.Inbound) {
	var data frameData
	if len(in.Data) > 0 {
		if err := json.Unmarshal(in.Data, &data); err != nil {
			s.sendError(in.Ref, models.ErrCodeBadRequest, "malformed frame data")
			return
		}
	}

	switch in.Type {
	case websocket.MessageTypeJoin:
		s.join(in.Ref, data)
	case websocket.MessageTypeLeave:
		s.h.relay.Leave(s, data.AccountID)
		s.client.Send(websocket.Message{Type: websocket.MessageTypeLeft, Ref: in.Ref, Data: map[string]string{"account_id": data.AccountID}})
	case websocket.MessageTypeCommand:
		s.command(in.Ref, data)
	default:
		s.sendError(in.Ref, models.ErrCodeBadRequest, "unknown frame type")
	}
}

func (s *wsSession) join(ref string, data frameData) {
	mode := relay.Mode(data.Mode)
	if mode == "" {
		mode = relay.ModeActive
	}
	if !mode.Valid() {
		s.sendError(ref, models.ErrCodeValidation, relay.ErrInvalidMode.Error())
		return
	}
	if !s.authorize(ref, data.AccountID, authz.ActionRoomJoin) {
		return
	}

	err := s.h.relay.Join(s, data.AccountID, mode)
	if err != nil && !errors.Is(err, relay.ErrServiceNotRunning) {
		s.sendError(ref, models.ErrCodeInternal, "join failed")
		s.logger.Warn().Err(err).Str("account_id", data.AccountID).Msg("Join failed")
		return
	}
	s.client.Send(websocket.Message{
		Type: websocket.MessageTypeJoined,
		Ref:  ref,
		Data: joinedData{AccountID: data.AccountID, Mode: string(mode), WorkerRunning: err == nil},
	})
}

func (s *wsSession) command(ref string, data frameData) {
	if data.Command == "" {
		s.sendError(ref, models.ErrCodeValidation, "command is required")
		return
	}
	if !s.authorize(ref, data.AccountID, authz.ActionRoomCommand) {
		return
	}

	ch, err := s.h.relay.RouteCommand(s, data.AccountID, data.Command, data.Payload, data.ReplyExpected)
	if err != nil {
		_, code := errorStatus(err)
		s.sendError(ref, code, err.Error())
		return
	}
	if ch == nil {
		s.client.Send(websocket.Message{Type: websocket.MessageTypeCommandResult, Ref: ref, Data: models.CommandResult{Queued: true}})
		return
	}

	// Wait off the read loop so the session keeps receiving frames.
	go func() {
		res := <-ch
		if res.Err != nil {
			_, code := errorStatus(res.Err)
			s.sendError(ref, code, res.Err.Error())
			return
		}
		s.client.Send(websocket.Message{
			Type: websocket.MessageTypeCommandResult,
			Ref:  ref,
			Data: models.CommandResult{RequestID: res.RequestID, Queued: true, Response: res.Data},
		})
	}()
}

// authorize checks action against the account's owner and reports an
// error frame when denied. Foreign accounts look like missing ones.
func (s *wsSession) authorize(ref, accountID, action string) bool {
	if accountID == "" {
		s.sendError(ref, models.ErrCodeValidation, "account_id is required")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), ownerLookupTimeout)
	defer cancel()
	acc, err := s.h.store.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			s.sendError(ref, models.ErrCodeNotFound, "account not found")
		} else {
			s.logger.Error().Err(err).Str("account_id", accountID).Msg("Account lookup failed")
			s.sendError(ref, models.ErrCodeInternal, "account lookup failed")
		}
		return false
	}

	if err := s.h.authz.Authorize(s.principal, acc.OwnerCode, action); err != nil {
		if s.principal.OwnerCode != acc.OwnerCode {
			s.sendError(ref, models.ErrCodeNotFound, "account not found")
		} else {
			s.sendError(ref, models.ErrCodeForbidden, "not permitted")
		}
		return false
	}
	return true
}

func (s *wsSession) sendError(ref, code, message string) {
	s.client.Send(websocket.Message{
		Type: websocket.MessageTypeError,
		Ref:  ref,
		Data: websocket.ErrorData{Code: code, Message: message},
	})
}
