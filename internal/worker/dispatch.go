// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package worker

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/driver"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
)

// commandHandler runs one command. The returned value answers the command
// when it carried a request id.
type commandHandler func(ctx context.Context, cmd ipc.Command) (any, error)

// Commands accepted before the account is connected.
var preConnectCommands = map[string]bool{
	ipc.CmdRequestState:   true,
	ipc.CmdRequestSummary: true,
	ipc.CmdSubmitPassword: true,
}

// ErrorPayload is the payload of an error event.
type ErrorPayload struct {
	Command string `json:"command"`
	Error   string `json:"error"`
}

func (w *Worker) commandTable() map[string]commandHandler {
	return map[string]commandHandler{
		ipc.CmdRequestState:   w.handleRequestState,
		ipc.CmdRequestSummary: w.handleRequestSummary,
		ipc.CmdSendMessage:    w.handleSendMessage,
		ipc.CmdMarkRead:       w.handleMarkRead,
		ipc.CmdGetHistory:     w.handleGetHistory,
		ipc.CmdForceSync:      w.handleForceSync,
		ipc.CmdSubmitPassword: w.handleSubmitPassword,
		ipc.CmdDownloadMedia:  w.handleDownloadMedia,
	}
}

func (w *Worker) dispatch(ctx context.Context, cmd ipc.Command) {
	log := w.logger.With().Str("command", cmd.Name).Str("request_id", cmd.RequestID).Logger()

	handler, ok := w.handlers[cmd.Name]
	if !ok {
		log.Debug().Msg("Ignoring unrecognized command")
		return
	}

	if !preConnectCommands[cmd.Name] {
		if st := w.drv.State(); st != driver.StateConnected {
			log.Info().Str("state", string(st)).Msg("Dropping command, account not connected")
			if cmd.RequestID != "" {
				w.respond(cmd.RequestID, nil, fmt.Errorf("%w (state %s)", driver.ErrNotConnected, st))
			}
			return
		}
	}

	data, err := handler(ctx, cmd)
	if err != nil {
		log.Warn().Err(err).Msg("Command failed")
		if cmd.RequestID != "" {
			w.respond(cmd.RequestID, nil, err)
		} else {
			w.Emit(ipc.EventError, ErrorPayload{Command: cmd.Name, Error: err.Error()})
		}
		return
	}
	if cmd.RequestID != "" {
		w.respond(cmd.RequestID, data, nil)
	}
}

func (w *Worker) respond(requestID string, data any, cause error) {
	ev, err := ipc.NewResponseEvent(w.opts.AccountID, requestID, data, cause)
	if err != nil {
		w.logger.Error().Err(err).Str("request_id", requestID).Msg("Failed to encode response")
		return
	}
	w.publish(ev)
}

func decodePayload(cmd ipc.Command, v any) error {
	if len(cmd.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", cmd.Name)
	}
	if err := json.Unmarshal(cmd.Payload, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", cmd.Name, err)
	}
	return nil
}

func (w *Worker) handleRequestState(_ context.Context, _ ipc.Command) (any, error) {
	snap := w.drv.Snapshot()
	w.Emit(ipc.EventState, snap)
	return snap, nil
}

func (w *Worker) handleRequestSummary(_ context.Context, _ ipc.Command) (any, error) {
	sum := w.drv.Summary()
	w.Emit(ipc.EventSummary, sum)
	return sum, nil
}

func (w *Worker) handleSendMessage(ctx context.Context, cmd ipc.Command) (any, error) {
	var req driver.SendRequest
	if err := decodePayload(cmd, &req); err != nil {
		return nil, err
	}
	if req.ChatID == "" {
		return nil, fmt.Errorf("%s: chat_id is required", cmd.Name)
	}
	return w.drv.SendMessage(ctx, req)
}

type chatPayload struct {
	ChatID string `json:"chat_id"`
}

func (w *Worker) handleMarkRead(ctx context.Context, cmd ipc.Command) (any, error) {
	var p chatPayload
	if err := decodePayload(cmd, &p); err != nil {
		return nil, err
	}
	if err := w.drv.MarkRead(ctx, p.ChatID); err != nil {
		return nil, err
	}
	return p, nil
}

func (w *Worker) handleGetHistory(ctx context.Context, cmd ipc.Command) (any, error) {
	var req driver.HistoryRequest
	if err := decodePayload(cmd, &req); err != nil {
		return nil, err
	}
	msgs, err := w.drv.History(ctx, req)
	if err != nil {
		return nil, err
	}
	out := driver.HistoryPayload{ChatID: req.ChatID, Messages: msgs}
	w.Emit(ipc.EventHistory, out)
	return out, nil
}

func (w *Worker) handleForceSync(ctx context.Context, _ ipc.Command) (any, error) {
	return nil, w.drv.Sync(ctx)
}

type passwordPayload struct {
	Password string `json:"password"`
}

func (w *Worker) handleSubmitPassword(ctx context.Context, cmd ipc.Command) (any, error) {
	var p passwordPayload
	if err := decodePayload(cmd, &p); err != nil {
		return nil, err
	}
	return nil, w.drv.SubmitPassword(ctx, p.Password)
}

type mediaPayload struct {
	MediaID string `json:"media_id"`
}

// handleDownloadMedia answers a correlated request directly. Without a
// request id the content is emitted as a media event instead.
func (w *Worker) handleDownloadMedia(ctx context.Context, cmd ipc.Command) (any, error) {
	var p mediaPayload
	if err := decodePayload(cmd, &p); err != nil {
		return nil, err
	}
	m, err := w.drv.DownloadMedia(ctx, p.MediaID)
	if err != nil {
		return nil, err
	}
	if cmd.RequestID == "" {
		w.Emit(ipc.EventMedia, m)
	}
	return m, nil
}
