// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package worker

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/websocket"
)

// Router serves the collocated face: /healthz and /ws.
func (w *Worker) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", w.handleHealth)
	r.Get("/ws", w.handleWebSocket)
	return r
}

type healthPayload struct {
	AccountID string `json:"account_id"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
	Clients   int    `json:"clients"`
}

func (w *Worker) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(healthPayload{
		AccountID: w.opts.AccountID,
		Kind:      w.opts.Kind,
		State:     string(w.drv.State()),
		Clients:   w.hub.ClientCount(),
	})
}

func (w *Worker) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	if !w.tokenValid(r) {
		w.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("Local WebSocket rejected: bad or missing token")
		http.Error(rw, "unauthorized", http.StatusUnauthorized)
		return
	}
	upgrader := websocket.NewLocalUpgrader(w.opts.AllowedOrigins)
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	client := websocket.NewClient(conn, localHandler{w}, 0)
	w.hub.Register(client)
	client.Start()
}

func (w *Worker) tokenValid(r *http.Request) bool {
	if w.opts.Token == "" {
		return true
	}
	got := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		got = strings.TrimPrefix(h, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(w.opts.Token)) == 1
}

// localHandler feeds local WebSocket commands into the dispatch loop.
type localHandler struct{ w *Worker }

func (h localHandler) HandleMessage(c *websocket.Client, msg websocket.Inbound) {
	if msg.Type != websocket.MessageTypeCommand {
		c.Send(websocket.Message{Type: websocket.MessageTypeError, Ref: msg.Ref,
			Data: websocket.ErrorData{Message: "unsupported frame type " + msg.Type}})
		return
	}
	var cmd ipc.Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil || cmd.Name == "" {
		c.Send(websocket.Message{Type: websocket.MessageTypeError, Ref: msg.Ref,
			Data: websocket.ErrorData{Message: "invalid command"}})
		return
	}
	select {
	case h.w.commands <- cmd:
	case <-c.Done():
	}
}

func (h localHandler) HandleClose(c *websocket.Client) {
	h.w.hub.Unregister(c)
}
