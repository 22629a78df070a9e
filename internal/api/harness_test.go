// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/auth"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/authz"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/relay"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/store"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/supervisor"
)

const testJWTSecret = "api-test-secret-with-32-plus-characters"

type sentCommand struct {
	accountID string
	cmd       ipc.Command
}

// fakeRegistry stands in for the AccountSupervisor: workers "run" as soon
// as they are spawned and commands are captured instead of written to a
// process.
type fakeRegistry struct {
	store *store.Store

	mu        sync.Mutex
	running   map[string]bool
	spawned   []string
	restarted []string
	spawnErr  error
	sent      chan sentCommand
}

func newFakeRegistry(st *store.Store) *fakeRegistry {
	return &fakeRegistry{
		store:   st,
		running: make(map[string]bool),
		sent:    make(chan sentCommand, 64),
	}
}

func (f *fakeRegistry) Spawn(_ context.Context, acc models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnErr != nil {
		return f.spawnErr
	}
	f.running[acc.ID] = true
	f.spawned = append(f.spawned, acc.ID)
	return nil
}

func (f *fakeRegistry) Teardown(ctx context.Context, accountID string) error {
	f.mu.Lock()
	delete(f.running, accountID)
	f.mu.Unlock()
	return f.store.Delete(ctx, accountID)
}

func (f *fakeRegistry) Restart(accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running[accountID] {
		return supervisor.ErrServiceNotRunning
	}
	f.restarted = append(f.restarted, accountID)
	return nil
}

func (f *fakeRegistry) Status(accountID string) models.WorkerStatus {
	if f.IsRunning(accountID) {
		return models.WorkerStatus{State: string(supervisor.StateRunning), Port: 3006}
	}
	return models.WorkerStatus{State: string(supervisor.StateStopped)}
}

func (f *fakeRegistry) RunningCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.running)
}

func (f *fakeRegistry) IsRunning(accountID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[accountID]
}

func (f *fakeRegistry) Send(accountID string, cmd ipc.Command) error {
	if !f.IsRunning(accountID) {
		return supervisor.ErrServiceNotRunning
	}
	f.sent <- sentCommand{accountID: accountID, cmd: cmd}
	return nil
}

func (f *fakeRegistry) setRunning(accountID string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if running {
		f.running[accountID] = true
	} else {
		delete(f.running, accountID)
	}
}

// nextSent waits for a command matching name.
func (f *fakeRegistry) nextSent(t *testing.T, name string) sentCommand {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case sc := <-f.sent:
			if sc.cmd.Name == name {
				return sc
			}
		case <-deadline:
			t.Fatalf("command %q was not sent", name)
			return sentCommand{}
		}
	}
}

type apiHarness struct {
	t       *testing.T
	server  *httptest.Server
	store   *store.Store
	workers *fakeRegistry
	relay   *relay.Relay
	jwt     *auth.JWTManager
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "inbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		Server: config.ServerConfig{CORSOrigins: []string{"*"}, RateLimitDisabled: true},
		Relay:  config.RelayConfig{SendBuffer: 32},
		Auth: config.AuthConfig{
			Mode:      "jwt",
			JWTSecret: testJWTSecret,
			Issuer:    "inbox",
			TokenTTL:  time.Hour,
		},
	}

	workers := newFakeRegistry(st)
	rl := relay.New(workers, nil, relay.Config{RequestTimeout: 300 * time.Millisecond})
	t.Cleanup(rl.Close)

	enforcer, err := authz.NewEnforcer(authz.Config{})
	require.NoError(t, err)
	t.Cleanup(enforcer.Close)

	manager, err := auth.NewJWTManager(cfg.Auth)
	require.NoError(t, err)

	handler := NewHandler(st, workers, rl, enforcer, cfg)
	router := NewRouter(handler, auth.NewJWTAuthenticator(manager), NewChiMiddleware(ChiMiddlewareConfigFrom(cfg.Server, "")))

	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)

	return &apiHarness{t: t, server: srv, store: st, workers: workers, relay: rl, jwt: manager}
}

func (h *apiHarness) token(owner, role string) string {
	h.t.Helper()
	tok, err := h.jwt.GenerateToken(owner, role)
	require.NoError(h.t, err)
	return tok
}

// seed inserts an account directly into the store.
func (h *apiHarness) seed(id, owner string, running bool) models.Account {
	h.t.Helper()
	acc := models.Account{ID: id, Kind: models.KindWhatsApp, DisplayName: id, OwnerCode: owner, CreatedAt: time.Now().UTC()}
	require.NoError(h.t, h.store.Create(context.Background(), &acc))
	h.workers.setRunning(id, running)
	return acc
}

type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

func (h *apiHarness) do(method, path, token string, body interface{}) (int, envelope) {
	h.t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, h.server.URL+path, rdr)
	require.NoError(h.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.server.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)

	var env envelope
	if len(raw) > 0 {
		require.NoError(h.t, json.Unmarshal(raw, &env), "body: %s", raw)
	}
	return resp.StatusCode, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}
