// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/auth"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/authz"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/store"
)

func (h *Handler) view(acc models.Account) models.AccountView {
	return models.AccountView{Account: acc, Worker: h.workers.Status(acc.ID)}
}

// ListAccounts returns the caller's accounts. Admins get every account,
// or one owner's with ?owner=.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	owner := r.URL.Query().Get("owner")

	if err := h.authz.Authorize(p, owner, authz.ActionAccountList); err != nil {
		respondDomainError(w, r, err)
		return
	}

	var (
		accounts []models.Account
		err      error
	)
	switch {
	case owner != "":
		accounts, err = h.store.ListByOwner(r.Context(), owner)
	case p.IsAdmin():
		accounts, err = h.store.List(r.Context())
	default:
		accounts, err = h.store.ListByOwner(r.Context(), p.OwnerCode)
	}
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	views := make([]models.AccountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, h.view(acc))
	}
	respondSuccess(w, r, http.StatusOK, views)
}

// CreateAccount persists a new account and spawns its worker.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p := auth.PrincipalFromContext(r.Context())
	owner := req.OwnerCode
	if owner == "" {
		owner = p.OwnerCode
	}
	if err := h.authz.Authorize(p, owner, authz.ActionAccountCreate); err != nil {
		respondDomainError(w, r, err)
		return
	}

	acc := models.Account{
		ID:          uuid.NewString(),
		Kind:        req.Kind,
		DisplayName: req.DisplayName,
		OwnerCode:   owner,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.Create(r.Context(), &acc); err != nil {
		respondDomainError(w, r, err)
		return
	}

	// The account exists either way; a failed spawn shows as STOPPED and
	// can be retried with restart after the cause is fixed.
	if err := h.workers.Spawn(r.Context(), acc); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("account_id", acc.ID).Msg("Failed to spawn worker for new account")
	}

	logging.Ctx(r.Context()).Info().
		Str("account_id", acc.ID).
		Str("kind", acc.Kind).
		Str("owner_code", acc.OwnerCode).
		Msg("Account created")
	respondSuccess(w, r, http.StatusCreated, h.view(acc))
}

// loadAccount fetches {id} and authorizes action on it. Accounts the
// caller may not see are reported as not found.
func (h *Handler) loadAccount(w http.ResponseWriter, r *http.Request, action string) (models.Account, bool) {
	id := chi.URLParam(r, "id")
	acc, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return models.Account{}, false
	}

	p := auth.PrincipalFromContext(r.Context())
	if err := h.authz.Authorize(p, acc.OwnerCode, action); err != nil {
		if p == nil || p.OwnerCode != acc.OwnerCode {
			respondError(w, r, http.StatusNotFound, models.ErrCodeNotFound, store.ErrAccountNotFound.Error(), nil)
			return models.Account{}, false
		}
		respondDomainError(w, r, err)
		return models.Account{}, false
	}
	return acc, true
}

// GetAccount returns one account with its worker status.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.loadAccount(w, r, authz.ActionAccountRead)
	if !ok {
		return
	}
	respondSuccess(w, r, http.StatusOK, h.view(acc))
}

// DeleteAccount tears the worker down and deletes the account.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.loadAccount(w, r, authz.ActionAccountDelete)
	if !ok {
		return
	}
	if err := h.workers.Teardown(r.Context(), acc.ID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("account_id", acc.ID).Msg("Account deleted")
	w.WriteHeader(http.StatusNoContent)
}

// RestartAccount kills the worker; the supervisor respawns it after the
// usual cool-down.
func (h *Handler) RestartAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.loadAccount(w, r, authz.ActionAccountRestart)
	if !ok {
		return
	}
	if err := h.workers.Restart(acc.ID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusAccepted, h.view(acc))
}

// SendCommand routes a command to the account's worker. With
// reply_expected it waits for the response or the relay timeout.
func (h *Handler) SendCommand(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.loadAccount(w, r, authz.ActionAccountCommand)
	if !ok {
		return
	}
	var req models.CommandRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ch, err := h.relay.RouteCommand(nil, acc.ID, req.Command, req.Payload, req.ReplyExpected)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if ch == nil {
		respondSuccess(w, r, http.StatusAccepted, models.CommandResult{Queued: true})
		return
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			respondDomainError(w, r, res.Err)
			return
		}
		respondSuccess(w, r, http.StatusOK, models.CommandResult{
			RequestID: res.RequestID,
			Queued:    true,
			Response:  res.Data,
		})
	case <-r.Context().Done():
		// The pending request still resolves by timeout; nobody reads it.
		logging.Ctx(r.Context()).Debug().Str("account_id", acc.ID).Str("command", req.Command).Msg("Client went away before command reply")
	}
}
