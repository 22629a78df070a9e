// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package auth

import (
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
)

// Middleware rejects unauthenticated requests with 401 and stores the
// principal in the request context.
func Middleware(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := authn.Authenticate(r)
			if err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Str("authenticator", authn.Name()).
					Str("path", r.URL.Path).Msg("Authentication failed")
				writeUnauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	msg := "Authentication required"
	if errors.Is(err, ErrExpiredCredentials) {
		msg = "Credentials expired"
	} else if errors.Is(err, ErrInvalidCredentials) {
		msg = "Invalid credentials"
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="inbox"`)
	w.WriteHeader(http.StatusUnauthorized)
	//nolint:errcheck // the response is already committed
	json.NewEncoder(w).Encode(&models.APIResponse{
		Status: "error",
		Error: &models.APIError{
			Code:    models.ErrCodeUnauthorized,
			Message: msg,
		},
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}
