// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

func serveWithRequestID(t *testing.T, header string) (responseID, contextID, chiID string) {
	t.Helper()
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contextID = GetRequestID(r.Context())
		chiID = chimiddleware.GetReqID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if header != "" {
		req.Header.Set(RequestIDHeader, header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Header().Get(RequestIDHeader), contextID, chiID
}

func TestRequestID_GeneratesNewID(t *testing.T) {
	responseID, contextID, chiID := serveWithRequestID(t, "")

	if _, err := uuid.Parse(responseID); err != nil {
		t.Errorf("response X-Request-ID is not a valid UUID: %v", err)
	}
	if contextID != responseID || chiID != responseID {
		t.Errorf("ids differ: response=%q context=%q chi=%q", responseID, contextID, chiID)
	}
}

func TestRequestID_PreservesExistingID(t *testing.T) {
	responseID, contextID, _ := serveWithRequestID(t, "upstream-abc.123")

	if responseID != "upstream-abc.123" || contextID != "upstream-abc.123" {
		t.Errorf("upstream id not preserved: response=%q context=%q", responseID, contextID)
	}
}

func TestRequestID_ReplacesMalformedID(t *testing.T) {
	tests := []string{
		"has spaces",
		"line\nbreak",
		strings.Repeat("a", 129),
	}
	for _, in := range tests {
		responseID, _, _ := serveWithRequestID(t, in)
		if responseID == in {
			t.Errorf("malformed id %q should be replaced", in)
		}
		if _, err := uuid.Parse(responseID); err != nil {
			t.Errorf("replacement %q is not a UUID", responseID)
		}
	}
}
