// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
)

const healthCheckTimeout = 2 * time.Second

// Health reports store connectivity and worker counts. A failing store
// makes the status "degraded" with 503 so load balancers stop routing.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := models.HealthStatus{
		Status:         "healthy",
		WorkersRunning: h.workers.RunningCount(),
		RelaySessions:  h.relay.SessionCount(),
	}

	if err := h.store.Ping(ctx); err != nil {
		status.Status = "degraded"
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Status:   "error",
			Data:     status,
			Error:    &models.APIError{Code: models.ErrCodeInternal, Message: "Account store unavailable"},
			Metadata: metadata(r),
		})
		return
	}
	if n, err := h.store.Count(ctx); err == nil {
		status.Accounts = n
	}

	respondSuccess(w, r, http.StatusOK, status)
}

// HealthLive always answers 200 while the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"status":         "alive",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}
