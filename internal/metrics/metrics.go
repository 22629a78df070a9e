// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package metrics holds the Prometheus instrumentation for the supervisor,
// the relay and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Worker lifecycle
	WorkersRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbox_workers_running",
			Help: "Number of account worker processes currently running",
		},
	)

	WorkerSpawns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_worker_spawns_total",
			Help: "Total number of worker process launches",
		},
		[]string{"kind"},
	)

	WorkerRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_worker_restarts_total",
			Help: "Total number of worker restarts scheduled after an unexpected exit",
		},
		[]string{"kind"},
	)

	WorkerExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_worker_exits_total",
			Help: "Total number of worker process exits",
		},
		[]string{"kind", "reason"}, // "crashed", "exited", "stopped"
	)

	WorkersQuarantined = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbox_workers_quarantined",
			Help: "Number of accounts whose restart breaker is open",
		},
	)

	PortFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_port_fallback_total",
			Help: "Total number of ports handed out from the random fallback range",
		},
	)

	// Relay
	RelaySessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbox_relay_sessions",
			Help: "Number of connected relay sessions",
		},
	)

	RelayRoomMembers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbox_relay_room_members",
			Help: "Number of (session, account) room memberships",
		},
	)

	EventsBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_events_broadcast_total",
			Help: "Total number of worker events fanned out to rooms",
		},
		[]string{"event"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_events_dropped_total",
			Help: "Total number of event deliveries dropped because a session queue was full",
		},
	)

	CommandsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_commands_routed_total",
			Help: "Total number of commands routed to workers",
		},
		[]string{"command", "result"}, // "sent", "not_running", "rate_limited"
	)

	PendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbox_pending_requests",
			Help: "Number of commands awaiting a correlated response",
		},
	)

	PendingTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_pending_timeouts_total",
			Help: "Total number of pending requests that timed out",
		},
	)

	LateResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_late_responses_total",
			Help: "Total number of responses dropped because no request was pending",
		},
	)

	// Event tap
	EventTapPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_eventtap_publish_total",
			Help: "Total number of events mirrored to the message bus",
		},
		[]string{"result"}, // "ok", "error", "breaker_open", "dropped", "spooled"
	)

	SpoolWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_eventtap_spool_writes_total",
			Help: "Total number of events written to the durable spool",
		},
	)

	SpoolPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbox_eventtap_spool_pending",
			Help: "Events waiting in the durable spool",
		},
	)

	SpoolReplays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_eventtap_spool_replay_total",
			Help: "Total number of spooled events replayed",
		},
		[]string{"result"}, // "ok", "error", "abandoned"
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inbox_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordWorkerSpawn counts a launch and the running gauge.
func RecordWorkerSpawn(kind string) {
	WorkerSpawns.WithLabelValues(kind).Inc()
	WorkersRunning.Inc()
}

// RecordWorkerExit counts an exit of a worker that had been running.
func RecordWorkerExit(kind, reason string) {
	WorkerExits.WithLabelValues(kind, reason).Inc()
	WorkersRunning.Dec()
}

// RecordWorkerRestart counts a scheduled restart.
func RecordWorkerRestart(kind string) {
	WorkerRestarts.WithLabelValues(kind).Inc()
}

// RecordCommand counts a routed command with its outcome.
func RecordCommand(command, result string) {
	CommandsRouted.WithLabelValues(command, result).Inc()
}

// RecordBroadcast counts one fanned-out event and the deliveries dropped for it.
func RecordBroadcast(event string, dropped int) {
	EventsBroadcast.WithLabelValues(event).Inc()
	if dropped > 0 {
		EventsDropped.Add(float64(dropped))
	}
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
