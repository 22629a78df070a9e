// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package ipc defines the messages exchanged between the master process
// and an account worker, and the line-delimited JSON codec that carries
// them over the worker's stdin (commands) and stdout (events).
package ipc

import (
	json "github.com/goccy/go-json"
)

// Command names understood by workers. The vocabulary is open: workers
// ignore names they do not know.
const (
	CmdRequestState   = "request_state"
	CmdRequestSummary = "request_summary"
	CmdSendMessage    = "send_message"
	CmdMarkRead       = "mark_read"
	CmdGetHistory     = "get_history"
	CmdForceSync      = "force_sync"
	CmdSubmitPassword = "submit_password"
	CmdDownloadMedia  = "download_media"
)

// Event names emitted by workers.
const (
	EventStatus     = "status"
	EventQR         = "qr"
	EventState      = "state"
	EventSummary    = "summary"
	EventNewMessage = "new_message"
	EventMessageAck = "message_ack"
	EventChats      = "chats"
	EventHistory    = "history"
	EventMedia      = "media"
	EventError      = "error"

	// EventResponse answers a command that carried a request id.
	EventResponse = "response"
)

// Command is sent from the master to a worker.
type Command struct {
	Name      string          `json:"command"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Event is sent from a worker to the master. AccountID is always the
// worker's own account.
type Event struct {
	AccountID string          `json:"account_id"`
	Name      string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Response is the payload of an EventResponse.
type Response struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// NewEvent marshals payload into an Event.
func NewEvent(accountID, name string, payload any) (Event, error) {
	ev := Event{AccountID: accountID, Name: name}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	ev.Payload = raw
	return ev, nil
}

// NewResponseEvent builds the EventResponse for requestID. A non-nil
// cause is reported in Response.Error and data is ignored.
func NewResponseEvent(accountID, requestID string, data any, cause error) (Event, error) {
	resp := Response{RequestID: requestID}
	if cause != nil {
		resp.Error = cause.Error()
	} else if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		resp.Data = raw
	}
	return NewEvent(accountID, EventResponse, resp)
}

// DecodeResponse parses the payload of an EventResponse.
func DecodeResponse(payload json.RawMessage) (Response, error) {
	var resp Response
	err := json.Unmarshal(payload, &resp)
	return resp, err
}
