// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

// Package websocket carries JSON frames between browser clients and the
// relay or a worker's collocated face.
//
// A Client owns one gorilla connection with a read loop and a write loop.
// Outbound frames go through a bounded queue; a client whose queue is full
// is dropped rather than slowing its producer. A Hub fans frames out to
// every registered client and is used where there is a single room, such
// as a worker's local face.
package websocket

import (
	json "github.com/goccy/go-json"
)

// Frame types shared by the relay and the worker face.
const (
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeJoin          = "join"
	MessageTypeLeave         = "leave"
	MessageTypeCommand       = "command"
	MessageTypeEvent         = "event"
	MessageTypeJoined        = "joined"
	MessageTypeLeft          = "left"
	MessageTypeCommandResult = "command_result"
	MessageTypeError         = "error"
)

// Message is an outbound frame.
type Message struct {
	Type string      `json:"type"`
	Ref  string      `json:"ref,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// Inbound is a frame received from a client. Data is decoded by the
// handler according to Type.
type Inbound struct {
	Type string          `json:"type"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrorData is the payload of a MessageTypeError frame.
type ErrorData struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
