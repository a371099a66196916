// redmesh - peripheral-proxy fabric
// Copyright (C) 2025 redmesh-project
//
// This file is part of redmesh.
//
// redmesh is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// redmesh is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with redmesh. If not, see <https://www.gnu.org/licenses/>.

// Package wire defines the typed protocol messages carried inside an
// envelope payload (C3 in the design): a closed set of message types,
// request/response correlation by requestId, and the deterministic
// JSON codec used so two nodes serializing the same logical message
// produce byte-identical payload bytes.
package wire

import (
	"encoding/json"
	"errors"
)

// MessageType is the closed set of message types from spec §3.
type MessageType string

const (
	PeriphAnnounce    MessageType = "PERIPH_ANNOUNCE"
	PeriphDiscover    MessageType = "PERIPH_DISCOVER"
	PeriphList        MessageType = "PERIPH_LIST"
	PeriphCall        MessageType = "PERIPH_CALL"
	PeriphResult      MessageType = "PERIPH_RESULT"
	PeriphError       MessageType = "PERIPH_ERROR"
	PeriphSubscribe   MessageType = "PERIPH_SUBSCRIBE"
	PeriphUnsubscribe MessageType = "PERIPH_UNSUBSCRIBE"
	PeriphStatePush   MessageType = "PERIPH_STATE_PUSH"
	OK                MessageType = "OK"
	ErrorType         MessageType = "ERROR"
)

// requestTypes is the set of message types that, combined with a
// non-empty RequestID, make a Message a request awaiting a matching
// response (spec §3: "A message is a request iff requestId is set and
// its type is a known request type").
var requestTypes = map[MessageType]bool{
	PeriphDiscover:    true,
	PeriphCall:        true,
	PeriphSubscribe:   true,
	PeriphUnsubscribe: true,
}

func knownType(t MessageType) bool {
	switch t {
	case PeriphAnnounce, PeriphDiscover, PeriphList, PeriphCall, PeriphResult,
		PeriphError, PeriphSubscribe, PeriphUnsubscribe, PeriphStatePush, OK, ErrorType:
		return true
	default:
		return false
	}
}

// Message is the typed envelope payload, spec §3.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// IsRequest reports whether m is a request awaiting a correlated
// response, per spec §3.
func (m Message) IsRequest() bool {
	return m.RequestID != "" && requestTypes[m.Type]
}

var (
	ErrMissingType      = errors.New("wire: message type is required")
	ErrMissingTimestamp = errors.New("wire: message timestamp is required")
	ErrUnknownType      = errors.New("wire: unknown message type")
)

// Validate performs the structural validation spec §4.3 assigns to
// this layer: absent type, absent timestamp, and unknown type are
// rejected. No validation of Data is performed here — that is each
// handler's job.
func (m Message) Validate() error {
	if m.Type == "" {
		return ErrMissingType
	}
	if m.Timestamp == 0 {
		return ErrMissingTimestamp
	}
	if !knownType(m.Type) {
		return ErrUnknownType
	}
	return nil
}

// Meta carries the chunked-pagination and unchanged-short-circuit
// metadata described in spec §4.6 and §4.8. It rides inside a
// PERIPH_RESULT's or PERIPH_STATE_PUSH's Data alongside Results.
type Meta struct {
	Chunked    bool   `json:"chunked,omitempty"`
	Total      int    `json:"total,omitempty"`
	Offset     int    `json:"offset,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Done       bool   `json:"done,omitempty"`
	QueryID    string `json:"queryId,omitempty"`
	ResultHash string `json:"resultHash,omitempty"`
	Unchanged  bool   `json:"unchanged,omitempty"`
}

// CallOptions is the options bag a caller attaches to a PERIPH_CALL,
// and the engine re-attaches to follow-up page requests (spec §4.6).
type CallOptions struct {
	Offset     int    `json:"offset,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	ResultHash string `json:"resultHash,omitempty"`
	QueryID    string `json:"queryId,omitempty"`
	Page       bool   `json:"page,omitempty"`
}

// PeripheralDescriptor describes one peripheral as carried in
// PERIPH_LIST / legacy PERIPH_ANNOUNCE data.
type PeripheralDescriptor struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Methods []string `json:"methods"`
}

// AnnounceData is PERIPH_ANNOUNCE's data (spec §4.4). Peripherals is
// only populated for a legacy full-inventory announce.
type AnnounceData struct {
	HostID          string                 `json:"hostId"`
	HostName        string                 `json:"hostName,omitempty"`
	StateHash       string                 `json:"stateHash,omitempty"`
	PeripheralCount int                    `json:"peripheralCount,omitempty"`
	Activity        map[string]interface{} `json:"activity,omitempty"`
	Peripherals     []PeripheralDescriptor `json:"peripherals,omitempty"`
}

// IsLegacy reports whether this announce is the legacy full-inventory
// form (no stateHash, carries peripherals directly).
func (a AnnounceData) IsLegacy() bool {
	return a.StateHash == "" && len(a.Peripherals) > 0
}

// ListData is PERIPH_LIST's data.
type ListData struct {
	HostID      string                 `json:"hostId"`
	HostName    string                 `json:"hostName,omitempty"`
	Peripherals []PeripheralDescriptor `json:"peripherals"`
}

// CallData is PERIPH_CALL's data.
type CallData struct {
	Peripheral string          `json:"peripheral"`
	Method     string          `json:"method"`
	Args       json.RawMessage `json:"args,omitempty"`
	Options    *CallOptions    `json:"options,omitempty"`
}

// ResultData is PERIPH_RESULT's data.
type ResultData struct {
	Results json.RawMessage `json:"results,omitempty"`
	Meta    *Meta           `json:"meta,omitempty"`
}

// ErrorData is PERIPH_ERROR's data.
type ErrorData struct {
	Error string `json:"error"`
}

// SubscribeData is PERIPH_SUBSCRIBE's / PERIPH_UNSUBSCRIBE's data.
type SubscribeData struct {
	Peripheral string          `json:"peripheral"`
	Method     string          `json:"method"`
	Args       json.RawMessage `json:"args,omitempty"`
	IntervalMs int             `json:"intervalMs,omitempty"`
	Event      string          `json:"event,omitempty"`
}

// StatePushData is PERIPH_STATE_PUSH's data.
type StatePushData struct {
	Peripheral string          `json:"peripheral"`
	Method     string          `json:"method"`
	Args       json.RawMessage `json:"args,omitempty"`
	Results    json.RawMessage `json:"results,omitempty"`
	Meta       *Meta           `json:"meta,omitempty"`
	Event      string          `json:"event,omitempty"`
	HostID     string          `json:"hostId"`
}
