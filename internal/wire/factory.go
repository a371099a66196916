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

package wire

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewRequestID mints a fresh correlation id.
func NewRequestID() string {
	return uuid.NewString()
}

func mustMarshal(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		// Every data struct in this package is a plain value type;
		// a marshal failure here means a programmer error upstream.
		panic("wire: failed to marshal message data: " + err.Error())
	}
	return b
}

func now() int64 {
	return time.Now().UnixMilli()
}

// NewAnnounce builds a PERIPH_ANNOUNCE heartbeat (spec §4.4). It is
// never a request: it carries no requestId.
func NewAnnounce(data AnnounceData) Message {
	return Message{
		Type:      PeriphAnnounce,
		Data:      mustMarshal(data),
		Timestamp: now(),
	}
}

// NewDiscover builds a new PERIPH_DISCOVER request, minting a fresh
// requestId.
func NewDiscover() Message {
	return Message{
		Type:      PeriphDiscover,
		Data:      mustMarshal(struct{}{}),
		RequestID: NewRequestID(),
		Timestamp: now(),
	}
}

// NewList builds a PERIPH_LIST response correlated to requestId.
func NewList(requestID string, data ListData) Message {
	return Message{
		Type:      PeriphList,
		Data:      mustMarshal(data),
		RequestID: requestID,
		Timestamp: now(),
	}
}

// NewCall builds a new PERIPH_CALL request, minting a fresh requestId.
func NewCall(peripheral, method string, args json.RawMessage, options *CallOptions) Message {
	return Message{
		Type: PeriphCall,
		Data: mustMarshal(CallData{
			Peripheral: peripheral,
			Method:     method,
			Args:       args,
			Options:    options,
		}),
		RequestID: NewRequestID(),
		Timestamp: now(),
	}
}

// NewResult builds a PERIPH_RESULT response correlated to requestId.
func NewResult(requestID string, results json.RawMessage, meta *Meta) Message {
	return Message{
		Type:      PeriphResult,
		Data:      mustMarshal(ResultData{Results: results, Meta: meta}),
		RequestID: requestID,
		Timestamp: now(),
	}
}

// NewError builds a PERIPH_ERROR response correlated to requestId.
func NewError(requestID string, errMsg string) Message {
	return Message{
		Type:      PeriphError,
		Data:      mustMarshal(ErrorData{Error: errMsg}),
		RequestID: requestID,
		Timestamp: now(),
	}
}

// NewSubscribe builds a new PERIPH_SUBSCRIBE request.
func NewSubscribe(data SubscribeData) Message {
	return Message{
		Type:      PeriphSubscribe,
		Data:      mustMarshal(data),
		RequestID: NewRequestID(),
		Timestamp: now(),
	}
}

// NewUnsubscribe builds a new PERIPH_UNSUBSCRIBE request.
func NewUnsubscribe(data SubscribeData) Message {
	return Message{
		Type:      PeriphUnsubscribe,
		Data:      mustMarshal(data),
		RequestID: NewRequestID(),
		Timestamp: now(),
	}
}

// NewStatePush builds a PERIPH_STATE_PUSH. It is never a request.
func NewStatePush(data StatePushData) Message {
	return Message{
		Type:      PeriphStatePush,
		Data:      mustMarshal(data),
		Timestamp: now(),
	}
}
