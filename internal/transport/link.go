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

package transport

import (
	"context"
	"fmt"

	"github.com/redmesh-project/redmesh/internal/envelope"
	"github.com/redmesh-project/redmesh/internal/logger"
	"github.com/redmesh-project/redmesh/internal/wire"
	"github.com/redmesh-project/redmesh/peripheral"
)

// Link is the spec's C2 "transport channel" proper: it wraps every
// outbound wire.Message through the envelope codec (C1) before
// handing the signed payload to a raw peripheral.Transport, and
// unwraps/verifies every inbound payload back into a typed message
// (spec §2 "wraps every outbound through C1 and unwraps every
// inbound"). A message that fails verification is dropped and logged,
// never surfaced to the caller as a received message.
type Link struct {
	raw   peripheral.Transport
	codec *envelope.Codec
	log   logger.Logger
}

// NewLink builds a Link over a raw transport, signing and verifying
// with codec.
func NewLink(raw peripheral.Transport, codec *envelope.Codec) *Link {
	return &Link{
		raw:   raw,
		codec: codec,
		log:   logger.GetDefaultLogger().WithFields(logger.Component("transport.link")),
	}
}

// Broadcast signs msg and fans it out to every reachable peer.
func (l *Link) Broadcast(ctx context.Context, msg wire.Message) error {
	payload, err := l.sign(msg)
	if err != nil {
		return err
	}
	return l.raw.Broadcast(ctx, payload)
}

// SendTo signs msg and delivers it to a single named peer.
func (l *Link) SendTo(ctx context.Context, peer string, msg wire.Message) error {
	payload, err := l.sign(msg)
	if err != nil {
		return err
	}
	return l.raw.SendTo(ctx, peer, payload)
}

func (l *Link) sign(msg wire.Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", fmt.Errorf("transport: refusing to send invalid message: %w", err)
	}
	encoded, err := wire.Encode(msg)
	if err != nil {
		return "", fmt.Errorf("transport: encode failed: %w", err)
	}
	env, err := l.codec.Sign(encoded)
	if err != nil {
		return "", fmt.Errorf("transport: sign failed: %w", err)
	}
	payload, err := envelope.EncodeEnvelope(env)
	if err != nil {
		return "", fmt.Errorf("transport: envelope encode failed: %w", err)
	}
	return payload, nil
}

// Inbound is one verified, decoded message arriving from a peer.
type Inbound struct {
	From    string
	Message wire.Message
}

// Receive blocks for the next inbound frame, verifies its envelope,
// and decodes its payload into a typed Message. Frames that fail
// envelope verification or wire decoding are dropped silently (after
// a debug log) and the loop continues — this is the "unwraps every
// inbound" half of C2; a forged or replayed message never reaches
// application code.
func (l *Link) Receive(ctx context.Context) (Inbound, error) {
	for {
		frame, err := l.raw.Receive(ctx)
		if err != nil {
			return Inbound{}, err
		}
		in, ok := l.unwrap(frame)
		if !ok {
			continue
		}
		return in, nil
	}
}

func (l *Link) unwrap(frame peripheral.Frame) (Inbound, bool) {
	env, err := envelope.DecodeEnvelope(frame.Payload)
	if err != nil {
		l.log.Debug("dropping frame with malformed envelope", logger.String("from", frame.From), logger.Error(err))
		return Inbound{}, false
	}
	payload, err := l.codec.Verify(env)
	if err != nil {
		l.log.Debug("dropping frame that failed verification",
			logger.String("from", frame.From), logger.Error(err))
		return Inbound{}, false
	}
	msg, err := wire.Decode(payload)
	if err != nil {
		l.log.Debug("dropping frame with undecodable message", logger.String("from", frame.From), logger.Error(err))
		return Inbound{}, false
	}
	if err := msg.Validate(); err != nil {
		l.log.Debug("dropping structurally invalid message", logger.String("from", frame.From), logger.Error(err))
		return Inbound{}, false
	}
	return Inbound{From: frame.From, Message: msg}, true
}

// Close releases the underlying raw transport.
func (l *Link) Close() error {
	return l.raw.Close()
}

// HandlerFunc processes one verified inbound message from peer "from".
type HandlerFunc func(ctx context.Context, from string, msg wire.Message)

// Dispatch maps wire.MessageType to the HandlerFunc responsible for it
// - the application-layer realization of spec §4.2's "Dispatch maps
// message.type -> handler": a handler is registered once per type and
// Run invokes it synchronously, one message at a time, never
// concurrently for the same Link.
type Dispatch struct {
	handlers map[wire.MessageType]HandlerFunc
	fallback HandlerFunc
}

// NewDispatch returns an empty Dispatch table.
func NewDispatch() *Dispatch {
	return &Dispatch{handlers: make(map[wire.MessageType]HandlerFunc)}
}

// Handle registers fn as the handler for every inbound message of
// type t, replacing any handler previously registered for t.
func (d *Dispatch) Handle(t wire.MessageType, fn HandlerFunc) {
	d.handlers[t] = fn
}

// Fallback registers fn to run for any message type with no handler
// registered via Handle.
func (d *Dispatch) Fallback(fn HandlerFunc) {
	d.fallback = fn
}

// Run drains l.Receive in a loop, dispatching each inbound message to
// its registered handler, until ctx is cancelled or l errors.
func (d *Dispatch) Run(ctx context.Context, l *Link) error {
	for {
		in, err := l.Receive(ctx)
		if err != nil {
			return err
		}
		h, ok := d.handlers[in.Message.Type]
		if !ok {
			if d.fallback != nil {
				d.fallback(ctx, in.From, in.Message)
			}
			continue
		}
		h(ctx, in.From, in.Message)
	}
}
