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

// Package transport is the unreliable broadcast transport (C2 in the
// design): signed envelopes travel over it with no delivery guarantee
// and no ordering guarantee, mirroring the in-game "modem" channel the
// spec is modeling. Two implementations share the Channel interface:
// MemChannel for deterministic in-process tests, and WSChannel for a
// real gorilla/websocket mesh between processes.
package transport

import (
	"context"
	"errors"

	"github.com/redmesh-project/redmesh/peripheral"
)

// ErrClosed is returned by operations attempted on a closed Channel.
var ErrClosed = errors.New("transport: channel is closed")

// Frame is one signed envelope in flight, addressed by peer id.
// From is the sender's node id; To is empty for a broadcast and
// populated for a direct send. It is the same shape as
// peripheral.Frame — this package's implementations are concrete
// peripheral.Transport collaborators.
type Frame = peripheral.Frame

// Handler processes an inbound Frame as it arrives. Registered
// handlers run on the channel's delivery goroutine, mirroring the
// teacher's pkg/agent/transport MessageHandler callback shape; a
// handler must not block for long.
type Handler func(Frame)

// Channel is the transport-layer collaborator every node (host or
// client) depends on. It makes no reliability promises: Broadcast and
// SendTo are best-effort, and a Receive/Poll caller may see frames
// arrive out of order or not at all, per spec §2 "the transport offers
// no delivery or ordering guarantee."
type Channel interface {
	// Broadcast fans payload out to every reachable peer.
	Broadcast(ctx context.Context, payload string) error

	// SendTo delivers payload to a single named peer.
	SendTo(ctx context.Context, peer string, payload string) error

	// Receive blocks for the next inbound frame, or returns ctx.Err()
	// if ctx is done first.
	Receive(ctx context.Context) (Frame, error)

	// Poll drains all frames currently buffered without blocking.
	Poll() []Frame

	// RegisterHandler installs a push-style callback invoked for every
	// inbound frame, in addition to whatever Receive/Poll callers see.
	RegisterHandler(h Handler)

	// Close releases the channel's resources. Subsequent sends return
	// ErrClosed.
	Close() error
}
