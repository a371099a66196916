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

// Package peripheral declares the two external collaborator
// interfaces the fabric's core depends on but never implements
// itself (spec §1/§6): the underlying broadcast radio (Transport) and
// a locally-attached device driver (Adapter). Concrete transports live
// in internal/transport; concrete adapters are out of scope — a
// ComputerCraft mod's peripheral table, a test double, or anything
// else that can answer "what are you, what can you do, go do it."
package peripheral

import (
	"context"
	"encoding/json"
)

// Frame is one payload in flight over a Transport, addressed by peer
// id. From is the sender; To is empty for a broadcast frame.
type Frame struct {
	From    string
	To      string
	Payload string
}

// Transport is the external broadcast-style radio collaborator
// (spec §6: "a transport with broadcast/sendTo(id)/receive/close").
// It carries already-framed envelope payloads and makes no delivery
// or ordering guarantee.
type Transport interface {
	Broadcast(ctx context.Context, payload string) error
	SendTo(ctx context.Context, peer string, payload string) error
	Receive(ctx context.Context) (Frame, error)
	Close() error
}

// Adapter is a single locally-attached peripheral device driver
// (spec §6: "a peripheral host that exposes listPeripherals,
// listMethods, and invoke(name, method, args)" — narrowed here to the
// per-device shape the host server enumerates over).
type Adapter interface {
	// Name is this peripheral's local name, e.g. "minecraft:chest_12".
	Name() string
	// Type is this peripheral's type string, e.g. "minecraft:chest".
	Type() string
	// Methods lists the callable method names this peripheral exposes.
	Methods() []string
	// Invoke calls method with args and returns its JSON-encoded
	// result. A panicking Adapter is the host server's problem to
	// isolate, not the Adapter's.
	Invoke(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error)
}
