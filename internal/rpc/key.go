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

// Package rpc is the call-dispatch engine (C6 in the design):
// request/response correlation by requestId, call coalescing,
// chunked snapshot pagination, and the unchanged-result
// short-circuit.
package rpc

import (
	"encoding/hex"
	"encoding/json"
	"hash/fnv"

	"github.com/redmesh-project/redmesh/internal/wire"
)

// CoalesceKey computes spec §3's `hash(hostId, name, method, args,
// options)`: the key that makes concurrent identical calls collapse
// into one in-flight request (invariant ii).
func CoalesceKey(hostID, name, method string, args json.RawMessage, options *wire.CallOptions) string {
	h := fnv.New64a()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0x1f})
	}
	write(hostID)
	write(name)
	write(method)
	write(string(args))
	if options != nil {
		optBytes, _ := json.Marshal(options)
		write(string(optBytes))
	} else {
		write("")
	}
	return hex.EncodeToString(h.Sum(nil))
}

// resultCacheKey identifies the logical (hostId, name, method, args)
// call independent of per-call options such as resultHash/offset, so
// the unchanged short-circuit (spec §4.6) can find the previous
// result of "the same call" across option values that legitimately
// change from one invocation to the next.
func resultCacheKey(hostID, name, method string, args json.RawMessage) string {
	return CoalesceKey(hostID, name, method, args, nil)
}
