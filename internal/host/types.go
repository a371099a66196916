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

// Package host is the local peripheral server, C8 in the design: it
// scans local peripherals, announces them on a heartbeat, dispatches
// PERIPH_CALL to the matching adapter with crash isolation, shapes and
// chunks heavy responses behind a TTL'd snapshot table, serves
// per-client subscriptions, and pushes activity-change telemetry to
// every known client — grounded on the teacher's core/handshake/server.go
// request-dispatch shape and core/session/manager.go ticker lifecycle.
package host

import "time"

// Defaults from spec §6.
const (
	DefaultAnnounceInterval   = 10 * time.Second
	DefaultSnapshotTTL        = 5 * time.Second
	DefaultActivityPollPeriod = 1500 * time.Millisecond
	DefaultChunkLimit         = 200
	MaxChunkLimit             = 1000
	DefaultSubscribePoll      = 250 * time.Millisecond
	DefaultSubscribeInterval  = 1 * time.Second
)

// defaultExclusionSet is the set of peripheral type substrings the
// host filters out of its scan (spec §4.8): "things that are not
// device endpoints." Matched against the normalized (lowercased,
// stripped) type the same way registry type matching works, so
// "minecraft:monitor" and "monitor" both exclude.
var defaultExclusionSet = []string{"monitor", "modem", "computer", "turtle", "pocket"}

// heavyMethods is the declared set of list-returning methods whose
// responses get field-whitelisted, hashed, and chunked (spec §4.8
// "Response shaping for heavy methods").
var heavyMethods = map[string]bool{
	"getitems":           true,
	"getfluids":          true,
	"getchemicals":       true,
	"getcraftableitems":  true,
	"getcraftablefluids": true,
}

// isHeavyMethod normalizes method before consulting heavyMethods so
// "getItems"/"getItems()"-style casing differences from different
// adapters still match. The built-in set is layered with any
// config.MethodPolicy.ExtraHeavy this Server was configured with via
// WithMethodPolicy.
func (s *Server) isHeavyMethod(method string) bool {
	n := normalizeMethod(method)
	if heavyMethods[n] {
		return true
	}
	for _, m := range s.extraHeavyMethods {
		if normalizeMethod(m) == n {
			return true
		}
	}
	return false
}

func normalizeMethod(m string) string {
	out := make([]byte, 0, len(m))
	for i := 0; i < len(m); i++ {
		c := m[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			out = append(out, c)
		}
	}
	return string(out)
}

// heavyFieldWhitelist is the subset of a heavy record's fields the
// host keeps, in this order, per spec §4.8 step 1.
var heavyFieldWhitelist = []string{"name", "displayName", "count", "amount", "isCraftable"}

// actionMethods classifies methods that mutate peripheral state and
// must never be treated as cacheable/heavy reads (spec §4.7's
// action/read split, mirrored host-side so dispatch never attempts to
// chunk or snapshot a mutation's result). The client-side proxy cache
// owns the authoritative policy; this copy only prevents the host from
// accidentally heavy-shaping an action's response.
var actionMethods = map[string]bool{
	"craftitem":  true,
	"exportitem": true,
	"importitem": true,
}

// isActionMethod normalizes method before consulting actionMethods; the
// built-in set is layered with any config.MethodPolicy.ExtraActions
// this Server was configured with via WithMethodPolicy.
func (s *Server) isActionMethod(method string) bool {
	n := normalizeMethod(method)
	if actionMethods[n] {
		return true
	}
	for _, m := range s.extraActionMethods {
		if normalizeMethod(m) == n {
			return true
		}
	}
	return false
}
