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

// Package proxycache is the client-side caching proxy, C7 in the
// design: one callable-by-method proxy per remote peripheral, with
// tiered cache reads, opportunistic async refresh, action/read
// classification, and failure-driven disconnect/reconnect — grounded
// on the teacher's core/session/manager.go lifecycle-state-machine
// shape generalized from "session expiry" to "proxy connectivity."
package proxycache

import (
	"strings"
	"time"
)

// Tunable defaults, spec §6.
const (
	DefaultCacheTTL = 2 * time.Second
	// DefaultCacheStale is carried for wire/config parity with spec
	// §6's CACHE_STALE default. §3's tier boundary formula ("stale:
	// CACHE_TTL ≤ age < CACHE_EXPIRE") never references it
	// independently of CACHE_TTL/CACHE_EXPIRE, so it is not consulted
	// by tier() below — see DESIGN.md for this open-question call.
	DefaultCacheStale        = 5 * time.Second
	DefaultCacheExpire       = 30 * time.Second
	DefaultAsyncRetry        = 1 * time.Second
	DefaultRPCTimeout        = 3 * time.Second
	DefaultMaxFailures       = 3
	DefaultReconnectCooldown = 10 * time.Second
)

// actionMethods is the per-method policy set spec §4.7 names: methods
// that mutate peripheral state, never cached, always a blocking call.
// Authoritative here — internal/host carries its own copy of the same
// set solely to keep mutation results out of its heavy-method shaping path
// (see DESIGN.md).
var actionMethods = map[string]bool{
	"craftitem":  true,
	"exportitem": true,
	"importitem": true,
}

func normalize(method string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(method) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsAction reports whether method is an action per spec §4.7: actions
// are never cached and always issue a blocking call. It consults only
// the built-in classification; a Proxy configured with
// WithExtraActions also recognizes its own per-deployment overrides
// via (*Proxy).isAction.
func IsAction(method string) bool {
	return actionMethods[normalize(method)]
}

// heavyListMethods get the ≥5s timeout tier (spec §4.7 "heavy
// list-returning methods get ≥5s").
var heavyListMethods = map[string]bool{
	"getitems":           true,
	"getfluids":          true,
	"getchemicals":       true,
	"getcraftableitems":  true,
	"getcraftablefluids": true,
}

// TimeoutFor returns the per-method RPC timeout from the small table
// spec §4.7 describes: heavy list methods get 5s, action/control
// methods get 3s, everything else gets DefaultRPCTimeout. It is the
// fallback a Proxy without any config.MethodPolicy override reduces
// to; see (*Proxy).timeoutFor for the configurable version.
func TimeoutFor(method string) time.Duration {
	n := normalize(method)
	switch {
	case heavyListMethods[n]:
		return 5 * time.Second
	case actionMethods[n]:
		return 3 * time.Second
	default:
		return DefaultRPCTimeout
	}
}

func matchesAny(n string, methods []string) bool {
	for _, m := range methods {
		if normalize(m) == n {
			return true
		}
	}
	return false
}
