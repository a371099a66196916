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

package proxycache

import (
	"encoding/json"
	"time"
)

// Tier is one of the three cache-age bands spec §3 defines.
type Tier int

const (
	// TierAbsent means no cache entry exists for the key yet.
	TierAbsent Tier = iota
	TierFresh
	TierStale
	TierExpired
)

// cacheEntry is spec §3's CacheEntry: results plus the time they were
// captured. Age is computed on read, not stored, so Tier is always
// evaluated against the current clock (invariant: "cache age is
// monotone until a blocking call or successful async refresh writes a
// new entry").
type cacheEntry struct {
	results   json.RawMessage
	timestamp time.Time
}

func (e *cacheEntry) tier(now time.Time, ttl, expire time.Duration) Tier {
	if e == nil {
		return TierAbsent
	}
	age := now.Sub(e.timestamp)
	switch {
	case age < ttl:
		return TierFresh
	case age < expire:
		return TierStale
	default:
		return TierExpired
	}
}
