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
)

// Endpoint is one candidate address a peer can be reached at. A peer
// behind both a relay and a direct/loopback address is described by
// more than one Endpoint; LongRange marks the wireless/relay address
// so the default Preference can find it.
type Endpoint struct {
	URL       string
	LongRange bool
}

// Preference picks which of several candidate Endpoints for the same
// peer should be opened, returning its index. The rest are never
// dialed, preventing duplicate delivery from the same peer arriving
// over two connections at once.
type Preference func(candidates []Endpoint) int

// PreferLongRange is the default Preference: it ranks a long-range
// (relay) endpoint above any direct/loopback one, falling back to the
// first candidate if none is marked long-range.
func PreferLongRange(candidates []Endpoint) int {
	for i, c := range candidates {
		if c.LongRange {
			return i
		}
	}
	return 0
}

// Open dials peerID using the highest-ranked of candidates per pref,
// closing nothing on failure since no connection was made - the other
// candidates are simply never attempted. A nil pref defaults to
// PreferLongRange.
func (c *WSChannel) Open(ctx context.Context, peerID string, candidates []Endpoint, pref Preference) error {
	if len(candidates) == 0 {
		return fmt.Errorf("transport: Open requires at least one candidate endpoint for peer %s", peerID)
	}
	if pref == nil {
		pref = PreferLongRange
	}
	idx := pref(candidates)
	if idx < 0 || idx >= len(candidates) {
		idx = 0
	}
	return c.Dial(ctx, peerID, candidates[idx].URL)
}
