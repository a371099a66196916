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

package envelope

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// DefaultNonceExpiry is NONCE_EXPIRY from spec §6.
const DefaultNonceExpiry = 120 * time.Second

// NonceCache tracks recently-seen nonces to reject replays within
// NONCE_EXPIRY (spec invariant iv). Unlike a typical background-swept
// cache, it is swept lazily on every SeenOrMark call (spec §4.1: "Nonces...
// are swept lazily on each verify") rather than by a ticking
// goroutine — there is no per-process cleanup loop to manage.
type NonceCache struct {
	ttl  time.Duration
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewNonceCache creates a cache that rejects a nonce as a replay if it
// was marked seen less than ttl ago.
func NewNonceCache(ttl time.Duration) *NonceCache {
	if ttl <= 0 {
		ttl = DefaultNonceExpiry
	}
	return &NonceCache{
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}
}

// SeenOrMark reports whether nonce is a replay (already marked within
// the TTL window). If it is not a replay, it is marked seen as a side
// effect. Expired entries encountered along the way are swept.
func (c *NonceCache) SeenOrMark(nonce string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked(now)

	if _, ok := c.seen[nonce]; ok {
		return true
	}
	c.seen[nonce] = now
	return false
}

// sweepLocked drops entries older than ttl. Caller holds c.mu.
func (c *NonceCache) sweepLocked(now time.Time) {
	for n, t := range c.seen {
		if now.Sub(t) > c.ttl {
			delete(c.seen, n)
		}
	}
}

// Len returns the number of nonces currently tracked, for tests and
// diagnostics.
func (c *NonceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// GenerateNonce returns a fresh random nonce, base64url-encoded
// without padding.
func GenerateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
