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
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redmesh-project/redmesh/internal/metrics"
	"github.com/redmesh-project/redmesh/internal/registry"
	"github.com/redmesh-project/redmesh/internal/rpc"
)

// ErrUnknownPeripheral is returned when Cache.Call targets a name or
// composite key the registry has no entry for.
type ErrUnknownPeripheral string

func (e ErrUnknownPeripheral) Error() string {
	return fmt.Sprintf("proxycache: unknown peripheral %q", string(e))
}

// Cache is C7's top-level object: it wires the client-side Registry
// (C5) to the RPC engine (C6), lazily building one Proxy per remote
// peripheral and tearing proxies down when the registry's view of that
// host changes (spec §4.7 "a proxy is rebuilt, not merely invalidated,
// when its peripheral's host announces a different method set").
type Cache struct {
	reg    *registry.Registry
	engine *rpc.Engine

	proxyOpts []ProxyOption

	mu      sync.Mutex
	proxies map[string]*Proxy // composite key -> proxy
}

// NewCache builds a Cache over reg and engine, installing a registry
// OnChange hook that drops every proxy belonging to a host whose
// inventory just changed so the next Call rebuilds it fresh. Any
// ProxyOptions given are applied to every Proxy the Cache lazily
// creates (spec §6 per-deployment tunable overrides).
func NewCache(reg *registry.Registry, engine *rpc.Engine, opts ...ProxyOption) *Cache {
	c := &Cache{
		reg:       reg,
		engine:    engine,
		proxyOpts: opts,
		proxies:   make(map[string]*Proxy),
	}
	reg.OnChange(c.dropHost)
	return c
}

func (c *Cache) dropHost(hostID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, p := range c.proxies {
		if p.hostID == hostID {
			delete(c.proxies, key)
		}
	}
	metrics.CacheActiveProxies.Set(float64(len(c.proxies)))
}

// Call resolves nameOrKey against the registry (accepting either a
// bare peripheral name or a hostId::name composite key, per spec §4.5
// Wrap semantics) and dispatches method through that peripheral's
// Proxy, creating one on first use.
func (c *Cache) Call(ctx context.Context, nameOrKey, method string, args json.RawMessage) (json.RawMessage, error) {
	remote, ok := c.reg.Wrap(nameOrKey)
	if !ok {
		return nil, ErrUnknownPeripheral(nameOrKey)
	}
	return c.proxyFor(remote.HostID, remote.Name).Call(ctx, method, args)
}

func (c *Cache) proxyFor(hostID, name string) *Proxy {
	key := (registry.RemotePeripheral{HostID: hostID, Name: name}).Key()

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.proxies[key]; ok {
		return p
	}
	p := NewProxy(c.engine, hostID, name, c.proxyOpts...)
	c.proxies[key] = p
	metrics.CacheActiveProxies.Set(float64(len(c.proxies)))
	return p
}

// State returns the DependencyStatus for every peripheral a Proxy has
// been created for, keyed by composite hostId::name.
func (c *Cache) State() map[string]DependencyStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]DependencyStatus, len(c.proxies))
	for key, p := range c.proxies {
		out[key] = p.State()
	}
	return out
}

// Reconnect bypasses RECONNECT_COOLDOWN for the named peripheral's
// proxy, if one exists.
func (c *Cache) Reconnect(nameOrKey string) bool {
	remote, ok := c.reg.Wrap(nameOrKey)
	if !ok {
		return false
	}
	key := remote.Key()

	c.mu.Lock()
	p, ok := c.proxies[key]
	c.mu.Unlock()
	if !ok {
		return false
	}
	p.Reconnect()
	return true
}
