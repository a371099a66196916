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

// Package registry is the client-side remote peripheral inventory
// (C5 in the design): a composite-key (hostId::name) map plus a
// name->keys alias index, replaced atomically per host whenever a
// fresh PERIPH_LIST arrives (spec §4.5), grounded on the teacher's
// core/session/manager.go map-plus-mutex lifecycle shape.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/redmesh-project/redmesh/internal/wire"
)

// RemotePeripheral is one entry in the registry: a peripheral owned
// by a specific remote host.
type RemotePeripheral struct {
	HostID   string
	HostName string
	Name     string
	Type     string
	Methods  []string
}

// Key is the composite hostId::name identity spec §4.5 registers
// every entry under.
func (p RemotePeripheral) Key() string {
	return p.HostID + "::" + p.Name
}

// Registry holds the client's current view of every remote
// peripheral, indexed by composite key and by bare name.
type Registry struct {
	mu       sync.RWMutex
	byKey    map[string]*RemotePeripheral
	byName   map[string][]string // bare name -> composite keys
	onChange func(hostID string)
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byKey:  make(map[string]*RemotePeripheral),
		byName: make(map[string][]string),
	}
}

// OnChange installs a hook invoked after every mutating operation
// (ReplaceHost, RemoveHost). Used by the proxy cache layer to
// recompute cached proxies when the underlying inventory shifts.
func (r *Registry) OnChange(fn func(hostID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

func (r *Registry) notify(hostID string) {
	if r.onChange != nil {
		r.onChange(hostID)
	}
}

// ReplaceHost is the atomic swap spec §4.4/§4.5 describe: a host's
// prior ownership set is entirely discarded and replaced by
// peripherals in one step, then the name index is rebuilt.
func (r *Registry) ReplaceHost(hostID, hostName string, peripherals []wire.PeripheralDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeHostRemotesLocked(hostID)
	for _, p := range peripherals {
		rp := &RemotePeripheral{
			HostID:   hostID,
			HostName: hostName,
			Name:     p.Name,
			Type:     p.Type,
			Methods:  p.Methods,
		}
		r.byKey[rp.Key()] = rp
		r.byName[rp.Name] = append(r.byName[rp.Name], rp.Key())
	}
	r.notify(hostID)
}

// RemoveHost deletes every entry owned by hostID and rebuilds the
// name index (spec §4.5 "removeHostRemotes").
func (r *Registry) RemoveHost(hostID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeHostRemotesLocked(hostID)
	r.notify(hostID)
}

func (r *Registry) removeHostRemotesLocked(hostID string) {
	for key, rp := range r.byKey {
		if rp.HostID != hostID {
			continue
		}
		delete(r.byKey, key)
	}
	for name, keys := range r.byName {
		kept := keys[:0]
		for _, k := range keys {
			if !strings.HasPrefix(k, hostID+"::") {
				kept = append(kept, k)
			}
		}
		if len(kept) == 0 {
			delete(r.byName, name)
		} else {
			r.byName[name] = kept
		}
	}
}

// normalizeType lowercases t and strips every non-alphanumeric rune
// (spec §4.5 "lowercasing and stripping non-alphanumerics").
func normalizeType(t string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(t) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// candidates returns the set of normalized tokens a type string
// offers for matching: the full normalized token, plus — when t has
// the form ns:leaf — the leaf's normalized token too.
func candidates(t string) []string {
	cands := []string{normalizeType(t)}
	if i := strings.Index(t, ":"); i >= 0 && i < len(t)-1 {
		leaf := normalizeType(t[i+1:])
		if leaf != "" && leaf != cands[0] {
			cands = append(cands, leaf)
		}
	}
	return cands
}

// match reports whether actual and expected name the same peripheral
// type, per spec §4.5: two types match iff any candidate pair
// matches. Symmetric and reflexive by construction (testable
// property #4).
func match(actual, expected string) bool {
	ac := candidates(actual)
	ec := candidates(expected)
	for _, a := range ac {
		for _, e := range ec {
			if a != "" && a == e {
				return true
			}
		}
	}
	return false
}

// Match exposes the type-matching predicate for callers outside this
// package (e.g. the proxy cache resolving a peripheral by type).
func Match(actual, expected string) bool {
	return match(actual, expected)
}

// Find returns the first peripheral whose type matches typ, in
// deterministic host-id-then-key order (spec §4.5).
func (r *Registry) Find(typ string) (*RemotePeripheral, bool) {
	all := r.FindAll(typ)
	if len(all) == 0 {
		return nil, false
	}
	return all[0], true
}

// FindAll returns every peripheral whose type matches typ, in
// deterministic host-id-then-key order.
func (r *Registry) FindAll(typ string) []*RemotePeripheral {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*RemotePeripheral
	for _, rp := range r.byKey {
		if match(rp.Type, typ) {
			matches = append(matches, rp)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].HostID != matches[j].HostID {
			return matches[i].HostID < matches[j].HostID
		}
		return matches[i].Key() < matches[j].Key()
	})
	return matches
}

// Wrap resolves nameOrKey to a registry entry: first as a composite
// key, then as a bare name alias (first of possibly several owners,
// deterministic order), else nil (spec §4.5 "wrap").
func (r *Registry) Wrap(nameOrKey string) (*RemotePeripheral, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rp, ok := r.byKey[nameOrKey]; ok {
		return rp, true
	}
	keys := append([]string(nil), r.byName[nameOrKey]...)
	if len(keys) == 0 {
		return nil, false
	}
	sort.Strings(keys)
	return r.byKey[keys[0]], true
}

// GetNames returns every peripheral's display name: the bare name
// when exactly one host owns it, the composite key when more than one
// host owns the same bare name (spec §4.5 "getNames").
func (r *Registry) GetNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byKey))
	for name, keys := range r.byName {
		if len(keys) == 1 {
			names = append(names, name)
			continue
		}
		names = append(names, keys...)
	}
	sort.Strings(names)
	return names
}

// Size reports how many remote peripherals are currently registered.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// HasHost reports whether any peripheral is currently owned by
// hostID, used by discovery to decide "has no peripherals owned by
// that host" (spec §4.4).
func (r *Registry) HasHost(hostID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rp := range r.byKey {
		if rp.HostID == hostID {
			return true
		}
	}
	return false
}
