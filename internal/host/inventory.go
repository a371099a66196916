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

package host

import (
	"sort"
	"strings"

	"github.com/redmesh-project/redmesh/internal/envelope"
	"github.com/redmesh-project/redmesh/internal/wire"
	"github.com/redmesh-project/redmesh/peripheral"
)

// AdapterSource enumerates the locally-attached peripherals at scan
// time (spec §6 "listLocalPeripherals"). It is the one external
// collaborator a Server consumes besides the transport; a real
// implementation walks whatever local device bus is available, out of
// scope for this fabric.
type AdapterSource interface {
	Scan() []peripheral.Adapter
}

// AdapterSourceFunc adapts a plain function to AdapterSource.
type AdapterSourceFunc func() []peripheral.Adapter

// Scan implements AdapterSource.
func (f AdapterSourceFunc) Scan() []peripheral.Adapter { return f() }

func excludedType(typ string, exclusions []string) bool {
	norm := normalizeMethod(typ) // reuses the lowercase+alnum-strip rule
	for _, ex := range exclusions {
		if strings.Contains(norm, normalizeMethod(ex)) {
			return true
		}
	}
	return false
}

// scan re-enumerates local peripherals via s.source, filters the
// exclusion set, and returns the remaining adapters keyed by name
// alongside their descriptors, per spec §4.8 "On start, the host
// scans local peripherals, filters out an exclusion set... records
// {name, type, methods} per remaining peripheral."
func (s *Server) scan() (map[string]peripheral.Adapter, []wire.PeripheralDescriptor) {
	adapters := make(map[string]peripheral.Adapter)
	var descriptors []wire.PeripheralDescriptor

	for _, a := range s.source.Scan() {
		if excludedType(a.Type(), s.exclusions) {
			continue
		}
		adapters[a.Name()] = a
		descriptors = append(descriptors, wire.PeripheralDescriptor{
			Name:    a.Name(),
			Type:    a.Type(),
			Methods: a.Methods(),
		})
	}

	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].Name < descriptors[j].Name })
	return adapters, descriptors
}

// computeStateHash computes the deterministic digest over the sorted
// inventory and method surfaces spec §4.8 describes, so an unchanged
// inventory always reproduces the same hash and a changed one almost
// certainly does not.
func computeStateHash(descriptors []wire.PeripheralDescriptor) string {
	parts := make([]string, 0, len(descriptors)*2)
	for _, d := range descriptors {
		methods := append([]string(nil), d.Methods...)
		sort.Strings(methods)
		parts = append(parts, d.Name, d.Type, strings.Join(methods, ","))
	}
	return envelope.Hash(parts...)
}
