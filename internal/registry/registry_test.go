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

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmesh-project/redmesh/internal/wire"
)

func TestMatchSymmetricAndReflexive(t *testing.T) {
	// Testable property #4.
	assert.True(t, Match("minecraft:chest", "minecraft:chest"))
	assert.True(t, Match("minecraft:chest", "chest"))
	assert.True(t, Match("chest", "minecraft:chest"), "match must be symmetric")
	assert.True(t, Match("Minecraft:Chest", "CHEST"), "match is case-insensitive")
	assert.False(t, Match("minecraft:chest", "minecraft:furnace"))
}

func TestReplaceHostIsAtomicSwap(t *testing.T) {
	r := New()
	r.ReplaceHost("A", "computer_1", []wire.PeripheralDescriptor{
		{Name: "inv0", Type: "minecraft:chest", Methods: []string{"list"}},
		{Name: "inv1", Type: "minecraft:furnace", Methods: []string{"list"}},
	})
	assert.Equal(t, 2, r.Size())

	r.ReplaceHost("A", "computer_1", []wire.PeripheralDescriptor{
		{Name: "inv0", Type: "minecraft:chest", Methods: []string{"list"}},
	})
	assert.Equal(t, 1, r.Size(), "replace must discard the prior set entirely")

	_, ok := r.Wrap("A::inv1")
	assert.False(t, ok, "stale entry must be gone after swap")
}

func TestRemoveHostRemotesRebuildsNameIndex(t *testing.T) {
	r := New()
	r.ReplaceHost("A", "a", []wire.PeripheralDescriptor{{Name: "inv0", Type: "chest"}})
	r.ReplaceHost("B", "b", []wire.PeripheralDescriptor{{Name: "inv0", Type: "chest"}})

	names := r.GetNames()
	assert.Contains(t, names, "A::inv0")
	assert.Contains(t, names, "B::inv0")
	assert.NotContains(t, names, "inv0", "ambiguous bare name must not appear unqualified")

	r.RemoveHost("A")
	names = r.GetNames()
	assert.Equal(t, []string{"inv0"}, names, "now unambiguous, bare name is used")
}

func TestWrapResolvesKeyThenAlias(t *testing.T) {
	r := New()
	r.ReplaceHost("A", "a", []wire.PeripheralDescriptor{{Name: "inv0", Type: "chest"}})

	byKey, ok := r.Wrap("A::inv0")
	require.True(t, ok)
	assert.Equal(t, "inv0", byKey.Name)

	byAlias, ok := r.Wrap("inv0")
	require.True(t, ok)
	assert.Equal(t, "A::inv0", byAlias.Key())

	_, ok = r.Wrap("missing")
	assert.False(t, ok)
}

func TestFindDeterministicOrder(t *testing.T) {
	r := New()
	r.ReplaceHost("B", "b", []wire.PeripheralDescriptor{{Name: "inv0", Type: "minecraft:chest"}})
	r.ReplaceHost("A", "a", []wire.PeripheralDescriptor{{Name: "inv0", Type: "minecraft:chest"}})

	all := r.FindAll("chest")
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].HostID, "deterministic host-id-then-key order")
	assert.Equal(t, "B", all[1].HostID)

	first, ok := r.Find("chest")
	require.True(t, ok)
	assert.Equal(t, "A", first.HostID)
}

func TestOnChangeFiresOnMutation(t *testing.T) {
	r := New()
	calls := 0
	r.OnChange(func(hostID string) { calls++ })

	r.ReplaceHost("A", "a", []wire.PeripheralDescriptor{{Name: "inv0", Type: "chest"}})
	assert.Equal(t, 1, calls)

	r.RemoveHost("A")
	assert.Equal(t, 2, calls)
}
