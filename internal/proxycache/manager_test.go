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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmesh-project/redmesh/internal/registry"
	"github.com/redmesh-project/redmesh/internal/rpc"
	"github.com/redmesh-project/redmesh/internal/transport"
	"github.com/redmesh-project/redmesh/internal/wire"
)

func TestCacheCallResolvesByBareNameAndCreatesOneProxy(t *testing.T) {
	hub := transport.NewHub()
	host := newFakeHost(t, hub, "hostA", func(req wire.Message) wire.Message {
		return wire.NewResult(req.RequestID, json.RawMessage(`{"ok":true}`), nil)
	})
	defer host.Close()

	clientLink := newLink(t, hub, "client")
	defer clientLink.Close()
	engine := rpc.New("client", clientLink)
	stop := make(chan struct{})
	defer close(stop)
	startDispatcher(clientLink, engine, stop)

	reg := registry.New()
	reg.ReplaceHost("hostA", "computer_1", []wire.PeripheralDescriptor{
		{Name: "inv0", Type: "minecraft:chest", Methods: []string{"list"}},
	})

	cache := NewCache(reg, engine)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := cache.Call(ctx, "inv0", "list", nil)
	require.NoError(t, err)
	_, err = cache.Call(ctx, "hostA::inv0", "list", nil)
	require.NoError(t, err)

	assert.Len(t, cache.State(), 1, "both the bare-name and composite-key calls must resolve to the same proxy")
}

func TestCacheUnknownPeripheralErrors(t *testing.T) {
	reg := registry.New()
	clientLink := newLink(t, transport.NewHub(), "client")
	defer clientLink.Close()
	engine := rpc.New("client", clientLink)
	cache := NewCache(reg, engine)

	_, err := cache.Call(context.Background(), "missing", "list", nil)
	var target ErrUnknownPeripheral
	assert.ErrorAs(t, err, &target)
}

func TestCacheDropsProxiesWhenHostInventoryChanges(t *testing.T) {
	hub := transport.NewHub()
	host := newFakeHost(t, hub, "hostA", func(req wire.Message) wire.Message {
		return wire.NewResult(req.RequestID, json.RawMessage(`{"ok":true}`), nil)
	})
	defer host.Close()

	clientLink := newLink(t, hub, "client")
	defer clientLink.Close()
	engine := rpc.New("client", clientLink)
	stop := make(chan struct{})
	defer close(stop)
	startDispatcher(clientLink, engine, stop)

	reg := registry.New()
	reg.ReplaceHost("hostA", "computer_1", []wire.PeripheralDescriptor{
		{Name: "inv0", Type: "minecraft:chest", Methods: []string{"list"}},
	})
	cache := NewCache(reg, engine)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := cache.Call(ctx, "inv0", "list", nil)
	require.NoError(t, err)
	require.Len(t, cache.State(), 1)

	reg.ReplaceHost("hostA", "computer_1", []wire.PeripheralDescriptor{
		{Name: "inv1", Type: "minecraft:chest", Methods: []string{"list"}},
	})
	assert.Empty(t, cache.State(), "a fresh announce for the host must drop its stale proxies")
}
