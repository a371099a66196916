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

package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmesh-project/redmesh/internal/envelope"
	"github.com/redmesh-project/redmesh/internal/host"
	"github.com/redmesh-project/redmesh/internal/transport"
	"github.com/redmesh-project/redmesh/internal/wire"
	"github.com/redmesh-project/redmesh/peripheral"
)

func newTestLink(t *testing.T, hub *transport.Hub, id string) *transport.Link {
	t.Helper()
	sc, err := envelope.NewSecurityContext("0123456789abcdef")
	require.NoError(t, err)
	codec := envelope.NewCodec(sc, envelope.NewNonceCache(envelope.DefaultNonceExpiry), envelope.DefaultMaxMessageAge)
	return transport.NewLink(transport.NewMemChannel(hub, id), codec)
}

func newChestAdapter() *peripheral.MockAdapter {
	a := peripheral.NewMockAdapter("inv0", "minecraft:chest", []string{"list", "getItems"})
	a.Results["list"] = json.RawMessage(`{"1":{"name":"minecraft:cobblestone","count":64}}`)
	a.Results["getItems"] = json.RawMessage(`[{"name":"minecraft:cobblestone","count":64}]`)
	return a
}

func startHostAndClient(t *testing.T) (*host.Server, *Client, func()) {
	t.Helper()
	hub := transport.NewHub()
	hostLink := newTestLink(t, hub, "hostA")
	clientLink := newTestLink(t, hub, "client")

	chest := newChestAdapter()
	srv := host.NewServer("hostA", "computer_1", hostLink, host.AdapterSourceFunc(func() []peripheral.Adapter {
		return []peripheral.Adapter{chest}
	}), host.WithAnnounceInterval(20*time.Millisecond))

	c := New("client", clientLink)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	go c.Run(ctx)

	cleanup := func() {
		cancel()
		hostLink.Close()
		clientLink.Close()
	}
	return srv, c, cleanup
}

func TestClientDiscoversHostAfterAnnounce(t *testing.T) {
	_, c, cleanup := startHostAndClient(t)
	defer cleanup()

	require.Eventually(t, func() bool {
		return c.Registry.Size() > 0
	}, 2*time.Second, 10*time.Millisecond)

	names := c.Registry.GetNames()
	assert.Contains(t, names, "inv0")
}

func TestClientCallRoutesThroughCacheAndEngine(t *testing.T) {
	_, c, cleanup := startHostAndClient(t)
	defer cleanup()

	require.Eventually(t, func() bool {
		return c.Registry.Size() > 0
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := c.Cache.Call(ctx, "inv0", "list", nil)
	require.NoError(t, err)
	assert.Contains(t, string(result), "cobblestone")
}

func TestClientSubscribeReceivesStatePush(t *testing.T) {
	_, c, cleanup := startHostAndClient(t)
	defer cleanup()

	require.Eventually(t, func() bool {
		return c.Registry.Size() > 0
	}, 2*time.Second, 10*time.Millisecond)

	received := make(chan wire.StatePushData, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.Subscribe(ctx, "inv0", "list", nil, 20, "inventory_changed", func(data wire.StatePushData) {
		select {
		case received <- data:
		default:
		}
	})
	require.NoError(t, err)

	select {
	case data := <-received:
		assert.Equal(t, "inv0", data.Peripheral)
		assert.Equal(t, "list", data.Method)
	case <-time.After(time.Second):
		t.Fatal("did not receive a state push in time")
	}
}
